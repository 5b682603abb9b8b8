// Package combine merges cleaned per-device stream files into unified tables
// and repacks them into upload-sized shards. Both steps stream row chunks of
// bounded size: peak memory is proportional to the chunk, never to the month.
package combine
