// Package files discovers raw stream CSV exports on disk, either by walking
// a directory tree or by expanding a zip archive first. The rest of the
// pipeline treats the result as an opaque list of paths.
package files
