// Package sensor defines the domain model shared by the preparation
// pipeline: the three wearable data streams (accelerometer, electrodermal
// activity, temperature), the in-memory table of rows read from a per-device
// CSV export, and the metadata extracted from the export's directory layout.
package sensor
