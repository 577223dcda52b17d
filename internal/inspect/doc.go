// Package inspect implements the workflow stage that probes uploaded images
// with ffprobe and records their pixel dimensions before rendering.
package inspect
