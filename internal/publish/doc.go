// Package publish moves rendered videos into the library and exposes
// them under a stable URL for playback.
package publish
