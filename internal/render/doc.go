// Package render implements the workflow stage that turns an inspected image
// into a video clip via ffmpeg, streaming progress to the store and to any
// connected browsers while the encode runs.
package render
