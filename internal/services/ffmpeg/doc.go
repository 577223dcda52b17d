// Package ffmpeg wraps the ffmpeg command line for rendering still images
// into video clips, with structured progress reporting parsed from the
// -progress pipe output.
package ffmpeg
