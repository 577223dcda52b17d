package ffprobe

import (
	"math"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", CodecName: "png", Width: 800, Height: 600},
		},
		Format: Format{
			Duration: "123.45",
			Size:     "1000",
		},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	width, height := result.Dimensions()
	if width != 800 || height != 600 {
		t.Fatalf("unexpected dimensions: %dx%d", width, height)
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1000 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestDimensionsWithoutVideoStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio"}},
	}
	width, height := result.Dimensions()
	if width != 0 || height != 0 {
		t.Fatalf("expected zero dimensions, got %dx%d", width, height)
	}
	if result.FirstVideoStream() != nil {
		t.Fatal("expected no video stream")
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
}
