package services_test

import (
	"errors"
	"strings"
	"testing"

	"filmstrip/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "inspect", "probe image", "unsupported format", errors.New("boom"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"inspect", "probe image", "unsupported format", "boom"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "render", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrValidation, "s", "", "", nil), "validation"},
		{services.Wrap(services.ErrExternalTool, "s", "", "", nil), "external_tool"},
		{services.Wrap(services.ErrTimeout, "s", "", "", nil), "timeout"},
		{errors.New("plain"), "unknown"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if services.IsRetryable(services.Wrap(services.ErrValidation, "s", "", "", nil)) {
		t.Fatal("validation failures should not be retryable")
	}
	if !services.IsRetryable(services.Wrap(services.ErrTransient, "s", "", "", nil)) {
		t.Fatal("transient failures should be retryable")
	}
	if services.IsRetryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
}
