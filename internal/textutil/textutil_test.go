package textutil

import "testing"

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Photo (1)", "my_photo__1"},
		{"b7f9c2d4-11aa", "b7f9c2d4-11aa"},
		{"  sunset  ", "sunset"},
		{"日本語", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"beach_sunset-2024.jpg", "Beach Sunset 2024"},
		{"/uploads/family.photo.png", "Family Photo"},
		{"???", "Untitled"},
		{"", "Untitled"},
	}
	for _, tc := range cases {
		if got := DisplayTitle(tc.in); got != tc.want {
			t.Fatalf("DisplayTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
