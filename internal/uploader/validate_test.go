package uploader

import "testing"

func TestFingerprint(t *testing.T) {
	f := File{Name: "Holiday.JPG", Type: "IMAGE/JPEG", Size: 2048, LastModified: 1700000000000}
	want := "holiday.jpg__2048__1700000000000__image/jpeg"
	if got := Fingerprint(f); got != want {
		t.Errorf("Fingerprint = %q; want %q", got, want)
	}
}

func TestIsTypeAllowed(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		want bool
	}{
		{"a.png", "image/png", true},
		{"a.bin", "image/webp", true},
		{"a.JPEG", "", true},
		{"a.gif", "application/octet-stream", true},
		{"a.heic", "image/heic", false},
		{"a.pdf", "application/pdf", false},
		{"png", "", true},
		{"noext", "", false},
	}
	for _, tc := range tests {
		if got := IsTypeAllowed(File{Name: tc.name, Type: tc.typ}); got != tc.want {
			t.Errorf("IsTypeAllowed(%q, %q) = %v; want %v", tc.name, tc.typ, got, tc.want)
		}
	}
}

func TestParseFilter(t *testing.T) {
	for in, want := range map[string]Filter{"": FilterAll, "all": FilterAll, "ready": FilterReady, "uploaded": FilterUploaded, "failed": FilterFailed} {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFilter("done"); err == nil {
		t.Error("expected error for unknown filter")
	}
}
