package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		mime string
		want Category
	}{
		{"notes.txt", "", TextDocument},
		{"main.go", "", Code},
		{"data.csv", "", Data},
		{"photo.JPG", "", Image},
		{"report.pdf", "", PDF},
		{"song.mp3", "", Audio},
		{"clip.mov", "", Video},
		{"deck.pptx", "", Office},
		{"bundle.tar.gz", "", Archive},
		{"no-extension", "", TextDocument},
		{"weird.xyz123", "", TextDocument},

		// MIME prefixes short-circuit the extension table.
		{"whatever.bin", "image/png", Image},
		{"whatever.bin", "video/mp4", Video},
		{"whatever.bin", "audio/mpeg", Audio},
		{"whatever.bin", "text/plain", TextDocument},

		// Extension decides when MIME is absent or non-prefixed.
		{"report.pdf", "application/pdf", PDF},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.mime, func(t *testing.T) {
			if got := Classify(tt.name, tt.mime); got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.name, tt.mime, got, tt.want)
			}
		})
	}
}

func TestIsTextual(t *testing.T) {
	for _, cat := range []Category{TextDocument, Code, Data} {
		if !IsTextual(cat) {
			t.Errorf("IsTextual(%v) = false, want true", cat)
		}
	}
	for _, cat := range []Category{Image, PDF, Audio, Video, Office, Archive, Folder} {
		if IsTextual(cat) {
			t.Errorf("IsTextual(%v) = true, want false", cat)
		}
	}
}
