package detection

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMapToFrame(t *testing.T) {
	tests := []struct {
		name                string
		x, y, w, h          float32
		frameW, frameH      int
		wantW, wantH        int
		wantCX, wantCY      int
	}{
		{"centered box", 0.5, 0.5, 0.25, 0.5, 640, 480, 160, 240, 320, 240},
		{"top left", 0.1, 0.1, 0.2, 0.2, 1000, 1000, 200, 200, 100, 100},
		{"full frame", 0.5, 0.5, 1.0, 1.0, 640, 480, 640, 480, 320, 240},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rect := mapToFrame(tc.x, tc.y, tc.w, tc.h, tc.frameW, tc.frameH)

			if rect.Dx() != tc.wantW || rect.Dy() != tc.wantH {
				t.Errorf("size = %dx%d, want %dx%d", rect.Dx(), rect.Dy(), tc.wantW, tc.wantH)
			}
			cx := (rect.Min.X + rect.Max.X) / 2
			cy := (rect.Min.Y + rect.Max.Y) / 2
			if cx != tc.wantCX || cy != tc.wantCY {
				t.Errorf("center = (%d,%d), want (%d,%d)", cx, cy, tc.wantCX, tc.wantCY)
			}
		})
	}
}

func TestIsRodentLabel(t *testing.T) {
	positives := []string{"mouse", "rat", "rodent", "brown rat", "Mouse", "computer mouse"}
	negatives := []string{"cat", "dog", "person", "boat", ""}

	for _, name := range positives {
		if !IsRodentLabel(name) {
			t.Errorf("IsRodentLabel(%q) = false, want true", name)
		}
	}
	for _, name := range negatives {
		if IsRodentLabel(name) {
			t.Errorf("IsRodentLabel(%q) = true, want false", name)
		}
	}
}

func TestLoadClassNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coco.names")
	if err := os.WriteFile(path, []byte("person\nbicycle\ncar\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := LoadClassNames(path)
	if err != nil {
		t.Fatalf("LoadClassNames: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("got %d names, want 3 (trailing blank line dropped)", len(names))
	}
	if names[0] != "person" || names[2] != "car" {
		t.Errorf("names = %v", names)
	}

	if _, err := LoadClassNames(filepath.Join(dir, "missing.names")); err == nil {
		t.Error("expected error for missing file")
	}
}
