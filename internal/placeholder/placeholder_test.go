package placeholder_test

import (
	"path/filepath"
	"strings"
	"testing"

	"imagemill/internal/imaging"
	"imagemill/internal/placeholder"
	"imagemill/internal/testsupport"
)

func TestFromFileGeneratesDataURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	testsupport.WriteJPEG(t, path, 120, 60)

	ph, err := placeholder.FromFile(path, imaging.FormatJPEG, 16, 4)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if !strings.HasPrefix(ph.URI, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected URI prefix: %.40s", ph.URI)
	}
	if ph.Width != 16 || ph.Height != 8 {
		t.Fatalf("unexpected dimensions: %dx%d", ph.Width, ph.Height)
	}
	if !strings.HasPrefix(ph.DominantColor, "#") || len(ph.DominantColor) != 7 {
		t.Fatalf("unexpected dominant color: %q", ph.DominantColor)
	}
	if len(ph.Palette) == 0 {
		t.Fatal("expected a palette")
	}
	for _, hex := range ph.Palette {
		if !strings.HasPrefix(hex, "#") {
			t.Fatalf("palette entry not hex: %q", hex)
		}
	}
}

func TestGenerateClampsWidth(t *testing.T) {
	img := testsupport.TestImage(8, 8)
	ph, err := placeholder.Generate(img, 32, 0)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// Source is narrower than the requested width; no upscale happens.
	if ph.Width != 8 {
		t.Fatalf("expected width 8, got %d", ph.Width)
	}
	if len(ph.Palette) != 0 {
		t.Fatal("palette disabled when palette size <= 1")
	}
}

func TestFromFileRejectsUndecodableFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.avif")
	testsupport.WriteJPEG(t, path, 8, 8)
	if _, err := placeholder.FromFile(path, imaging.FormatAVIF, 16, 4); err == nil {
		t.Fatal("expected error for avif input")
	}
}
