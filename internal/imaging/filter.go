package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"time"

	"golang.org/x/image/draw"
)

// FilterResult describes what the pre-filter did to a staged file.
type FilterResult struct {
	Resized     bool
	Reencoded   bool
	WidthBefore int
	WidthAfter  int
}

// Prefilter downscales the staged file to maxWidth when it is wider and
// re-encodes jpeg/png in place. Formats without an in-process encoder are
// left untouched. The file's mtime is preserved so intake debouncing does
// not re-trigger on our own write.
func Prefilter(path string, format Format, maxWidth, jpegQuality int) (FilterResult, error) {
	var result FilterResult

	if format != FormatJPEG && format != FormatPNG {
		return result, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return result, err
	}
	modTime := info.ModTime()

	img, err := Decode(path, format)
	if err != nil {
		return result, fmt.Errorf("prefilter decode: %w", err)
	}

	bounds := img.Bounds()
	result.WidthBefore = bounds.Dx()
	result.WidthAfter = bounds.Dx()

	if maxWidth > 0 && bounds.Dx() > maxWidth {
		img = Resize(img, maxWidth)
		result.Resized = true
		result.WidthAfter = img.Bounds().Dx()
	} else if format == FormatPNG {
		// Nothing to gain from a straight PNG re-encode; the external
		// optimizer chain handles that better.
		return result, nil
	}

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return result, err
	}
	defer os.Remove(tmpPath)

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality})
	case FormatPNG:
		err = png.Encode(out, img)
	}
	if err != nil {
		out.Close()
		return result, fmt.Errorf("prefilter encode: %w", err)
	}
	if err := out.Close(); err != nil {
		return result, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return result, err
	}
	result.Reencoded = true
	_ = os.Chtimes(path, time.Now(), modTime)
	return result, nil
}

// Resize scales img down to the given width preserving aspect ratio.
// Widths at or above the current width return img unchanged.
func Resize(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	if width <= 0 || bounds.Dx() <= width {
		return img
	}
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
