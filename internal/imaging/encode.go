package imaging

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
)

const encodeJPEGQuality = 92

// Encode writes img to path in the given format. Only formats with a stdlib
// encoder are supported; webp and avif renditions come from external tools.
func Encode(img image.Image, format Format, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: encodeJPEGQuality})
	case FormatPNG:
		err = png.Encode(out, img)
	case FormatGIF:
		err = gif.Encode(out, img, nil)
	default:
		err = fmt.Errorf("encode: no encoder for format %q", format)
	}
	if err != nil {
		out.Close()
		_ = os.Remove(path)
		return err
	}
	return out.Close()
}

// Encodable reports whether the pipeline can write the format in process.
func Encodable(format Format) bool {
	switch format {
	case FormatJPEG, FormatPNG, FormatGIF:
		return true
	default:
		return false
	}
}
