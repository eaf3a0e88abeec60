package imaging

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/webp"
)

// Decode reads the image at path. AVIF has no decoder in the Go ecosystem's
// pure-Go image stack, so callers must treat it as opaque bytes.
func Decode(path string, format Format) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch format {
	case FormatJPEG:
		return jpeg.Decode(file)
	case FormatPNG:
		return png.Decode(file)
	case FormatGIF:
		return gif.Decode(file)
	case FormatWebP:
		return webp.Decode(file)
	default:
		return nil, fmt.Errorf("decode: no decoder for format %q", format)
	}
}

// Decodable reports whether the pipeline can decode the format in process.
func Decodable(format Format) bool {
	switch format {
	case FormatJPEG, FormatPNG, FormatGIF, FormatWebP:
		return true
	default:
		return false
	}
}
