// Package placeholder renders lazy-load placeholders for optimized
// transforms: a tiny base64 JPEG data URI plus a dominant-color palette.
package placeholder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/cenkalti/dominantcolor"

	"imagemill/internal/imaging"
)

// Placeholder is the JSON-serializable result stored on a queue item.
type Placeholder struct {
	URI           string   `json:"uri"`
	DominantColor string   `json:"dominant_color"`
	Palette       []string `json:"palette,omitempty"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
}

// placeholderJPEGQuality is deliberately low; the data URI is swapped out as
// soon as the real image loads.
const placeholderJPEGQuality = 35

// FromFile decodes the image at path and generates a placeholder for it.
func FromFile(path string, format imaging.Format, width, paletteSize int) (Placeholder, error) {
	if !imaging.Decodable(format) {
		return Placeholder{}, fmt.Errorf("placeholder: cannot decode %s files in process", format)
	}
	img, err := imaging.Decode(path, format)
	if err != nil {
		return Placeholder{}, fmt.Errorf("placeholder decode: %w", err)
	}
	return Generate(img, width, paletteSize)
}

// Generate renders a placeholder from an already-decoded image.
func Generate(img image.Image, width, paletteSize int) (Placeholder, error) {
	if width <= 0 {
		width = 16
	}
	tiny := imaging.Resize(img, width)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, tiny, &jpeg.Options{Quality: placeholderJPEGQuality}); err != nil {
		return Placeholder{}, fmt.Errorf("placeholder encode: %w", err)
	}

	result := Placeholder{
		URI:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:  tiny.Bounds().Dx(),
		Height: tiny.Bounds().Dy(),
	}

	result.DominantColor = dominantcolor.Hex(dominantcolor.Find(img))
	if paletteSize > 1 {
		for _, c := range dominantcolor.FindN(img, paletteSize) {
			result.Palette = append(result.Palette, dominantcolor.Hex(c))
		}
	}
	return result, nil
}
