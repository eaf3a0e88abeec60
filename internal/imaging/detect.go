package imaging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies an image format handled by the pipeline.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// ErrUnknownFormat is returned when neither magic bytes nor the file
// extension identify a supported format.
var ErrUnknownFormat = fmt.Errorf("unknown image format")

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// SupportedExtensions lists the file extensions the intake paths accept.
func SupportedExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif"}
}

// FormatForExtension maps a file extension to a Format.
func FormatForExtension(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "gif":
		return FormatGIF, true
	case "webp":
		return FormatWebP, true
	case "avif":
		return FormatAVIF, true
	default:
		return "", false
	}
}

// Extension returns the canonical file extension for a format.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	default:
		return "." + string(f)
	}
}

// DetectFormat sniffs the file's magic bytes, falling back to the extension
// when the header is unrecognized.
func DetectFormat(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 32)
	n, err := file.Read(header)
	if err != nil && n == 0 {
		return "", fmt.Errorf("read header: %w", err)
	}
	header = header[:n]

	if format, ok := sniff(header); ok {
		return format, nil
	}
	if format, ok := FormatForExtension(filepath.Ext(path)); ok {
		return format, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

func sniff(header []byte) (Format, bool) {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return FormatJPEG, true
	case len(header) >= 8 && bytes.Equal(header[:8], pngMagic):
		return FormatPNG, true
	case len(header) >= 6 && (bytes.Equal(header[:6], []byte("GIF87a")) || bytes.Equal(header[:6], []byte("GIF89a"))):
		return FormatGIF, true
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return FormatWebP, true
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")) && isAVIFBrand(header[8:12]):
		return FormatAVIF, true
	default:
		return "", false
	}
}

func isAVIFBrand(brand []byte) bool {
	return bytes.Equal(brand, []byte("avif")) || bytes.Equal(brand, []byte("avis"))
}
