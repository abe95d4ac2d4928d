package imagestore

import (
	"bytes"

	"github.com/verseforge/verseforge/pkg/types"
)

var (
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
)

// DetectFormat sniffs the image encoding from the first bytes. Unknown
// content defaults to WebP, the model's native output format.
func DetectFormat(data []byte) types.ImageFormat {
	if len(data) >= 12 && bytes.Equal(data[:4], riffMagic) && bytes.Equal(data[8:12], webpMagic) {
		return types.FormatWebP
	}
	if len(data) >= 4 && bytes.Equal(data[:4], pngMagic) {
		return types.FormatPNG
	}
	if len(data) >= 3 && bytes.Equal(data[:3], jpegMagic) {
		return types.FormatJPEG
	}
	return types.FormatWebP
}

// ContentType returns the MIME type for a detected format
func ContentType(f types.ImageFormat) string {
	return "image/" + string(f)
}
