// Package format provides file format detection for PDF documents and the
// raster image formats that can be converted into PDF images.
package format

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Format represents a supported input format.
type Format int

const (
	// Unknown indicates an unrecognized format.
	Unknown Format = iota
	// PDF indicates a PDF document.
	PDF
	// PNG indicates a Portable Network Graphics image.
	PNG
	// GIF indicates a Graphics Interchange Format image.
	GIF
	// BMP indicates a Windows bitmap.
	BMP
	// JPEG indicates a JPEG/JFIF image.
	JPEG
	// TIFF indicates a Tagged Image File Format image.
	TIFF
	// WebP indicates a WebP image.
	WebP
)

// String returns the string representation of the format.
func (f Format) String() string {
	switch f {
	case PDF:
		return "PDF"
	case PNG:
		return "PNG"
	case GIF:
		return "GIF"
	case BMP:
		return "BMP"
	case JPEG:
		return "JPEG"
	case TIFF:
		return "TIFF"
	case WebP:
		return "WebP"
	default:
		return "Unknown"
	}
}

// Extension returns the typical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case PDF:
		return ".pdf"
	case PNG:
		return ".png"
	case GIF:
		return ".gif"
	case BMP:
		return ".bmp"
	case JPEG:
		return ".jpg"
	case TIFF:
		return ".tif"
	case WebP:
		return ".webp"
	default:
		return ""
	}
}

// IsImage reports whether f is a raster image format.
func (f Format) IsImage() bool {
	return f >= PNG && f <= WebP
}

// Detect determines file format from filename extension.
func Detect(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return PDF
	case ".png":
		return PNG
	case ".gif":
		return GIF
	case ".bmp", ".dib":
		return BMP
	case ".jpg", ".jpeg", ".jpe", ".jfif":
		return JPEG
	case ".tif", ".tiff":
		return TIFF
	case ".webp":
		return WebP
	default:
		return Unknown
	}
}

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	tiffLE    = []byte("II*\x00")
	tiffBE    = []byte("MM\x00*")
)

// DetectFromMagic checks file magic bytes to determine format.
// This provides more reliable detection than extension-based detection.
// A PDF header is accepted anywhere in the first 1024 bytes, since some
// producers prepend junk before it.
func DetectFromMagic(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return PNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF
	case bytes.HasPrefix(data, jpegMagic):
		return JPEG
	case bytes.HasPrefix(data, tiffLE), bytes.HasPrefix(data, tiffBE):
		return TIFF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return WebP
	case len(data) >= 14 && data[0] == 'B' && data[1] == 'M':
		return BMP
	}

	if bytes.Contains(data[:min(1024, len(data))], []byte("%PDF-")) {
		return PDF
	}
	return Unknown
}

// DetectFromReader inspects the content to determine format.
func DetectFromReader(r io.ReaderAt, size int64) (Format, error) {
	if size < 0 {
		size = 0
	}
	magic := make([]byte, min(1024, size))
	n, err := r.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		return Unknown, err
	}
	return DetectFromMagic(magic[:n]), nil
}
