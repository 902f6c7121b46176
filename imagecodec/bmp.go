package imagecodec

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/image/bmp"

	"github.com/tsawler/pdfcore/core"
)

// BMP compression types.
const (
	biRGB       = 0
	biBitfields = 3
)

type bmpHeader struct {
	dataOffset  int
	headerSize  int
	width       int
	height      int
	topDown     bool
	bpp         int
	compression int
	colorsUsed  int
	masks       [4]uint32 // red, green, blue, alpha
}

// DecodeBMP converts a Windows bitmap. 1, 4 and 8-bit images become
// /Indexed images over /DeviceRGB, 24 and 32-bit images become /DeviceRGB
// and a used alpha channel becomes a soft mask. Other variants (16-bit,
// RLE, unusual bit fields) are decoded with golang.org/x/image/bmp.
func DecodeBMP(data []byte, opts ...Option) (*Image, error) {
	o := newOptions(opts)
	h, err := readBMPHeader(data)
	if err != nil {
		return nil, err
	}

	switch {
	case h.compression == biRGB && (h.bpp == 1 || h.bpp == 4 || h.bpp == 8):
		return decodeIndexedBMP(data, h)
	case h.compression == biRGB && h.bpp == 24:
		return decodeTrueColorBMP(data, h)
	case (h.compression == biRGB || h.compression == biBitfields) && h.bpp == 32 && h.standardMasks():
		return decodeTrueColorBMP(data, h)
	}

	o.logger.Debug("bmp: decoding uncommon variant generically",
		"bpp", h.bpp, "compression", h.compression)
	img, err := bmp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, unsupported("BMP", "%d bits per pixel with compression %d: %v", h.bpp, h.compression, err)
	}
	return FromImage(img)
}

func readBMPHeader(data []byte) (*bmpHeader, error) {
	if len(data) < 26 || data[0] != 'B' || data[1] != 'M' {
		return nil, invalid("BMP", "missing BM signature")
	}
	le := binary.LittleEndian
	h := &bmpHeader{
		dataOffset: int(le.Uint32(data[10:])),
		headerSize: int(le.Uint32(data[14:])),
	}
	info := data[14:]

	switch {
	case h.headerSize == 12:
		h.width = int(le.Uint16(info[4:]))
		h.height = int(int16(le.Uint16(info[6:])))
		h.bpp = int(le.Uint16(info[10:]))
	case h.headerSize >= 40:
		if len(info) < 40 {
			return nil, invalid("BMP", "truncated info header")
		}
		h.width = int(int32(le.Uint32(info[4:])))
		h.height = int(int32(le.Uint32(info[8:])))
		h.bpp = int(le.Uint16(info[14:]))
		h.compression = int(le.Uint32(info[16:]))
		h.colorsUsed = int(le.Uint32(info[32:]))

		if h.compression == biBitfields {
			// masks follow a 40-byte header and are part of larger ones
			need := 40 + 12
			if len(info) < need {
				return nil, invalid("BMP", "truncated bit field masks")
			}
			for i := 0; i < 3; i++ {
				h.masks[i] = le.Uint32(info[40+4*i:])
			}
			if h.headerSize >= 56 && len(info) >= 56 {
				h.masks[3] = le.Uint32(info[52:])
			}
		}
	default:
		return nil, unsupported("BMP", "info header of %d bytes", h.headerSize)
	}

	if h.height < 0 {
		h.height = -h.height
		h.topDown = true
	}
	if h.width <= 0 || h.height <= 0 {
		return nil, invalid("BMP", "image size %dx%d", h.width, h.height)
	}
	if h.dataOffset <= 0 || h.dataOffset > len(data) {
		return nil, invalid("BMP", "pixel data offset %d out of range", h.dataOffset)
	}
	return h, nil
}

func (h *bmpHeader) standardMasks() bool {
	if h.compression == biRGB {
		return true
	}
	return h.masks[0] == 0x00FF0000 && h.masks[1] == 0x0000FF00 && h.masks[2] == 0x000000FF &&
		(h.masks[3] == 0 || h.masks[3] == 0xFF000000)
}

// stride is the length of a stored row, padded to four bytes.
func (h *bmpHeader) stride() int {
	return (h.width*h.bpp + 31) / 32 * 4
}

// row returns the stored bytes of image row y, counted from the top.
func (h *bmpHeader) row(data []byte, y int) ([]byte, error) {
	src := y
	if !h.topDown {
		src = h.height - 1 - y
	}
	start := h.dataOffset + src*h.stride()
	end := start + h.stride()
	if end > len(data) {
		return nil, invalid("BMP", "pixel data truncated at row %d", y)
	}
	return data[start:end], nil
}

func decodeIndexedBMP(data []byte, h *bmpHeader) (*Image, error) {
	entries := h.colorsUsed
	if entries == 0 || entries > 1<<h.bpp {
		entries = 1 << h.bpp
	}
	entrySize := 4
	if h.headerSize == 12 {
		entrySize = 3
	}
	palStart := 14 + h.headerSize
	if palStart+entries*entrySize > len(data) {
		return nil, invalid("BMP", "colour table truncated")
	}

	palette := make([]byte, 0, entries*3)
	for i := 0; i < entries; i++ {
		e := data[palStart+i*entrySize:]
		palette = append(palette, e[2], e[1], e[0])
	}

	rowBytes := (h.width*h.bpp + 7) / 8
	out := make([]byte, 0, rowBytes*h.height)
	for y := 0; y < h.height; y++ {
		row, err := h.row(data, y)
		if err != nil {
			return nil, err
		}
		out = append(out, row[:rowBytes]...)
	}

	return &Image{
		Width:            h.width,
		Height:           h.height,
		BitsPerComponent: h.bpp,
		ColorSpace:       indexed(core.Name("DeviceRGB"), palette, entries),
		Data:             out,
	}, nil
}

func decodeTrueColorBMP(data []byte, h *bmpHeader) (*Image, error) {
	step := h.bpp / 8
	rgb := make([]byte, 0, h.width*h.height*3)
	var alpha []byte
	if step == 4 {
		alpha = make([]byte, 0, h.width*h.height)
	}

	for y := 0; y < h.height; y++ {
		row, err := h.row(data, y)
		if err != nil {
			return nil, err
		}
		for x := 0; x < h.width; x++ {
			p := row[x*step:]
			rgb = append(rgb, p[2], p[1], p[0])
			if alpha != nil {
				alpha = append(alpha, p[3])
			}
		}
	}

	im := &Image{
		Width:            h.width,
		Height:           h.height,
		BitsPerComponent: 8,
		ColorSpace:       core.Name("DeviceRGB"),
		Data:             rgb,
	}
	if alpha != nil && h.hasAlpha(alpha) {
		im.SMask = grayMask(h.width, h.height, alpha)
	}
	return im, nil
}

// hasAlpha reports whether the fourth byte of 32-bit pixels carries
// transparency. Without an alpha mask, an all-zero channel is unused
// padding; a fully opaque channel needs no mask either.
func (h *bmpHeader) hasAlpha(alpha []byte) bool {
	if h.compression == biBitfields && h.masks[3] == 0 {
		return false
	}
	allZero, allOpaque := true, true
	for _, a := range alpha {
		if a != 0 {
			allZero = false
		}
		if a != 0xFF {
			allOpaque = false
		}
	}
	if allOpaque {
		return false
	}
	return !allZero || h.masks[3] != 0
}
