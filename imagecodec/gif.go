package imagecodec

import (
	"encoding/binary"

	"github.com/tsawler/pdfcore/core"
)

// GIF block introducers and extension labels.
const (
	gifExtension      = 0x21
	gifImageSeparator = 0x2C
	gifTrailer        = 0x3B

	gifGraphicControl = 0xF9
)

type gifReader struct {
	data []byte
	pos  int
}

func (r *gifReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, invalid("GIF", "unexpected end of data")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *gifReader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, invalid("GIF", "unexpected end of data")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// subBlocks returns the concatenated data sub-blocks that start at the
// current position.
func (r *gifReader) subBlocks() ([]byte, error) {
	var out []byte
	for {
		n, err := r.readByte()
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
		b, err := r.readBytes(int(n))
		if err != nil {
			return out, err
		}
		out = append(out, b...)
	}
}

// DecodeGIF converts the first image of a GIF file into an /Indexed image
// with 8 bits per component. A transparent colour index becomes a colour
// key mask.
func DecodeGIF(data []byte, opts ...Option) (*Image, error) {
	o := newOptions(opts)
	if len(data) < 13 || (string(data[:6]) != "GIF87a" && string(data[:6]) != "GIF89a") {
		return nil, invalid("GIF", "missing signature")
	}
	r := &gifReader{data: data, pos: 6}
	screen, _ := r.readBytes(7)
	flags := screen[4]

	var global []byte
	if flags&0x80 != 0 {
		var err error
		global, err = r.readBytes(3 * (2 << (flags & 7)))
		if err != nil {
			return nil, err
		}
	}

	transparent := -1
	for {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case gifExtension:
			label, err := r.readByte()
			if err != nil {
				return nil, err
			}
			block, err := r.subBlocks()
			if err != nil {
				return nil, err
			}
			if label == gifGraphicControl && len(block) >= 4 && block[0]&1 != 0 {
				transparent = int(block[3])
			}
		case gifImageSeparator:
			return decodeGIFImage(r, global, transparent, o)
		case gifTrailer:
			return nil, invalid("GIF", "no image data")
		default:
			return nil, invalid("GIF", "unknown block type 0x%02x", b)
		}
	}
}

// maxGIFPixels bounds the declared image size accepted before decoding.
const maxGIFPixels = 1 << 26

func decodeGIFImage(r *gifReader, palette []byte, transparent int, o *options) (*Image, error) {
	desc, err := r.readBytes(9)
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	width := int(le.Uint16(desc[4:]))
	height := int(le.Uint16(desc[6:]))
	flags := desc[8]
	if width == 0 || height == 0 || width*height > maxGIFPixels {
		return nil, invalid("GIF", "image size %dx%d", width, height)
	}

	if flags&0x80 != 0 {
		palette, err = r.readBytes(3 * (2 << (flags & 7)))
		if err != nil {
			return nil, err
		}
	}
	if palette == nil {
		return nil, invalid("GIF", "no colour table")
	}

	litWidth, err := r.readByte()
	if err != nil {
		return nil, err
	}
	compressed, err := r.subBlocks()
	if err != nil {
		o.logger.Debug("gif: image data truncated", "error", err)
	}

	dec, err := newLZWDecoder(int(litWidth), compressed)
	if err != nil {
		return nil, invalid("GIF", "%v", err)
	}
	pixels, err := dec.decode(width * height)
	if err != nil {
		return nil, invalid("GIF", "%v", err)
	}
	if len(pixels) < width*(height-1) {
		return nil, invalid("GIF", "image data ends after %d of %d pixels", len(pixels), width*height)
	}
	if len(pixels) < width*height {
		o.logger.Debug("gif: short image data", "got", len(pixels), "want", width*height)
		pixels = append(pixels, make([]byte, width*height-len(pixels))...)
	}
	if flags&0x40 != 0 {
		pixels = deinterlaceGIF(pixels, width, height)
	}

	im := &Image{
		Width:            width,
		Height:           height,
		BitsPerComponent: 8,
		ColorSpace:       indexed(core.Name("DeviceRGB"), palette, len(palette)/3),
		Data:             pixels,
	}
	if transparent >= 0 && transparent < len(palette)/3 {
		im.Mask = []int{transparent, transparent}
	}
	return im, nil
}

// deinterlaceGIF puts the rows of an interlaced image, stored in four
// passes, into top to bottom order.
func deinterlaceGIF(pixels []byte, width, height int) []byte {
	passes := []struct{ start, step int }{{0, 8}, {4, 8}, {2, 4}, {1, 2}}
	out := make([]byte, len(pixels))
	src := 0
	for _, p := range passes {
		for y := p.start; y < height; y += p.step {
			copy(out[y*width:(y+1)*width], pixels[src*width:(src+1)*width])
			src++
		}
	}
	return out
}
