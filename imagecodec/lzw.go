package imagecodec

import "fmt"

const (
	lzwMaxWidth = 12
	lzwMaxCodes = 1 << lzwMaxWidth
)

// lzwDecoder decodes the variable-width LZW codes of GIF image data. Codes
// are packed least significant bit first. A decoder holds the dictionary
// of a single image and is not reused.
type lzwDecoder struct {
	litWidth int
	clear    int
	eoi      int

	width int // current code width in bits
	next  int // next dictionary slot

	prefix [lzwMaxCodes]uint16
	suffix [lzwMaxCodes]byte
	length [lzwMaxCodes]uint16

	// bit reader
	data  []byte
	pos   int
	bits  uint32
	nbits int
}

func newLZWDecoder(litWidth int, data []byte) (*lzwDecoder, error) {
	if litWidth < 2 || litWidth > 8 {
		return nil, fmt.Errorf("invalid LZW minimum code size %d", litWidth)
	}
	d := &lzwDecoder{
		litWidth: litWidth,
		clear:    1 << litWidth,
		eoi:      1<<litWidth + 1,
		data:     data,
	}
	for i := 0; i < d.clear; i++ {
		d.suffix[i] = byte(i)
		d.length[i] = 1
	}
	d.reset()
	return d, nil
}

func (d *lzwDecoder) reset() {
	d.width = d.litWidth + 1
	d.next = d.eoi + 1
}

// readCode returns the next code, or false at the end of the data.
func (d *lzwDecoder) readCode() (int, bool) {
	for d.nbits < d.width {
		if d.pos >= len(d.data) {
			return 0, false
		}
		d.bits |= uint32(d.data[d.pos]) << d.nbits
		d.pos++
		d.nbits += 8
	}
	code := int(d.bits & (1<<d.width - 1))
	d.bits >>= d.width
	d.nbits -= d.width
	return code, true
}

// add appends a dictionary entry and widens the codes once the slot
// just filled is the last one the current width can address.
func (d *lzwDecoder) add(prefix int, c byte) {
	if d.next >= lzwMaxCodes {
		return
	}
	d.prefix[d.next] = uint16(prefix)
	d.suffix[d.next] = c
	d.length[d.next] = d.length[prefix] + 1
	if d.next == (1<<d.width)-1 && d.width < lzwMaxWidth {
		d.width++
	}
	d.next++
}

// appendString appends the expansion of code to out.
func (d *lzwDecoder) appendString(out []byte, code int) []byte {
	n := int(d.length[code])
	start := len(out)
	for i := 0; i < n; i++ {
		out = append(out, 0)
	}
	for i := start + n - 1; i >= start; i-- {
		out[i] = d.suffix[code]
		code = int(d.prefix[code])
	}
	return out
}

// first returns the first byte of the expansion of code.
func (d *lzwDecoder) first(code int) byte {
	for int(d.length[code]) > 1 {
		code = int(d.prefix[code])
	}
	return d.suffix[code]
}

// decode returns up to limit bytes. A missing end-of-information code is
// tolerated, since many encoders omit it.
func (d *lzwDecoder) decode(limit int) ([]byte, error) {
	// the declared size is not trusted for the initial allocation
	out := make([]byte, 0, min(limit, 8*len(d.data)+64))
	prev := -1
	for len(out) < limit {
		code, ok := d.readCode()
		if !ok {
			break
		}
		switch {
		case code == d.clear:
			d.reset()
			prev = -1
			continue
		case code == d.eoi:
			return out, nil
		case prev == -1:
			if code > d.clear {
				return out, fmt.Errorf("LZW code %d before any literal", code)
			}
			out = d.appendString(out, code)
		case code < d.next:
			out = d.appendString(out, code)
			d.add(prev, d.first(code))
		case code == d.next:
			c := d.first(prev)
			d.add(prev, c)
			out = d.appendString(out, code)
		default:
			return out, fmt.Errorf("LZW code %d out of range (next %d)", code, d.next)
		}
		prev = code
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
