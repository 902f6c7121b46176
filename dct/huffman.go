package dct

// huffman is a decoding table built from the code length counts and
// symbol values of a DHT segment.
type huffman struct {
	defined bool
	maxCode [17]int32 // largest code of each length, -1 if none
	valPtr  [17]int32 // index into vals of the first code of each length
	minCode [17]int32
	vals    [256]uint8
}

func (h *huffman) build(counts *[16]uint8, values []byte) error {
	total := 0
	for _, c := range counts {
		total += int(c)
	}
	if total == 0 || total > 256 || total > len(values) {
		return formatError("bad Huffman table")
	}
	*h = huffman{defined: true}
	copy(h.vals[:], values[:total])

	code, k := int32(0), int32(0)
	for l := 1; l <= 16; l++ {
		n := int32(counts[l-1])
		if n == 0 {
			h.maxCode[l] = -1
		} else {
			h.valPtr[l] = k
			h.minCode[l] = code
			code += n
			k += n
			h.maxCode[l] = code - 1
		}
		if code > 1<<l {
			return formatError("over-subscribed Huffman table")
		}
		code <<= 1
	}
	return nil
}

// decodeHuffman reads one symbol.
func (d *decoder) decodeHuffman(h *huffman) (uint8, error) {
	if !h.defined {
		return 0, formatError("use of undefined Huffman table")
	}
	code := int32(0)
	for l := 1; l <= 16; l++ {
		bit, err := d.readBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | int32(bit)
		if code <= h.maxCode[l] {
			return h.vals[h.valPtr[l]+code-h.minCode[l]], nil
		}
	}
	return 0, formatError("bad Huffman code")
}

// readBit returns the next bit of entropy coded data. Stuffed zero bytes
// after 0xFF are dropped; a marker ends the data.
func (d *decoder) readBit() (uint32, error) {
	if d.nbits == 0 {
		if d.pos >= len(d.data) {
			return 0, formatError("truncated scan data")
		}
		b := d.data[d.pos]
		if b == 0xFF {
			if d.pos+1 >= len(d.data) || d.data[d.pos+1] != 0 {
				return 0, formatError("unexpected marker in scan data")
			}
			d.pos++
		}
		d.pos++
		d.acc = uint32(b)
		d.nbits = 8
	}
	d.nbits--
	return (d.acc >> d.nbits) & 1, nil
}

// readBits returns the next n bits, most significant first.
func (d *decoder) readBits(n int) (int32, error) {
	var v int32
	for i := 0; i < n; i++ {
		bit, err := d.readBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | int32(bit)
	}
	return v, nil
}

// receiveExtend reads an s-bit magnitude and sign extends it.
func (d *decoder) receiveExtend(s uint8) (int32, error) {
	if s == 0 {
		return 0, nil
	}
	if s > 16 {
		return 0, formatError("bad coefficient size")
	}
	v, err := d.readBits(int(s))
	if err != nil {
		return 0, err
	}
	if v < 1<<(s-1) {
		v += -1<<s + 1
	}
	return v, nil
}

// alignBits drops the padding bits that end an entropy coded segment.
func (d *decoder) alignBits() {
	d.nbits = 0
}
