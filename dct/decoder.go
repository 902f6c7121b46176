package dct

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"log/slog"
	"sort"
)

// Config describes a JPEG image without decoding its samples.
type Config struct {
	Width       int
	Height      int
	Components  int
	Progressive bool

	// ColorTransform is the transform flag of an Adobe APP14 segment
	// (0 none, 1 YCbCr, 2 YCCK), or -1 if the segment is absent.
	ColorTransform int

	// ICCProfile is the embedded colour profile reassembled from its APP2
	// chunks, or nil.
	ICCProfile []byte
}

// Option configures a decode.
type Option func(*decoder)

// WithLogger sets the logger that receives notes about skipped segments
// and tolerated damage.
func WithLogger(logger *slog.Logger) Option {
	return func(d *decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// JPEG markers.
const (
	markerSOF0  = 0xC0
	markerSOF1  = 0xC1
	markerSOF2  = 0xC2
	markerDHT   = 0xC4
	markerDAC   = 0xCC
	markerRST0  = 0xD0
	markerRST7  = 0xD7
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerDQT   = 0xDB
	markerDRI   = 0xDD
	markerAPP0  = 0xE0
	markerAPP2  = 0xE2
	markerAPP14 = 0xEE
	markerTEM   = 0x01
)

type component struct {
	id   uint8
	h, v int // sampling factors
	tq   int // quantization table

	// blocks per line and per column, padded to whole MCUs
	bx, by int
	blocks []block

	// set per scan
	td, ta int
	pred   int32
}

type decoder struct {
	logger *slog.Logger

	data  []byte
	pos   int
	acc   uint32
	nbits int

	frame        bool
	progressive  bool
	width        int
	height       int
	comps        []*component
	hmax, vmax   int
	mcusX, mcusY int

	quant           [4][64]uint16 // natural order
	dc, ac          [4]huffman
	restartInterval int
	eobRun          int32
	scans           int

	adobe     bool
	transform int
	icc       map[int][]byte
}

func newDecoder(data []byte, opts []Option) *decoder {
	d := &decoder{
		logger:    slog.New(slog.DiscardHandler),
		data:      data,
		transform: -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeConfig reads the frame header and the segments before the first
// scan.
func DecodeConfig(data []byte) (Config, error) {
	d := newDecoder(data, nil)
	if err := d.parse(true); err != nil {
		return Config{}, err
	}
	return d.config(), nil
}

// Decode decodes a baseline or progressive JPEG stream. Grey images are
// returned as *image.Gray, three component images as *image.RGBA and four
// component images as *image.CMYK.
func Decode(data []byte, opts ...Option) (image.Image, error) {
	d := newDecoder(data, opts)
	if err := d.parse(false); err != nil {
		return nil, err
	}
	if d.scans == 0 {
		return nil, formatError("no image data")
	}
	return d.render(), nil
}

func (d *decoder) config() Config {
	c := Config{
		Width:          d.width,
		Height:         d.height,
		Components:     len(d.comps),
		Progressive:    d.progressive,
		ColorTransform: -1,
	}
	if d.adobe {
		c.ColorTransform = d.transform
	}
	if len(d.icc) > 0 {
		seqs := make([]int, 0, len(d.icc))
		for seq := range d.icc {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		for _, seq := range seqs {
			c.ICCProfile = append(c.ICCProfile, d.icc[seq]...)
		}
	}
	return c
}

// parse walks the marker segments. With configOnly it stops at the first
// scan.
func (d *decoder) parse(configOnly bool) error {
	if len(d.data) < 2 || d.data[0] != 0xFF || d.data[1] != markerSOI {
		return formatError("missing SOI marker")
	}
	d.pos = 2

	for {
		m, err := d.nextMarker()
		if err != nil {
			if d.scans > 0 && !configOnly {
				d.logger.Debug("dct: image data ends without EOI", "scans", d.scans)
				return nil
			}
			return err
		}

		switch {
		case m == markerEOI:
			if !d.frame {
				return formatError("missing SOF marker")
			}
			return nil
		case m == markerSOI, m == markerTEM, m >= markerRST0 && m <= markerRST7:
			continue
		}

		seg, err := d.segment()
		if err != nil {
			return err
		}

		switch {
		case m == markerSOF0, m == markerSOF1:
			err = d.readSOF(seg, false)
		case m == markerSOF2:
			err = d.readSOF(seg, true)
		case m == markerDHT:
			err = d.readDHT(seg)
		case m == markerDAC:
			err = UnsupportedError("arithmetic coding")
		case m >= 0xC3 && m <= 0xCF:
			err = UnsupportedError(fmt.Sprintf("frame type SOF%d", m-markerSOF0))
		case m == markerDQT:
			err = d.readDQT(seg)
		case m == markerDRI:
			err = d.readDRI(seg)
		case m == markerAPP14:
			d.readAdobe(seg)
		case m == markerAPP2:
			d.readICC(seg)
		case m == markerSOS:
			if !d.frame {
				return formatError("scan before frame header")
			}
			if configOnly {
				return nil
			}
			err = d.readScan(seg)
		default:
			// APP0 (JFIF), other application segments and comments carry
			// nothing needed for decoding
			if m != markerAPP0 {
				d.logger.Debug("dct: skipping segment", "marker", fmt.Sprintf("0x%02X", m), "length", len(seg))
			}
		}
		if err != nil {
			return err
		}
	}
}

// nextMarker returns the next marker code, skipping fill bytes and any
// stray data before it.
func (d *decoder) nextMarker() (byte, error) {
	skipped := 0
	for d.pos+1 < len(d.data) {
		if d.data[d.pos] != 0xFF {
			d.pos++
			skipped++
			continue
		}
		m := d.data[d.pos+1]
		switch m {
		case 0xFF:
			d.pos++
			continue
		case 0x00:
			d.pos += 2
			skipped += 2
			continue
		}
		d.pos += 2
		if skipped > 0 {
			d.logger.Debug("dct: skipped stray bytes before marker", "count", skipped)
		}
		return m, nil
	}
	return 0, formatError("missing EOI marker")
}

// segment returns the payload of the marker segment at the current
// position and moves past it.
func (d *decoder) segment() ([]byte, error) {
	if d.pos+2 > len(d.data) {
		return nil, formatError("truncated segment length")
	}
	n := int(binary.BigEndian.Uint16(d.data[d.pos:]))
	if n < 2 || d.pos+n > len(d.data) {
		return nil, formatError("truncated segment")
	}
	seg := d.data[d.pos+2 : d.pos+n]
	d.pos += n
	return seg, nil
}

func (d *decoder) readSOF(seg []byte, progressive bool) error {
	if d.frame {
		return formatError("multiple frame headers")
	}
	if len(seg) < 6 {
		return formatError("short SOF segment")
	}
	if seg[0] != 8 {
		return UnsupportedError(fmt.Sprintf("%d-bit precision", seg[0]))
	}
	d.height = int(binary.BigEndian.Uint16(seg[1:]))
	d.width = int(binary.BigEndian.Uint16(seg[3:]))
	if d.width == 0 {
		return formatError("zero image width")
	}
	if d.height == 0 {
		return UnsupportedError("DNL height")
	}

	n := int(seg[5])
	switch n {
	case 1, 3, 4:
	default:
		return UnsupportedError(fmt.Sprintf("%d colour components", n))
	}
	if len(seg) < 6+3*n {
		return formatError("short SOF segment")
	}

	d.comps = make([]*component, n)
	d.hmax, d.vmax = 1, 1
	for i := range d.comps {
		p := seg[6+3*i:]
		c := &component{id: p[0], h: int(p[1] >> 4), v: int(p[1] & 15), tq: int(p[2])}
		if c.h < 1 || c.h > 4 || c.v < 1 || c.v > 4 {
			return formatError("bad sampling factor")
		}
		if c.tq > 3 {
			return formatError("bad quantization table selector")
		}
		for _, prev := range d.comps[:i] {
			if prev.id == c.id {
				return formatError("repeated component identifier")
			}
		}
		if n == 1 {
			// a single component is never interleaved
			c.h, c.v = 1, 1
		}
		d.hmax = max(d.hmax, c.h)
		d.vmax = max(d.vmax, c.v)
		d.comps[i] = c
	}

	d.mcusX = (d.width + 8*d.hmax - 1) / (8 * d.hmax)
	d.mcusY = (d.height + 8*d.vmax - 1) / (8 * d.vmax)
	for _, c := range d.comps {
		c.bx = d.mcusX * c.h
		c.by = d.mcusY * c.v
		c.blocks = make([]block, c.bx*c.by)
	}
	d.frame = true
	d.progressive = progressive
	return nil
}

func (d *decoder) readDHT(seg []byte) error {
	for len(seg) > 0 {
		if len(seg) < 17 {
			return formatError("short DHT segment")
		}
		class, id := seg[0]>>4, seg[0]&15
		if class > 1 || id > 3 {
			return formatError("bad Huffman table selector")
		}
		var counts [16]uint8
		copy(counts[:], seg[1:17])
		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if len(seg) < 17+total {
			return formatError("short DHT segment")
		}
		table := &d.dc[id]
		if class == 1 {
			table = &d.ac[id]
		}
		if err := table.build(&counts, seg[17:17+total]); err != nil {
			return err
		}
		seg = seg[17+total:]
	}
	return nil
}

func (d *decoder) readDQT(seg []byte) error {
	for len(seg) > 0 {
		precision, id := seg[0]>>4, seg[0]&15
		if id > 3 {
			return formatError("bad quantization table selector")
		}
		q := &d.quant[id]
		switch precision {
		case 0:
			if len(seg) < 65 {
				return formatError("short DQT segment")
			}
			for i := 0; i < 64; i++ {
				q[unzig[i]] = uint16(seg[1+i])
			}
			seg = seg[65:]
		case 1:
			if len(seg) < 129 {
				return formatError("short DQT segment")
			}
			for i := 0; i < 64; i++ {
				q[unzig[i]] = binary.BigEndian.Uint16(seg[1+2*i:])
			}
			seg = seg[129:]
		default:
			return formatError("bad quantization table precision")
		}
	}
	return nil
}

func (d *decoder) readDRI(seg []byte) error {
	if len(seg) != 2 {
		return formatError("bad DRI segment")
	}
	d.restartInterval = int(binary.BigEndian.Uint16(seg))
	return nil
}

func (d *decoder) readAdobe(seg []byte) {
	if len(seg) >= 12 && bytes.HasPrefix(seg, []byte("Adobe")) {
		d.adobe = true
		d.transform = int(seg[11])
	}
}

func (d *decoder) readICC(seg []byte) {
	const tag = "ICC_PROFILE\x00"
	if len(seg) < len(tag)+2 || !bytes.HasPrefix(seg, []byte(tag)) {
		return
	}
	if d.icc == nil {
		d.icc = make(map[int][]byte)
	}
	d.icc[int(seg[len(tag)])] = seg[len(tag)+2:]
}

func (d *decoder) readScan(seg []byte) error {
	if len(seg) < 1 {
		return formatError("short SOS segment")
	}
	n := int(seg[0])
	if n < 1 || n > 4 || len(seg) != 4+2*n {
		return formatError("bad SOS segment")
	}

	scan := make([]*component, 0, n)
	for i := 0; i < n; i++ {
		id, tables := seg[1+2*i], seg[2+2*i]
		var c *component
		for _, cand := range d.comps {
			if cand.id == id {
				c = cand
			}
		}
		if c == nil {
			return formatError("scan names an unknown component")
		}
		for _, prev := range scan {
			if prev == c {
				return formatError("repeated component in scan")
			}
		}
		c.td, c.ta = int(tables>>4), int(tables&15)
		if c.td > 3 || c.ta > 3 {
			return formatError("bad Huffman table selector")
		}
		scan = append(scan, c)
	}

	p := seg[1+2*n:]
	ss, se, ah, al := int(p[0]), int(p[1]), int(p[2]>>4), int(p[2]&15)
	if d.progressive {
		switch {
		case ss > se, se > 63:
			return formatError("bad spectral selection")
		case ss == 0 && se != 0:
			return formatError("DC scan with AC coefficients")
		case ss > 0 && n != 1:
			return formatError("interleaved AC scan")
		case al > 13:
			return formatError("bad successive approximation")
		}
	} else {
		ss, se, ah, al = 0, 63, 0, 0
	}

	if err := d.decodeScan(scan, ss, se, ah, al); err != nil {
		return err
	}
	d.alignBits()
	d.scans++
	return nil
}

// decodeScan decodes the entropy coded data of one scan into the
// coefficient blocks of its components.
func (d *decoder) decodeScan(scan []*component, ss, se, ah, al int) error {
	d.eobRun = 0
	d.nbits = 0
	for _, c := range scan {
		c.pred = 0
	}

	// a non-interleaved scan covers only the blocks holding image data
	perLine, count := d.mcusX, d.mcusX*d.mcusY
	if len(scan) == 1 {
		c := scan[0]
		w := ((d.width*c.h+d.hmax-1)/d.hmax + 7) / 8
		h := ((d.height*c.v+d.vmax-1)/d.vmax + 7) / 8
		perLine, count = w, w*h
	}

	nextRST := 0
	for m := 0; m < count; m++ {
		if d.restartInterval > 0 && m > 0 && m%d.restartInterval == 0 {
			if err := d.restart(nextRST); err != nil {
				return err
			}
			nextRST = (nextRST + 1) & 7
			for _, c := range scan {
				c.pred = 0
			}
			d.eobRun = 0
		}

		mx, my := m%perLine, m/perLine
		if len(scan) == 1 {
			c := scan[0]
			if err := d.decodeBlock(c, &c.blocks[my*c.bx+mx], ss, se, ah, al); err != nil {
				return err
			}
			continue
		}
		for _, c := range scan {
			for v := 0; v < c.v; v++ {
				for h := 0; h < c.h; h++ {
					bx, by := mx*c.h+h, my*c.v+v
					if err := d.decodeBlock(c, &c.blocks[by*c.bx+bx], ss, se, ah, al); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// restart consumes the RSTn marker that must follow every restart
// interval.
func (d *decoder) restart(expected int) error {
	d.alignBits()
	for d.pos+1 < len(d.data) && d.data[d.pos] == 0xFF && d.data[d.pos+1] == 0xFF {
		d.pos++
	}
	if d.pos+1 >= len(d.data) || d.data[d.pos] != 0xFF || d.data[d.pos+1] != markerRST0+byte(expected) {
		return FormatError(fmt.Sprintf("restart marker mismatch: expected RST%d", expected))
	}
	d.pos += 2
	return nil
}

func (d *decoder) decodeBlock(c *component, b *block, ss, se, ah, al int) error {
	if !d.progressive {
		return d.decodeBaseline(c, b)
	}
	if ss == 0 {
		if ah == 0 {
			t, err := d.decodeHuffman(&d.dc[c.td])
			if err != nil {
				return err
			}
			diff, err := d.receiveExtend(t)
			if err != nil {
				return err
			}
			c.pred += diff
			b[0] = c.pred << al
			return nil
		}
		bit, err := d.readBit()
		if err != nil {
			return err
		}
		if bit != 0 {
			b[0] |= 1 << al
		}
		return nil
	}
	if ah == 0 {
		return d.decodeACFirst(c, b, ss, se, al)
	}
	return d.refineAC(c, b, ss, se, al)
}

func (d *decoder) decodeBaseline(c *component, b *block) error {
	t, err := d.decodeHuffman(&d.dc[c.td])
	if err != nil {
		return err
	}
	diff, err := d.receiveExtend(t)
	if err != nil {
		return err
	}
	c.pred += diff
	b[0] = c.pred

	for k := 1; k < 64; k++ {
		rs, err := d.decodeHuffman(&d.ac[c.ta])
		if err != nil {
			return err
		}
		r, s := int(rs>>4), rs&15
		if s == 0 {
			if r != 15 {
				break
			}
			k += 15
			continue
		}
		k += r
		if k > 63 {
			return formatError("too many coefficients")
		}
		v, err := d.receiveExtend(s)
		if err != nil {
			return err
		}
		b[unzig[k]] = v
	}
	return nil
}

func (d *decoder) decodeACFirst(c *component, b *block, ss, se, al int) error {
	if d.eobRun > 0 {
		d.eobRun--
		return nil
	}
	for k := ss; k <= se; k++ {
		rs, err := d.decodeHuffman(&d.ac[c.ta])
		if err != nil {
			return err
		}
		r, s := int(rs>>4), rs&15
		if s == 0 {
			if r < 15 {
				d.eobRun = 1<<r - 1
				if r > 0 {
					bits, err := d.readBits(r)
					if err != nil {
						return err
					}
					d.eobRun += bits
				}
				break
			}
			k += 15
			continue
		}
		k += r
		if k > se {
			return formatError("too many coefficients")
		}
		v, err := d.receiveExtend(s)
		if err != nil {
			return err
		}
		b[unzig[k]] = v << al
	}
	return nil
}

func (d *decoder) refineAC(c *component, b *block, ss, se, al int) error {
	delta := int32(1) << al
	k := ss
	if d.eobRun == 0 {
	loop:
		for ; k <= se; k++ {
			rs, err := d.decodeHuffman(&d.ac[c.ta])
			if err != nil {
				return err
			}
			r, s := int(rs>>4), rs&15

			var z int32
			switch s {
			case 0:
				if r != 15 {
					d.eobRun = 1 << r
					if r > 0 {
						bits, err := d.readBits(r)
						if err != nil {
							return err
						}
						d.eobRun |= bits
					}
					break loop
				}
			case 1:
				z = delta
				bit, err := d.readBit()
				if err != nil {
					return err
				}
				if bit == 0 {
					z = -delta
				}
			default:
				return formatError("bad refinement code")
			}

			k, err = d.refineNonZeroes(b, k, se, r, delta)
			if err != nil {
				return err
			}
			if k > se {
				return formatError("too many coefficients")
			}
			if z != 0 {
				b[unzig[k]] = z
			}
		}
	}
	if d.eobRun > 0 {
		d.eobRun--
		if _, err := d.refineNonZeroes(b, k, se, -1, delta); err != nil {
			return err
		}
	}
	return nil
}

// refineNonZeroes adds a correction bit to every non-zero coefficient from
// index k on, stopping at the zero coefficient that follows nz others.
func (d *decoder) refineNonZeroes(b *block, k, se, nz int, delta int32) (int, error) {
	for ; k <= se; k++ {
		u := unzig[k]
		if b[u] == 0 {
			if nz == 0 {
				break
			}
			nz--
			continue
		}
		bit, err := d.readBit()
		if err != nil {
			return k, err
		}
		if bit == 0 {
			continue
		}
		if b[u] >= 0 {
			b[u] += delta
		} else {
			b[u] -= delta
		}
	}
	return k, nil
}
