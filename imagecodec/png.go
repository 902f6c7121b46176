package imagecodec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"seehuhn.de/go/icc"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/internal/filters"
)

// PNG colour types.
const (
	pngGray      = 0
	pngRGB       = 2
	pngIndexed   = 3
	pngGrayAlpha = 4
	pngRGBA      = 6
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// adam7 lists the passes of Adam7 interlacing as
// (row offset, row step, column offset, column step).
var adam7 = [7][4]int{
	{0, 8, 0, 8},
	{0, 8, 4, 8},
	{4, 8, 0, 4},
	{0, 4, 2, 4},
	{2, 4, 0, 2},
	{0, 2, 1, 2},
	{1, 2, 0, 1},
}

// fixed D65 white point and sRGB primaries used for CalRGB/CalGray
var (
	d65WhitePoint = core.Array{core.Real(0.9505), core.Real(1), core.Real(1.089)}
	srgbMatrix    = core.Array{
		core.Real(0.4124), core.Real(0.2126), core.Real(0.0193),
		core.Real(0.3576), core.Real(0.7152), core.Real(0.1192),
		core.Real(0.1805), core.Real(0.0722), core.Real(0.9505),
	}
)

type pngDecoder struct {
	o *options

	width, height int
	depth         int
	colorType     int
	interlaced    bool

	palette []byte
	trns    []byte
	gamma   float64
	iccCS   core.Object
	idat    bytes.Buffer
}

// DecodePNG converts a PNG file. Scanline filters and Adam7 interlacing are
// undone, an alpha channel is split into a soft mask (16-bit alpha is cut
// to its high byte), tRNS becomes a colour key mask, and gAMA or iCCP set
// a calibrated or ICC based colour space.
func DecodePNG(data []byte, opts ...Option) (*Image, error) {
	d := &pngDecoder{o: newOptions(opts), gamma: 1}
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, invalid("PNG", "missing signature")
	}
	if err := d.readChunks(data[len(pngSignature):]); err != nil {
		return nil, err
	}
	if d.width == 0 {
		return nil, invalid("PNG", "missing IHDR chunk")
	}
	if d.colorType == pngIndexed && d.palette == nil {
		return nil, invalid("PNG", "indexed image without PLTE chunk")
	}

	raw, err := filters.FlateDecode(d.idat.Bytes(), nil)
	if err != nil {
		return nil, invalid("PNG", "image data: %v", err)
	}
	pixels, err := d.reconstruct(raw)
	if err != nil {
		return nil, err
	}
	return d.build(pixels), nil
}

func (d *pngDecoder) readChunks(data []byte) error {
	be := binary.BigEndian
	for len(data) >= 12 {
		n := int(be.Uint32(data))
		if n < 0 || 12+n > len(data) {
			return invalid("PNG", "chunk length %d exceeds data", n)
		}
		typ := string(data[4:8])
		body := data[8 : 8+n]
		if crc := be.Uint32(data[8+n:]); crc != crc32.ChecksumIEEE(data[4:8+n]) {
			d.o.logger.Debug("png: checksum mismatch", "chunk", typ)
		}
		data = data[12+n:]

		switch typ {
		case "IHDR":
			if err := d.readHeader(body); err != nil {
				return err
			}
		case "PLTE":
			d.palette = body
		case "tRNS":
			d.trns = body
		case "gAMA":
			if len(body) == 4 {
				if v := be.Uint32(body); v > 0 {
					d.gamma = 100000 / float64(v)
				}
			}
		case "iCCP":
			d.readICC(body)
		case "IDAT":
			d.idat.Write(body)
		case "IEND":
			return nil
		}
	}
	if d.idat.Len() == 0 {
		return invalid("PNG", "missing IDAT chunk")
	}
	d.o.logger.Debug("png: missing IEND chunk")
	return nil
}

func (d *pngDecoder) readHeader(body []byte) error {
	if len(body) != 13 {
		return invalid("PNG", "IHDR chunk of %d bytes", len(body))
	}
	be := binary.BigEndian
	d.width = int(be.Uint32(body))
	d.height = int(be.Uint32(body[4:]))
	d.depth = int(body[8])
	d.colorType = int(body[9])
	if d.width <= 0 || d.height <= 0 || d.width > 1<<24 || d.height > 1<<24 {
		return invalid("PNG", "image size %dx%d", d.width, d.height)
	}
	if body[10] != 0 || body[11] != 0 {
		return unsupported("PNG", "compression method %d, filter method %d", body[10], body[11])
	}
	switch body[12] {
	case 0:
	case 1:
		d.interlaced = true
	default:
		return unsupported("PNG", "interlace method %d", body[12])
	}

	valid := false
	switch d.colorType {
	case pngGray:
		valid = d.depth == 1 || d.depth == 2 || d.depth == 4 || d.depth == 8 || d.depth == 16
	case pngIndexed:
		valid = d.depth == 1 || d.depth == 2 || d.depth == 4 || d.depth == 8
	case pngRGB, pngGrayAlpha, pngRGBA:
		valid = d.depth == 8 || d.depth == 16
	}
	if !valid {
		return unsupported("PNG", "colour type %d with bit depth %d", d.colorType, d.depth)
	}
	return nil
}

// readICC keeps an embedded profile whose colour space matches the image.
func (d *pngDecoder) readICC(body []byte) {
	i := bytes.IndexByte(body, 0)
	if i < 0 || i+2 > len(body) || body[i+1] != 0 {
		d.o.logger.Debug("png: malformed iCCP chunk")
		return
	}
	profile, err := filters.FlateDecode(body[i+2:], nil)
	if err != nil {
		d.o.logger.Debug("png: unreadable ICC profile", "error", err)
		return
	}
	cs, err := iccColorSpace(profile)
	if err != nil {
		d.o.logger.Debug("png: invalid ICC profile", "error", err)
		return
	}
	d.iccCS = cs
}

// iccColorSpace checks profile and returns an /ICCBased colour space for it.
func iccColorSpace(profile []byte) (core.Array, error) {
	p, err := icc.Decode(profile)
	if err != nil {
		return nil, err
	}
	n := p.ColorSpace.NumComponents()
	if n != 1 && n != 3 && n != 4 {
		return nil, unsupported("ICC", "%d colour components", n)
	}
	dict := core.NewDict()
	dict.Set("N", core.Int(n))
	stream, err := core.EncodeFlate(dict, profile)
	if err != nil {
		return nil, err
	}
	return core.Array{core.Name("ICCBased"), stream}, nil
}

// channels returns the number of samples per pixel.
func (d *pngDecoder) channels() int {
	switch d.colorType {
	case pngRGB:
		return 3
	case pngGrayAlpha:
		return 2
	case pngRGBA:
		return 4
	default:
		return 1
	}
}

func (d *pngDecoder) bitsPerPixel() int {
	return d.channels() * d.depth
}

// filterStride returns the byte distance used by the Sub, Average and
// Paeth filters.
func (d *pngDecoder) filterStride() int {
	return max(1, d.bitsPerPixel()/8)
}

// reconstruct undoes the scanline filters and interlacing. The result
// holds height rows of (width*bitsPerPixel+7)/8 bytes.
func (d *pngDecoder) reconstruct(raw []byte) ([]byte, error) {
	rowBytes := (d.width*d.bitsPerPixel() + 7) / 8
	if !d.interlaced {
		return d.unfilterPass(raw, d.height, rowBytes)
	}

	out := make([]byte, rowBytes*d.height)
	for _, p := range adam7 {
		rowOff, rowStep, colOff, colStep := p[0], p[1], p[2], p[3]
		pw := (d.width - colOff + colStep - 1) / colStep
		ph := (d.height - rowOff + rowStep - 1) / rowStep
		if pw <= 0 || ph <= 0 {
			continue
		}
		passRow := (pw*d.bitsPerPixel() + 7) / 8
		need := (passRow + 1) * ph
		if len(raw) < need {
			return nil, invalid("PNG", "interlaced image data truncated")
		}
		pass, err := d.unfilterPass(raw[:need], ph, passRow)
		if err != nil {
			return nil, err
		}
		raw = raw[need:]

		for y := 0; y < ph; y++ {
			src := pass[y*passRow : (y+1)*passRow]
			dst := out[(rowOff+y*rowStep)*rowBytes:]
			for x := 0; x < pw; x++ {
				d.copyPixel(dst, colOff+x*colStep, src, x)
			}
		}
	}
	return out, nil
}

// unfilterPass reconstructs height filtered scanlines of rowBytes bytes.
func (d *pngDecoder) unfilterPass(raw []byte, height, rowBytes int) ([]byte, error) {
	if len(raw) < (rowBytes+1)*height {
		return nil, invalid("PNG", "image data truncated: %d of %d bytes", len(raw), (rowBytes+1)*height)
	}
	out := make([]byte, rowBytes*height)
	var prev []byte
	for y := 0; y < height; y++ {
		line := raw[y*(rowBytes+1):]
		cur := out[y*rowBytes : (y+1)*rowBytes]
		copy(cur, line[1:rowBytes+1])
		if err := filters.Unfilter(line[0], cur, prev, d.filterStride()); err != nil {
			return nil, invalid("PNG", "row %d: %v", y, err)
		}
		prev = cur
	}
	return out, nil
}

// copyPixel copies pixel sx of the row src to pixel dx of the row dst.
// Pixels smaller than a byte are moved bit by bit.
func (d *pngDecoder) copyPixel(dst []byte, dx int, src []byte, sx int) {
	bits := d.bitsPerPixel()
	if bits >= 8 {
		n := bits / 8
		copy(dst[dx*n:dx*n+n], src[sx*n:sx*n+n])
		return
	}
	mask := byte(1<<bits - 1)
	sbit := sx * bits
	v := (src[sbit/8] >> (8 - bits - sbit%8)) & mask
	dbit := dx * bits
	shift := 8 - bits - dbit%8
	dst[dbit/8] = dst[dbit/8]&^(mask<<shift) | v<<shift
}

// build assembles the image from the reconstructed samples.
func (d *pngDecoder) build(pixels []byte) *Image {
	im := &Image{
		Width:            d.width,
		Height:           d.height,
		BitsPerComponent: d.depth,
		ColorSpace:       d.colorSpace(),
		Data:             pixels,
	}

	switch d.colorType {
	case pngGrayAlpha, pngRGBA:
		im.Data, im.SMask = d.splitAlpha(pixels)
	case pngGray:
		if len(d.trns) >= 2 {
			v := int(binary.BigEndian.Uint16(d.trns))
			im.Mask = []int{v, v}
		}
	case pngRGB:
		if len(d.trns) >= 6 {
			be := binary.BigEndian
			r, g, b := int(be.Uint16(d.trns)), int(be.Uint16(d.trns[2:])), int(be.Uint16(d.trns[4:]))
			im.Mask = []int{r, r, g, g, b, b}
		}
	case pngIndexed:
		d.indexedTransparency(im)
	}
	return im
}

func (d *pngDecoder) colorSpace() core.Object {
	gray := d.colorType == pngGray || d.colorType == pngGrayAlpha
	want := 3
	if gray {
		want = 1
	}

	var base core.Object
	switch {
	case d.iccCS != nil && d.iccComponents() == want:
		base = d.iccCS
	case d.gamma != 1:
		dict := core.NewDict()
		dict.Set("WhitePoint", d65WhitePoint)
		if gray {
			dict.Set("Gamma", core.Real(d.gamma))
			base = core.Array{core.Name("CalGray"), dict}
		} else {
			g := core.Real(d.gamma)
			dict.Set("Gamma", core.Array{g, g, g})
			dict.Set("Matrix", srgbMatrix)
			base = core.Array{core.Name("CalRGB"), dict}
		}
	case gray:
		base = core.Name("DeviceGray")
	default:
		base = core.Name("DeviceRGB")
	}

	if d.colorType == pngIndexed {
		entries := min(len(d.palette)/3, 1<<d.depth)
		return indexed(base, d.palette[:entries*3], entries)
	}
	return base
}

func (d *pngDecoder) iccComponents() int {
	arr, ok := d.iccCS.(core.Array)
	if !ok {
		return 0
	}
	s, ok := arr.Get(1).(*core.Stream)
	if !ok {
		return 0
	}
	n, _ := s.Dict.GetInt("N")
	return int(n)
}

// splitAlpha separates the trailing alpha sample of every pixel into an
// 8-bit soft mask.
func (d *pngDecoder) splitAlpha(pixels []byte) ([]byte, *Image) {
	colors := d.channels() - 1
	sampleBytes := d.depth / 8
	pixelBytes := (colors + 1) * sampleBytes
	n := d.width * d.height

	color := make([]byte, 0, n*colors*sampleBytes)
	alpha := make([]byte, 0, n)
	for i := 0; i+pixelBytes <= len(pixels); i += pixelBytes {
		color = append(color, pixels[i:i+colors*sampleBytes]...)
		// the high byte of a 16-bit sample is its value divided by 256
		alpha = append(alpha, pixels[i+colors*sampleBytes])
	}
	return color, grayMask(d.width, d.height, alpha)
}

// indexedTransparency applies palette alpha from tRNS. A single fully
// transparent entry with all others opaque becomes a colour key mask;
// anything else becomes a soft mask.
func (d *pngDecoder) indexedTransparency(im *Image) {
	if len(d.trns) == 0 {
		return
	}
	key := -1
	simple := true
	for i, a := range d.trns {
		switch a {
		case 0xFF:
		case 0:
			if key >= 0 {
				simple = false
			}
			key = i
		default:
			simple = false
		}
	}
	if simple {
		if key >= 0 {
			im.Mask = []int{key, key}
		}
		return
	}

	rowBytes := (d.width*d.depth + 7) / 8
	mask := byte(1<<d.depth - 1)
	alpha := make([]byte, 0, d.width*d.height)
	for y := 0; y < d.height; y++ {
		row := im.Data[y*rowBytes:]
		for x := 0; x < d.width; x++ {
			bit := x * d.depth
			idx := int(row[bit/8]>>(8-d.depth-bit%8)) & int(mask)
			a := byte(0xFF)
			if idx < len(d.trns) {
				a = d.trns[idx]
			}
			alpha = append(alpha, a)
		}
	}
	im.SMask = grayMask(d.width, d.height, alpha)
}
