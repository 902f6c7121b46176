package reader

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"seehuhn.de/go/icc"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/dct"
)

// ErrUnsupportedImage is matched by errors for image XObjects whose
// encoding or colour space DecodeImage cannot render.
var ErrUnsupportedImage = errors.New("unsupported image")

// ImageInfo describes one image XObject of the document.
type ImageInfo struct {
	Ref              core.IndirectRef
	Width            int
	Height           int
	ColorSpace       string // DeviceGray, DeviceRGB, ICCBased, Indexed, etc.
	Components       int
	BitsPerComponent int
	Filter           string // first filter, empty for raw samples
	ImageMask        bool
	SoftMask         bool
}

// Images lists every image XObject in the file, in object number order.
// Objects that fail to load are skipped and reported through Warnings.
func (r *Reader) Images() ([]ImageInfo, error) {
	var images []ImageInfo
	for _, num := range r.xref.ObjectNumbers() {
		entry, _ := r.xref.Get(num)
		if entry.Type != core.XRefInUse {
			// object streams cannot hold streams
			continue
		}
		obj, err := r.GetObject(num)
		if err != nil {
			r.warn("skipping object %d: %v", num, err)
			continue
		}
		stream, ok := obj.(*core.Stream)
		if !ok {
			continue
		}
		if subtype, _ := stream.Dict.GetName("Subtype"); subtype != "Image" {
			continue
		}

		info, err := r.imageInfo(stream)
		if err != nil {
			r.warn("skipping image %d: %v", num, err)
			continue
		}
		info.Ref = core.IndirectRef{Number: num, Generation: entry.Generation}
		images = append(images, info)
	}
	return images, nil
}

func (r *Reader) imageInfo(stream *core.Stream) (ImageInfo, error) {
	dict := stream.Dict
	width, height, err := r.imageSize(dict)
	if err != nil {
		return ImageInfo{}, err
	}
	info := ImageInfo{
		Width:            width,
		Height:           height,
		BitsPerComponent: 8,
		Components:       1,
		SoftMask:         dict.Has("SMask"),
	}
	if bpc, ok := r.dictInt(dict, "BitsPerComponent"); ok {
		info.BitsPerComponent = bpc
	}
	if names, _, err := stream.Filters(); err == nil && len(names) > 0 {
		info.Filter = string(names[0])
	}
	if mask, _ := dict.GetBool("ImageMask"); mask {
		info.ImageMask = true
		info.BitsPerComponent = 1
		info.ColorSpace = "ImageMask"
		return info, nil
	}

	cs, err := r.parseColorSpace(dict.Get("ColorSpace"))
	if err != nil {
		// JPEG 2000 images may carry their colour space internally
		info.ColorSpace = "Unknown"
		return info, nil
	}
	info.ColorSpace = cs.name
	info.Components = cs.n
	return info, nil
}

func (r *Reader) imageSize(dict *core.Dict) (int, int, error) {
	width, ok1 := r.dictInt(dict, "Width")
	height, ok2 := r.dictInt(dict, "Height")
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("image missing Width or Height")
	}
	if width <= 0 || height <= 0 || width > 1<<16 || height > 1<<16 {
		return 0, 0, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	return width, height, nil
}

// dictInt reads an integer that may be stored indirectly.
func (r *Reader) dictInt(dict *core.Dict, key string) (int, bool) {
	obj, err := r.Resolve(dict.Get(key))
	if err != nil {
		return 0, false
	}
	switch v := obj.(type) {
	case core.Int:
		return int(v), true
	case core.Real:
		return int(v), true
	}
	return 0, false
}

type colorModel int

const (
	modelGray colorModel = iota
	modelRGB
	modelCMYK
	modelIndexed
	modelSeparation // one tint component, 1 is full ink
)

// colorSpace is an image colour space reduced to what DecodeImage needs.
type colorSpace struct {
	name  string
	model colorModel
	n     int // components per sample

	base   *colorSpace // Indexed only
	hival  int
	lookup []byte
}

func deviceSpace(name string, n int) (*colorSpace, bool) {
	switch n {
	case 1:
		return &colorSpace{name: name, model: modelGray, n: 1}, true
	case 3:
		return &colorSpace{name: name, model: modelRGB, n: 3}, true
	case 4:
		return &colorSpace{name: name, model: modelCMYK, n: 4}, true
	}
	return nil, false
}

func (r *Reader) parseColorSpace(obj core.Object) (*colorSpace, error) {
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}

	switch v := resolved.(type) {
	case core.Name:
		switch v {
		case "DeviceGray", "G", "CalGray":
			return &colorSpace{name: string(v), model: modelGray, n: 1}, nil
		case "DeviceRGB", "RGB", "CalRGB":
			return &colorSpace{name: string(v), model: modelRGB, n: 3}, nil
		case "DeviceCMYK", "CMYK", "CalCMYK":
			return &colorSpace{name: string(v), model: modelCMYK, n: 4}, nil
		}
		return nil, fmt.Errorf("%w: colour space %s", ErrUnsupportedImage, v)

	case core.Array:
		family, _ := v.GetName(0)
		switch family {
		case "CalGray", "CalRGB", "CalCMYK":
			return r.parseColorSpace(family)
		case "ICCBased":
			return r.parseICCBased(v)
		case "Indexed", "I":
			return r.parseIndexed(v)
		case "Separation":
			return &colorSpace{name: "Separation", model: modelSeparation, n: 1}, nil
		case "DeviceN":
			names, err := r.Resolve(v.Get(1))
			if err != nil {
				return nil, err
			}
			if arr, ok := names.(core.Array); ok && len(arr) == 1 {
				return &colorSpace{name: "DeviceN", model: modelSeparation, n: 1}, nil
			}
		case "DeviceGray", "DeviceRGB", "DeviceCMYK":
			return r.parseColorSpace(family)
		}
		return nil, fmt.Errorf("%w: colour space %s", ErrUnsupportedImage, family)

	case nil, core.Null:
		return nil, fmt.Errorf("image has no colour space")
	}
	return nil, fmt.Errorf("invalid colour space type %T", resolved)
}

// parseICCBased takes the component count from /N, then from the profile
// header, then from /Alternate.
func (r *Reader) parseICCBased(arr core.Array) (*colorSpace, error) {
	obj, err := r.Resolve(arr.Get(1))
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("ICCBased colour space without profile stream")
	}

	if n, ok := r.dictInt(stream.Dict, "N"); ok {
		if cs, ok := deviceSpace("ICCBased", n); ok {
			return cs, nil
		}
	}
	if data, err := stream.Decode(); err == nil {
		if p, err := icc.Decode(data); err == nil {
			if cs, ok := deviceSpace("ICCBased", p.ColorSpace.NumComponents()); ok {
				return cs, nil
			}
		}
	}
	if alt := stream.Dict.Get("Alternate"); alt != nil {
		cs, err := r.parseColorSpace(alt)
		if err != nil {
			return nil, err
		}
		cs.name = "ICCBased"
		return cs, nil
	}
	return nil, fmt.Errorf("ICCBased colour space with unknown component count")
}

func (r *Reader) parseIndexed(arr core.Array) (*colorSpace, error) {
	if len(arr) < 4 {
		return nil, fmt.Errorf("indexed colour space has %d elements", len(arr))
	}
	base, err := r.parseColorSpace(arr[1])
	if err != nil {
		return nil, fmt.Errorf("indexed base: %w", err)
	}
	if base.model == modelIndexed {
		return nil, fmt.Errorf("indexed colour space on an indexed base")
	}
	hivalObj, err := r.Resolve(arr[2])
	if err != nil {
		return nil, err
	}
	hival, ok := hivalObj.(core.Int)
	if !ok || hival < 0 || hival > 255 {
		return nil, fmt.Errorf("invalid indexed hival %v", hivalObj)
	}

	lookupObj, err := r.Resolve(arr[3])
	if err != nil {
		return nil, err
	}
	var lookup []byte
	switch v := lookupObj.(type) {
	case core.String:
		lookup = v.Value
	case *core.Stream:
		if lookup, err = v.Decode(); err != nil {
			return nil, fmt.Errorf("indexed lookup: %w", err)
		}
	default:
		return nil, fmt.Errorf("invalid indexed lookup type %T", lookupObj)
	}
	if need := base.n * (int(hival) + 1); len(lookup) < need {
		r.warn("indexed lookup has %d bytes, want %d", len(lookup), need)
		lookup = append(lookup, make([]byte, need-len(lookup))...)
	}
	return &colorSpace{
		name:   "Indexed",
		model:  modelIndexed,
		n:      1,
		base:   base,
		hival:  int(hival),
		lookup: lookup,
	}, nil
}

// palette expands the lookup table of an indexed colour space.
func (cs *colorSpace) palette() color.Palette {
	pal := make(color.Palette, cs.hival+1)
	n := cs.base.n
	for i := range pal {
		c := cs.lookup[i*n : (i+1)*n]
		switch cs.base.model {
		case modelGray:
			pal[i] = color.Gray{Y: c[0]}
		case modelRGB:
			pal[i] = color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
		case modelCMYK:
			r, g, b := color.CMYKToRGB(c[0], c[1], c[2], c[3])
			pal[i] = color.RGBA{R: r, G: g, B: b, A: 255}
		case modelSeparation:
			pal[i] = color.Gray{Y: 255 - c[0]}
		}
	}
	return pal
}

// DecodeImage renders an image XObject. DCTDecode images go through the
// dct decoder; other images are unpacked from their samples with /Decode
// applied. A soft mask of the same size becomes the alpha channel.
// JPXDecode and JBIG2Decode images are not supported.
func (r *Reader) DecodeImage(stream *core.Stream) (image.Image, error) {
	img, err := r.decodeImage(stream)
	if err != nil {
		return nil, err
	}
	smaskObj := stream.Dict.Get("SMask")
	if smaskObj == nil {
		return img, nil
	}
	resolved, err := r.Resolve(smaskObj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve soft mask: %w", err)
	}
	smask, ok := resolved.(*core.Stream)
	if !ok {
		return img, nil
	}
	maskImg, err := r.decodeImage(smask)
	if err != nil {
		r.warn("ignoring soft mask: %v", err)
		return img, nil
	}
	alpha, ok := maskImg.(*image.Gray)
	if !ok || alpha.Bounds() != img.Bounds() {
		r.warn("ignoring soft mask of size %v for image of size %v", maskImg.Bounds(), img.Bounds())
		return img, nil
	}
	return applyAlpha(img, alpha), nil
}

func (r *Reader) decodeImage(stream *core.Stream) (image.Image, error) {
	names, _, err := stream.Filters()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		switch name {
		case "DCTDecode", "DCT":
			data, err := stream.Decode()
			if err != nil {
				return nil, err
			}
			return dct.Decode(data, dct.WithLogger(r.logger))
		case "JPXDecode", "JBIG2Decode":
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, name)
		}
	}

	dict := stream.Dict
	width, height, err := r.imageSize(dict)
	if err != nil {
		return nil, err
	}
	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode image stream: %w", err)
	}

	var cs *colorSpace
	bpc := 8
	if mask, _ := dict.GetBool("ImageMask"); mask {
		// samples of 0 paint, 1 leave the page as it is
		cs = &colorSpace{name: "ImageMask", model: modelGray, n: 1}
		bpc = 1
	} else {
		if cs, err = r.parseColorSpace(dict.Get("ColorSpace")); err != nil {
			return nil, err
		}
		if v, ok := r.dictInt(dict, "BitsPerComponent"); ok {
			bpc = v
		}
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("unsupported bits per component: %d", bpc)
	}
	if cs.model == modelIndexed && bpc == 16 {
		return nil, fmt.Errorf("indexed image with 16 bits per component")
	}

	rowBytes := (width*cs.n*bpc + 7) / 8
	if need := rowBytes * height; len(data) < need {
		r.warn("image data has %d bytes, want %d; padding with zeros", len(data), need)
		data = append(data[:len(data):len(data)], make([]byte, need-len(data))...)
	}

	decode, err := r.decodeArray(dict, cs, bpc)
	if err != nil {
		return nil, err
	}
	u := unpacker{data: data, bpc: bpc, rowBytes: rowBytes, decode: decode}
	rect := image.Rect(0, 0, width, height)

	switch cs.model {
	case modelGray, modelSeparation:
		img := image.NewGray(rect)
		for y := 0; y < height; y++ {
			u.startRow(y)
			row := img.Pix[y*img.Stride : y*img.Stride+width]
			for x := range row {
				v := u.next(0)
				if cs.model == modelSeparation {
					v = 255 - v
				}
				row[x] = v
			}
		}
		return img, nil

	case modelRGB:
		img := image.NewRGBA(rect)
		for y := 0; y < height; y++ {
			u.startRow(y)
			row := img.Pix[y*img.Stride : y*img.Stride+4*width]
			for x := 0; x < width; x++ {
				row[4*x] = u.next(0)
				row[4*x+1] = u.next(1)
				row[4*x+2] = u.next(2)
				row[4*x+3] = 255
			}
		}
		return img, nil

	case modelCMYK:
		img := image.NewCMYK(rect)
		for y := 0; y < height; y++ {
			u.startRow(y)
			row := img.Pix[y*img.Stride : y*img.Stride+4*width]
			for x := range row {
				row[x] = u.next(x & 3)
			}
		}
		return img, nil

	case modelIndexed:
		img := image.NewPaletted(rect, cs.palette())
		for y := 0; y < height; y++ {
			u.startRow(y)
			row := img.Pix[y*img.Stride : y*img.Stride+width]
			for x := range row {
				row[x] = uint8(min(u.index(), cs.hival))
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: colour space %s", ErrUnsupportedImage, cs.name)
}

// decodeArray returns one (min, max) pair per component. For indexed
// images the range maps samples to palette indices, otherwise to [0, 1].
func (r *Reader) decodeArray(dict *core.Dict, cs *colorSpace, bpc int) ([]float64, error) {
	maxIndex := float64(int(1)<<bpc - 1)
	decode := make([]float64, 0, 2*cs.n)
	for i := 0; i < cs.n; i++ {
		if cs.model == modelIndexed {
			decode = append(decode, 0, maxIndex)
		} else {
			decode = append(decode, 0, 1)
		}
	}

	obj, err := r.Resolve(dict.Get("Decode"))
	if err != nil {
		return nil, err
	}
	arr, ok := obj.(core.Array)
	if !ok {
		return decode, nil
	}
	if len(arr) < len(decode) {
		r.warn("ignoring /Decode with %d entries for %d components", len(arr), cs.n)
		return decode, nil
	}
	given := make([]float64, len(decode))
	for i := range given {
		v, ok := arr.GetReal(i)
		if !ok {
			r.warn("ignoring non-numeric /Decode entry %d", i)
			return decode, nil
		}
		given[i] = float64(v)
	}
	return given, nil
}

// unpacker reads packed samples row by row. Rows start on byte boundaries.
type unpacker struct {
	data     []byte
	bpc      int
	rowBytes int
	decode   []float64
	pos      int // bit offset
}

func (u *unpacker) startRow(y int) {
	u.pos = 8 * y * u.rowBytes
}

func (u *unpacker) sample() uint32 {
	i := u.pos >> 3
	var v uint32
	switch u.bpc {
	case 8:
		v = uint32(u.data[i])
	case 16:
		v = uint32(u.data[i])<<8 | uint32(u.data[i+1])
	default:
		shift := 8 - u.bpc - u.pos&7
		v = uint32(u.data[i]>>shift) & (1<<u.bpc - 1)
	}
	u.pos += u.bpc
	return v
}

// next returns the next sample of component c scaled to 8 bits.
func (u *unpacker) next(c int) uint8 {
	s := float64(u.sample())
	maxv := float64(uint32(1)<<u.bpc - 1)
	lo, hi := u.decode[2*c], u.decode[2*c+1]
	f := lo + s*(hi-lo)/maxv
	return uint8(math.Round(255 * max(0, min(1, f))))
}

// index returns the next sample as a palette index.
func (u *unpacker) index() int {
	s := float64(u.sample())
	maxv := float64(uint32(1)<<u.bpc - 1)
	lo, hi := u.decode[0], u.decode[1]
	return int(math.Round(max(0, lo+s*(hi-lo)/maxv)))
}

// applyAlpha combines an opaque image with a soft mask.
func applyAlpha(img image.Image, alpha *image.Gray) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = alpha.GrayAt(x, y).Y
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
