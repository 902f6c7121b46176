package imagecodec

import (
	"fmt"
	"log/slog"

	"github.com/tsawler/pdfcore/core"
)

// Image is a decoded raster image in the layout of a PDF image XObject.
//
// Data holds Height rows of samples. Each row is Width*components*BitsPerComponent
// bits, padded to a whole byte. When Filter is set, Data is still encoded with
// that filter (JPEG files are stored as is).
type Image struct {
	Width            int
	Height           int
	BitsPerComponent int

	// ColorSpace is a name such as /DeviceRGB or an array such as
	// [/Indexed /DeviceRGB 255 <...>] or [/ICCBased <stream>].
	ColorSpace core.Object

	// Decode is the optional /Decode array.
	Decode []float64

	// Mask holds colour key ranges, two values per component.
	Mask []int

	// SMask is the soft mask (alpha channel), an 8-bit DeviceGray image of
	// the same size.
	SMask *Image

	Data   []byte
	Filter core.Name
}

// Components returns the number of colour components per sample.
func (im *Image) Components() int {
	return componentsOf(im.ColorSpace)
}

func componentsOf(cs core.Object) int {
	switch v := cs.(type) {
	case core.Name:
		switch v {
		case "DeviceGray", "CalGray", "Indexed":
			return 1
		case "DeviceCMYK":
			return 4
		default:
			return 3
		}
	case core.Array:
		name, _ := v.GetName(0)
		switch name {
		case "Indexed", "CalGray", "Separation":
			return 1
		case "ICCBased":
			if s, ok := v.Get(1).(*core.Stream); ok {
				if n, ok := s.Dict.GetInt("N"); ok {
					return int(n)
				}
			}
			return 3
		case "DeviceN":
			if names, ok := v.Get(1).(core.Array); ok {
				return len(names)
			}
		}
		return 3
	}
	return 1
}

// RowBytes returns the length in bytes of one row of samples.
func (im *Image) RowBytes() int {
	return (im.Width*im.Components()*im.BitsPerComponent + 7) / 8
}

// ToStream returns the image as an image XObject stream. Unfiltered data
// is compressed with FlateDecode. A soft mask is attached as a direct
// stream under /SMask; a writer must move it to an indirect object.
func (im *Image) ToStream() (*core.Stream, error) {
	if im.Width <= 0 || im.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", im.Width, im.Height)
	}

	dict := core.NewDict()
	dict.Set("Type", core.Name("XObject"))
	dict.Set("Subtype", core.Name("Image"))
	dict.Set("Width", core.Int(im.Width))
	dict.Set("Height", core.Int(im.Height))
	if im.ColorSpace != nil {
		dict.Set("ColorSpace", im.ColorSpace)
	}
	dict.Set("BitsPerComponent", core.Int(im.BitsPerComponent))
	if len(im.Decode) > 0 {
		arr := make(core.Array, len(im.Decode))
		for i, v := range im.Decode {
			arr[i] = core.Real(v)
		}
		dict.Set("Decode", arr)
	}
	if len(im.Mask) > 0 {
		arr := make(core.Array, len(im.Mask))
		for i, v := range im.Mask {
			arr[i] = core.Int(v)
		}
		dict.Set("Mask", arr)
	}
	if im.SMask != nil {
		mask, err := im.SMask.ToStream()
		if err != nil {
			return nil, fmt.Errorf("soft mask: %w", err)
		}
		dict.Set("SMask", mask)
	}

	if im.Filter != "" {
		dict.Set("Filter", im.Filter)
		return core.NewStream(dict, im.Data), nil
	}
	return core.EncodeFlate(dict, im.Data)
}

// Option configures a decoder.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger that receives notes about recoverable
// problems in the input.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// indexed builds an /Indexed colour space over base with the given
// palette, three bytes per entry for an RGB base.
func indexed(base core.Object, palette []byte, entries int) core.Array {
	return core.Array{
		core.Name("Indexed"),
		base,
		core.Int(entries - 1),
		core.String{Value: palette, Hex: true},
	}
}
