package imagecodec

import (
	"errors"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/dct"
)

// DecodeJPEG wraps a JPEG file as a DCTDecode image. The data is kept
// encoded; only the headers are read to fill in the image dictionary.
// Inverted Adobe CMYK gets a /Decode array that flips it back.
func DecodeJPEG(data []byte, opts ...Option) (*Image, error) {
	o := newOptions(opts)
	cfg, err := dct.DecodeConfig(data)
	if err != nil {
		if errors.Is(err, dct.ErrUnsupported) {
			return nil, unsupported("JPEG", "%v", err)
		}
		return nil, invalid("JPEG", "%v", err)
	}

	im := &Image{
		Width:            cfg.Width,
		Height:           cfg.Height,
		BitsPerComponent: 8,
		Data:             data,
		Filter:           "DCTDecode",
	}
	switch cfg.Components {
	case 1:
		im.ColorSpace = core.Name("DeviceGray")
	case 3:
		im.ColorSpace = core.Name("DeviceRGB")
	case 4:
		im.ColorSpace = core.Name("DeviceCMYK")
		if cfg.ColorTransform >= 0 {
			im.Decode = []float64{1, 0, 1, 0, 1, 0, 1, 0}
		}
	}

	if cfg.ICCProfile != nil {
		cs, err := iccColorSpace(cfg.ICCProfile)
		switch {
		case err != nil:
			o.logger.Debug("jpeg: ignoring ICC profile", "error", err)
		case componentsOf(cs) != cfg.Components:
			o.logger.Debug("jpeg: ICC profile does not match components",
				"profile", componentsOf(cs), "image", cfg.Components)
		default:
			im.ColorSpace = cs
		}
	}
	return im, nil
}
