package imagecodec

import (
	"bytes"
	"image"
	"image/color"

	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/format"
)

// Decode identifies an image file by its signature and converts it.
func Decode(data []byte, opts ...Option) (*Image, error) {
	switch f := format.DetectFromMagic(data); f {
	case format.PNG:
		return DecodePNG(data, opts...)
	case format.GIF:
		return DecodeGIF(data, opts...)
	case format.BMP:
		return DecodeBMP(data, opts...)
	case format.JPEG:
		return DecodeJPEG(data, opts...)
	case format.TIFF:
		img, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, unsupported("TIFF", "%v", err)
		}
		return FromImage(img)
	case format.WebP:
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, unsupported("WebP", "%v", err)
		}
		return FromImage(img)
	default:
		return nil, unsupported(f.String(), "not a raster image")
	}
}

// FromImage converts a decoded Go image. Grey, 16-bit grey and CMYK images
// keep their sample layout; paletted images become /Indexed; anything else
// is converted to 8-bit RGB with a soft mask when it is not opaque.
func FromImage(img image.Image) (*Image, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, invalid("image", "empty bounds %v", b)
	}

	switch src := img.(type) {
	case *image.Gray:
		return &Image{
			Width: w, Height: h, BitsPerComponent: 8,
			ColorSpace: core.Name("DeviceGray"),
			Data:       copyRows(src.Pix, src.Stride, w, h),
		}, nil
	case *image.Gray16:
		return &Image{
			Width: w, Height: h, BitsPerComponent: 16,
			ColorSpace: core.Name("DeviceGray"),
			Data:       copyRows(src.Pix, src.Stride, 2*w, h),
		}, nil
	case *image.CMYK:
		return &Image{
			Width: w, Height: h, BitsPerComponent: 8,
			ColorSpace: core.Name("DeviceCMYK"),
			Data:       copyRows(src.Pix, src.Stride, 4*w, h),
		}, nil
	case *image.Paletted:
		return fromPaletted(src), nil
	}

	rgb := make([]byte, 0, 3*w*h)
	alpha := make([]byte, 0, w*h)
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xFF {
				opaque = false
			}
		}
	}
	im := &Image{
		Width: w, Height: h, BitsPerComponent: 8,
		ColorSpace: core.Name("DeviceRGB"),
		Data:       rgb,
	}
	if !opaque {
		im.SMask = grayMask(w, h, alpha)
	}
	return im, nil
}

func fromPaletted(src *image.Paletted) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	palette := make([]byte, 0, 3*len(src.Palette))
	alphas := make([]uint8, len(src.Palette))
	key, simple := -1, true
	for i, c := range src.Palette {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		palette = append(palette, n.R, n.G, n.B)
		alphas[i] = n.A
		switch n.A {
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

	im := &Image{
		Width: w, Height: h, BitsPerComponent: 8,
		ColorSpace: indexed(core.Name("DeviceRGB"), palette, len(src.Palette)),
		Data:       copyRows(src.Pix, src.Stride, w, h),
	}
	switch {
	case simple && key >= 0:
		im.Mask = []int{key, key}
	case !simple:
		alpha := make([]byte, len(im.Data))
		for i, idx := range im.Data {
			if int(idx) < len(alphas) {
				alpha[i] = alphas[idx]
			}
		}
		im.SMask = grayMask(w, h, alpha)
	}
	return im
}

func grayMask(w, h int, alpha []byte) *Image {
	return &Image{
		Width: w, Height: h, BitsPerComponent: 8,
		ColorSpace: core.Name("DeviceGray"),
		Data:       alpha,
	}
}

// copyRows copies h rows of n bytes out of a strided pixel buffer.
func copyRows(pix []byte, stride, n, h int) []byte {
	out := make([]byte, 0, n*h)
	for y := 0; y < h; y++ {
		out = append(out, pix[y*stride:y*stride+n]...)
	}
	return out
}
