package reader

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tsawler/pdfcore/core"
)

func imageDict(w, h int, cs core.Object, bpc int) *core.Dict {
	d := mkDict(
		"Type", core.Name("XObject"),
		"Subtype", core.Name("Image"),
		"Width", core.Int(w),
		"Height", core.Int(h),
		"BitsPerComponent", core.Int(bpc),
	)
	if cs != nil {
		d.Set("ColorSpace", cs)
	}
	return d
}

// imagePDF stores streams as objects 2, 3, ... and returns the reader.
func imagePDF(t *testing.T, streams ...*core.Stream) *Reader {
	t.Helper()
	b := newPDF("1.4")
	b.add(1, mkDict("Type", core.Name("Catalog")))
	for i, s := range streams {
		b.add(i+2, s)
	}
	return openBytes(t, b.finish(mkDict("Root", ref(1))))
}

func TestImages(t *testing.T) {
	flate, err := core.EncodeFlate(imageDict(2, 1, core.Name("DeviceRGB"), 8), []byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("EncodeFlate() error = %v", err)
	}
	mask := mkDict("Subtype", core.Name("Image"), "Width", core.Int(8), "Height", core.Int(1), "ImageMask", core.Bool(true))
	withSMask := imageDict(1, 1, core.Name("DeviceGray"), 8)
	withSMask.Set("SMask", ref(5))

	r := imagePDF(t,
		flate,
		core.NewStream(mask, []byte{0xF0}),
		core.NewStream(mkDict("Length", core.Int(3)), []byte("abc")),
		core.NewStream(imageDict(1, 1, core.Name("DeviceGray"), 8), []byte{9}),
		core.NewStream(withSMask, []byte{7}),
	)

	images, err := r.Images()
	if err != nil {
		t.Fatalf("Images() error = %v", err)
	}
	want := []ImageInfo{
		{Ref: ref(2), Width: 2, Height: 1, ColorSpace: "DeviceRGB", Components: 3, BitsPerComponent: 8, Filter: "FlateDecode"},
		{Ref: ref(3), Width: 8, Height: 1, ColorSpace: "ImageMask", Components: 1, BitsPerComponent: 1, ImageMask: true},
		{Ref: ref(5), Width: 1, Height: 1, ColorSpace: "DeviceGray", Components: 1, BitsPerComponent: 8},
		{Ref: ref(6), Width: 1, Height: 1, ColorSpace: "DeviceGray", Components: 1, BitsPerComponent: 8, SoftMask: true},
	}
	if diff := cmp.Diff(want, images); diff != "" {
		t.Errorf("Images() mismatch (-want +got):\n%s", diff)
	}
}

func TestImagesUnknownColorSpace(t *testing.T) {
	d := imageDict(4, 4, nil, 8)
	d.Set("Filter", core.Name("JPXDecode"))
	r := imagePDF(t, core.NewStream(d, []byte("jpx")))

	images, err := r.Images()
	if err != nil || len(images) != 1 {
		t.Fatalf("Images() = %v, %v", images, err)
	}
	if images[0].ColorSpace != "Unknown" || images[0].Filter != "JPXDecode" {
		t.Errorf("Images()[0] = %+v", images[0])
	}
}

func decodeObject(t *testing.T, r *Reader, num int) image.Image {
	t.Helper()
	obj, err := r.GetObject(num)
	if err != nil {
		t.Fatalf("GetObject(%d) error = %v", num, err)
	}
	img, err := r.DecodeImage(obj.(*core.Stream))
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	return img
}

func TestDecodeImageGray(t *testing.T) {
	tests := []struct {
		name   string
		bpc    int
		decode core.Array
		data   []byte
		want   []uint8
	}{
		{"8 bit", 8, nil, []byte{0, 128, 255, 7}, []uint8{0, 128, 255, 7}},
		{"4 bit", 4, nil, []byte{0x0F, 0x80}, []uint8{0, 255, 136, 0}},
		{"2 bit", 2, nil, []byte{0x1B}, []uint8{0, 85, 170, 255}},
		{"1 bit", 1, nil, []byte{0xA0}, []uint8{255, 0, 255, 0}},
		{"16 bit", 16, nil, []byte{0, 0, 0xFF, 0xFF, 0x80, 0x00, 0, 0}, []uint8{0, 255, 128, 0}},
		{"inverted", 8, core.Array{core.Int(1), core.Int(0)}, []byte{0, 128, 255, 7}, []uint8{255, 127, 0, 248}},
		{"short decode ignored", 8, core.Array{core.Int(1)}, []byte{0, 1, 2, 3}, []uint8{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := imageDict(4, 1, core.Name("DeviceGray"), tt.bpc)
			if tt.decode != nil {
				d.Set("Decode", tt.decode)
			}
			r := imagePDF(t, core.NewStream(d, tt.data))

			img, ok := decodeObject(t, r, 2).(*image.Gray)
			if !ok {
				t.Fatalf("DecodeImage() is not *image.Gray")
			}
			if diff := cmp.Diff(tt.want, img.Pix); diff != "" {
				t.Errorf("pixels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeImageRowPadding(t *testing.T) {
	// 3 one-bit pixels per row, each row starts on a new byte
	d := imageDict(3, 2, core.Name("DeviceGray"), 1)
	r := imagePDF(t, core.NewStream(d, []byte{0xA0, 0x40}))

	img := decodeObject(t, r, 2).(*image.Gray)
	want := []uint8{255, 0, 255, 0, 255, 0}
	if diff := cmp.Diff(want, img.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeImageRGB(t *testing.T) {
	stream, err := core.EncodeFlate(imageDict(2, 1, core.Name("DeviceRGB"), 8), []byte{255, 0, 0, 0, 0, 255})
	if err != nil {
		t.Fatalf("EncodeFlate() error = %v", err)
	}
	r := imagePDF(t, stream)

	img, ok := decodeObject(t, r, 2).(*image.RGBA)
	if !ok {
		t.Fatalf("DecodeImage() is not *image.RGBA")
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("pixel 0 = %v", got)
	}
	if got := img.RGBAAt(1, 0); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("pixel 1 = %v", got)
	}
}

func TestDecodeImageCMYK(t *testing.T) {
	d := imageDict(1, 1, core.Name("DeviceCMYK"), 8)
	r := imagePDF(t, core.NewStream(d, []byte{10, 20, 30, 40}))

	img, ok := decodeObject(t, r, 2).(*image.CMYK)
	if !ok {
		t.Fatalf("DecodeImage() is not *image.CMYK")
	}
	if got := img.CMYKAt(0, 0); got != (color.CMYK{10, 20, 30, 40}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestDecodeImageIndexed(t *testing.T) {
	lookup := core.String{Value: []byte{255, 0, 0, 0, 255, 0, 0, 0, 255}}
	cs := core.Array{core.Name("Indexed"), core.Name("DeviceRGB"), core.Int(2), lookup}

	t.Run("8 bit", func(t *testing.T) {
		r := imagePDF(t, core.NewStream(imageDict(4, 1, cs, 8), []byte{0, 1, 2, 9}))
		img, ok := decodeObject(t, r, 2).(*image.Paletted)
		if !ok {
			t.Fatalf("DecodeImage() is not *image.Paletted")
		}
		// out of range indices clamp to hival
		if diff := cmp.Diff([]uint8{0, 1, 2, 2}, img.Pix); diff != "" {
			t.Errorf("indices mismatch (-want +got):\n%s", diff)
		}
		if got := img.Palette[1]; got != (color.RGBA{0, 255, 0, 255}) {
			t.Errorf("palette[1] = %v", got)
		}
	})

	t.Run("2 bit", func(t *testing.T) {
		r := imagePDF(t, core.NewStream(imageDict(4, 1, cs, 2), []byte{0x1B}))
		img := decodeObject(t, r, 2).(*image.Paletted)
		if diff := cmp.Diff([]uint8{0, 1, 2, 2}, img.Pix); diff != "" {
			t.Errorf("indices mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("short lookup", func(t *testing.T) {
		short := core.Array{core.Name("Indexed"), core.Name("DeviceGray"), core.Int(3), core.String{Value: []byte{10, 20}}}
		r := imagePDF(t, core.NewStream(imageDict(4, 1, short, 8), []byte{0, 1, 2, 3}))
		img := decodeObject(t, r, 2).(*image.Paletted)
		if got := img.Palette[3]; got != (color.Gray{Y: 0}) {
			t.Errorf("padded palette entry = %v", got)
		}
		if len(r.Warnings()) == 0 {
			t.Error("no warning for short lookup")
		}
	})

	t.Run("16 bit rejected", func(t *testing.T) {
		r := imagePDF(t, core.NewStream(imageDict(1, 1, cs, 16), []byte{0, 0}))
		obj, _ := r.GetObject(2)
		if _, err := r.DecodeImage(obj.(*core.Stream)); err == nil {
			t.Error("DecodeImage() error = nil")
		}
	})
}

func TestDecodeImageMask(t *testing.T) {
	d := mkDict("Subtype", core.Name("Image"), "Width", core.Int(4), "Height", core.Int(1), "ImageMask", core.Bool(true))
	r := imagePDF(t, core.NewStream(d, []byte{0x50}))

	img := decodeObject(t, r, 2).(*image.Gray)
	if diff := cmp.Diff([]uint8{0, 255, 0, 255}, img.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeImageSeparation(t *testing.T) {
	cs := core.Array{core.Name("Separation"), core.Name("Spot"), core.Name("DeviceCMYK"), core.Null{}}
	r := imagePDF(t, core.NewStream(imageDict(2, 1, cs, 8), []byte{0, 255}))

	img := decodeObject(t, r, 2).(*image.Gray)
	if diff := cmp.Diff([]uint8{255, 0}, img.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeImageICCBased(t *testing.T) {
	profile := core.NewStream(mkDict("N", core.Int(3)), []byte("not a real profile"))
	b := newPDF("1.4")
	b.add(1, mkDict("Type", core.Name("Catalog")))
	b.add(2, core.NewStream(imageDict(1, 1, core.Array{core.Name("ICCBased"), ref(3)}, 8), []byte{1, 2, 3}))
	b.add(3, profile)
	r := openBytes(t, b.finish(mkDict("Root", ref(1))))

	img, ok := decodeObject(t, r, 2).(*image.RGBA)
	if !ok {
		t.Fatalf("DecodeImage() is not *image.RGBA")
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{1, 2, 3, 255}) {
		t.Errorf("pixel = %v", got)
	}
}

func TestDecodeImageShortData(t *testing.T) {
	r := imagePDF(t, core.NewStream(imageDict(2, 2, core.Name("DeviceGray"), 8), []byte{9}))

	img := decodeObject(t, r, 2).(*image.Gray)
	if diff := cmp.Diff([]uint8{9, 0, 0, 0}, img.Pix); diff != "" {
		t.Errorf("pixels mismatch (-want +got):\n%s", diff)
	}
	if len(r.Warnings()) == 0 {
		t.Error("no warning for short image data")
	}
}

func TestDecodeImageSMask(t *testing.T) {
	b := newPDF("1.4")
	b.add(1, mkDict("Type", core.Name("Catalog")))
	base := imageDict(2, 1, core.Name("DeviceRGB"), 8)
	base.Set("SMask", ref(3))
	b.add(2, core.NewStream(base, []byte{255, 0, 0, 0, 255, 0}))
	b.add(3, core.NewStream(imageDict(2, 1, core.Name("DeviceGray"), 8), []byte{255, 64}))
	r := openBytes(t, b.finish(mkDict("Root", ref(1))))

	img, ok := decodeObject(t, r, 2).(*image.NRGBA)
	if !ok {
		t.Fatalf("DecodeImage() is not *image.NRGBA")
	}
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("pixel 0 = %v", got)
	}
	if got := img.NRGBAAt(1, 0); got != (color.NRGBA{0, 255, 0, 64}) {
		t.Errorf("pixel 1 = %v", got)
	}
}

func TestDecodeImageSMaskWrongSize(t *testing.T) {
	b := newPDF("1.4")
	b.add(1, mkDict("Type", core.Name("Catalog")))
	base := imageDict(2, 1, core.Name("DeviceGray"), 8)
	base.Set("SMask", ref(3))
	b.add(2, core.NewStream(base, []byte{1, 2}))
	b.add(3, core.NewStream(imageDict(1, 1, core.Name("DeviceGray"), 8), []byte{255}))
	r := openBytes(t, b.finish(mkDict("Root", ref(1))))

	if _, ok := decodeObject(t, r, 2).(*image.Gray); !ok {
		t.Error("mismatched soft mask was applied")
	}
	if len(r.Warnings()) == 0 {
		t.Error("no warning for ignored soft mask")
	}
}

func TestDecodeImageDCT(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 8))
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	d := imageDict(16, 8, core.Name("DeviceGray"), 8)
	d.Set("Filter", core.Name("DCTDecode"))
	r := imagePDF(t, core.NewStream(d, buf.Bytes()))

	img, ok := decodeObject(t, r, 2).(*image.Gray)
	if !ok {
		t.Fatalf("DecodeImage() is not *image.Gray")
	}
	if img.Bounds() != src.Bounds() {
		t.Fatalf("bounds = %v, want %v", img.Bounds(), src.Bounds())
	}
	for i, v := range img.Pix {
		if v < 125 || v > 131 {
			t.Fatalf("pixel %d = %d, want about 128", i, v)
		}
	}
}

func TestDecodeImageUnsupported(t *testing.T) {
	for _, filter := range []core.Name{"JPXDecode", "JBIG2Decode"} {
		d := imageDict(1, 1, core.Name("DeviceGray"), 8)
		d.Set("Filter", filter)
		r := imagePDF(t, core.NewStream(d, []byte{0}))

		obj, _ := r.GetObject(2)
		_, err := r.DecodeImage(obj.(*core.Stream))
		if !errors.Is(err, ErrUnsupportedImage) {
			t.Errorf("%s: DecodeImage() error = %v, want ErrUnsupportedImage", filter, err)
		}
	}

	d := imageDict(1, 1, core.Name("Lab"), 8)
	r := imagePDF(t, core.NewStream(d, []byte{0}))
	obj, _ := r.GetObject(2)
	if _, err := r.DecodeImage(obj.(*core.Stream)); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("Lab: DecodeImage() error = %v, want ErrUnsupportedImage", err)
	}
}

func TestDecodeImageBadSize(t *testing.T) {
	for _, size := range [][2]int{{0, 1}, {1, -1}, {70000, 1}} {
		r := imagePDF(t, core.NewStream(imageDict(size[0], size[1], core.Name("DeviceGray"), 8), []byte{0}))
		obj, _ := r.GetObject(2)
		if _, err := r.DecodeImage(obj.(*core.Stream)); err == nil {
			t.Errorf("size %v: DecodeImage() error = nil", size)
		}
	}
}
