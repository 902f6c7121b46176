package dct

import "image"

// render runs the inverse DCT over every component and converts the
// upsampled planes to an image.
func (d *decoder) render() image.Image {
	planes := make([][]byte, len(d.comps))
	strides := make([]int, len(d.comps))
	for i, c := range d.comps {
		q := scaleQuant(&d.quant[c.tq])
		stride := c.bx * 8
		plane := make([]byte, stride*c.by*8)
		for by := 0; by < c.by; by++ {
			for bx := 0; bx < c.bx; bx++ {
				idct(plane[by*8*stride+bx*8:], stride, &c.blocks[by*c.bx+bx], &q)
			}
		}
		planes[i] = plane
		strides[i] = stride
	}

	// nearest neighbour upsampling for any sampling factor
	sample := func(i, x, y int) byte {
		c := d.comps[i]
		return planes[i][(y*c.v/d.vmax)*strides[i]+x*c.h/d.hmax]
	}

	w, h := d.width, d.height
	switch len(d.comps) {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				row[x] = sample(0, x, y)
			}
		}
		return img

	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		rgb := d.isRGB()
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				c0, c1, c2 := sample(0, x, y), sample(1, x, y), sample(2, x, y)
				if !rgb {
					c0, c1, c2 = yccToRGB(c0, c1, c2)
				}
				p := row[4*x : 4*x+4]
				p[0], p[1], p[2], p[3] = c0, c1, c2, 0xFF
			}
		}
		return img

	default:
		img := image.NewCMYK(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				c0, c1, c2, c3 := sample(0, x, y), sample(1, x, y), sample(2, x, y), sample(3, x, y)
				switch {
				case d.adobe && d.transform == 2:
					// YCCK: the converted RGB holds inverted CMY
					r, g, b := yccToRGB(c0, c1, c2)
					c0, c1, c2, c3 = r, g, b, 255-c3
				case d.adobe:
					// Adobe writes CMYK inverted
					c0, c1, c2, c3 = 255-c0, 255-c1, 255-c2, 255-c3
				}
				p := row[4*x : 4*x+4]
				p[0], p[1], p[2], p[3] = c0, c1, c2, c3
			}
		}
		return img
	}
}

// isRGB reports whether a three component image is stored without the
// YCbCr transform.
func (d *decoder) isRGB() bool {
	if d.adobe {
		return d.transform == 0
	}
	return d.comps[0].id == 'R' && d.comps[1].id == 'G' && d.comps[2].id == 'B'
}

// yccToRGB converts JFIF YCbCr with 16 bit fixed point coefficients.
func yccToRGB(y, cb, cr byte) (byte, byte, byte) {
	yy := int32(y)
	b := int32(cb) - 128
	r := int32(cr) - 128
	return clip(yy + (91881*r+1<<15)>>16),
		clip(yy + (-22554*b-46802*r+1<<15)>>16),
		clip(yy + (116130*b+1<<15)>>16)
}
