package filters

import "fmt"

// PNG filter types, as used both by PNG scanlines and by FlateDecode /
// LZWDecode predictors 10-15.
const (
	FilterNone    byte = 0
	FilterSub     byte = 1
	FilterUp      byte = 2
	FilterAverage byte = 3
	FilterPaeth   byte = 4
)

// Unfilter reconstructs one scanline in place. prev is the reconstructed
// previous scanline, or nil for the first one. bpp is the distance in bytes
// to the corresponding byte of the previous pixel, at least 1.
func Unfilter(filter byte, cur, prev []byte, bpp int) error {
	if bpp < 1 {
		bpp = 1
	}
	above := func(i int) byte {
		if prev == nil || i >= len(prev) {
			return 0
		}
		return prev[i]
	}

	switch filter {
	case FilterNone:
	case FilterSub:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case FilterUp:
		for i := range cur {
			cur[i] += above(i)
		}
	case FilterAverage:
		for i := range cur {
			var left int
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			cur[i] += byte((left + int(above(i))) / 2)
		}
	case FilterPaeth:
		for i := range cur {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = above(i - bpp)
			}
			cur[i] += paethPredictor(left, above(i), upLeft)
		}
	default:
		return fmt.Errorf("unknown PNG filter type %d", filter)
	}
	return nil
}

// Filter applies a PNG filter to the raw scanline cur and writes the result
// to dst, which must be as long as cur. prev is the raw previous scanline
// or nil.
func Filter(filter byte, dst, cur, prev []byte, bpp int) error {
	if bpp < 1 {
		bpp = 1
	}
	at := func(row []byte, i int) byte {
		if row == nil || i < 0 || i >= len(row) {
			return 0
		}
		return row[i]
	}

	for i := range cur {
		left := at(cur, i-bpp)
		up := at(prev, i)
		upLeft := at(prev, i-bpp)
		switch filter {
		case FilterNone:
			dst[i] = cur[i]
		case FilterSub:
			dst[i] = cur[i] - left
		case FilterUp:
			dst[i] = cur[i] - up
		case FilterAverage:
			dst[i] = cur[i] - byte((int(left)+int(up))/2)
		case FilterPaeth:
			dst[i] = cur[i] - paethPredictor(left, up, upLeft)
		default:
			return fmt.Errorf("unknown PNG filter type %d", filter)
		}
	}
	return nil
}

// paethPredictor implements the Paeth predictor algorithm from the PNG specification.
// It selects the neighbor (left, above, or upper-left) closest to a linear prediction.
func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	} else if pb <= pc {
		return b
	}
	return c
}

// abs returns the absolute value of an integer.
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// applyPredictor undoes a /Predictor from the decode parameters.
// Predictor 1 is identity, 2 is TIFF Predictor 2 and 10-15 are PNG filters
// with a filter-type byte in front of every row.
func applyPredictor(data []byte, params Params) ([]byte, error) {
	predictor := getIntParam(params, "Predictor", 1)
	switch {
	case predictor == 1:
		return data, nil
	case predictor == 2:
		return applyTIFFPredictor2(data, params)
	case predictor >= 10 && predictor <= 15:
		return applyPNGPredictor(data, params)
	}
	return nil, fmt.Errorf("unsupported predictor: %d", predictor)
}

func rowGeometry(params Params) (rowLen, bpp int, err error) {
	columns := getIntParam(params, "Columns", 1)
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return 0, 0, fmt.Errorf("invalid BitsPerComponent %d", bpc)
	}
	if columns < 1 || colors < 1 {
		return 0, 0, fmt.Errorf("invalid predictor geometry: %d columns, %d colors", columns, colors)
	}
	bitsPerPixel := colors * bpc
	return (columns*bitsPerPixel + 7) / 8, (bitsPerPixel + 7) / 8, nil
}

// applyTIFFPredictor2 undoes horizontal differencing for 8- and 16-bit
// samples.
func applyTIFFPredictor2(data []byte, params Params) ([]byte, error) {
	rowLen, _, err := rowGeometry(params)
	if err != nil {
		return nil, err
	}
	colors := getIntParam(params, "Colors", 1)
	bpc := getIntParam(params, "BitsPerComponent", 8)
	if bpc != 8 && bpc != 16 {
		return nil, fmt.Errorf("TIFF Predictor 2 with %d bits per component is not supported", bpc)
	}

	result := make([]byte, len(data))
	copy(result, data)
	for start := 0; start+rowLen <= len(result); start += rowLen {
		row := result[start : start+rowLen]
		if bpc == 8 {
			for i := colors; i < len(row); i++ {
				row[i] += row[i-colors]
			}
			continue
		}
		step := 2 * colors
		for i := step; i+1 < len(row); i += 2 {
			v := uint16(row[i])<<8 | uint16(row[i+1])
			v += uint16(row[i-step])<<8 | uint16(row[i-step+1])
			row[i], row[i+1] = byte(v>>8), byte(v)
		}
	}
	return result, nil
}

// applyPNGPredictor strips the per-row filter byte and reconstructs each
// row. A short final row is reconstructed as far as it goes.
func applyPNGPredictor(data []byte, params Params) ([]byte, error) {
	rowLen, bpp, err := rowGeometry(params)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, len(data)/(rowLen+1)*rowLen+rowLen)
	var prev []byte
	for start := 0; start < len(data); start += rowLen + 1 {
		end := start + rowLen + 1
		if end > len(data) {
			end = len(data)
		}
		if end-start < 2 {
			break
		}
		row := make([]byte, rowLen)
		n := copy(row, data[start+1:end])
		if err := Unfilter(data[start], row, prev, bpp); err != nil {
			return nil, fmt.Errorf("row %d: %w", start/(rowLen+1), err)
		}
		result = append(result, row[:n]...)
		prev = row
	}
	return result, nil
}
