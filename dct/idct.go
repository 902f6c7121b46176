package dct

// block holds the 64 coefficients or samples of an 8x8 block in natural
// (row major) order.
type block [64]int32

// unzig maps the zig-zag index of a coefficient to its natural index.
var unzig = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// aanScales are the AAN scale factors for natural order coefficients,
// scaled by 1<<14.
var aanScales = [64]int32{
	16384, 22725, 21407, 19266, 16384, 12873, 8867, 4520,
	22725, 31521, 29692, 26722, 22725, 17855, 12299, 6270,
	21407, 29692, 27969, 25172, 21407, 16819, 11585, 5906,
	19266, 26722, 25172, 22654, 19266, 15137, 10426, 5315,
	16384, 22725, 21407, 19266, 16384, 12873, 8867, 4520,
	12873, 17855, 16819, 15137, 12873, 10114, 6967, 3552,
	8867, 12299, 11585, 10426, 8867, 6967, 4799, 2446,
	4520, 6270, 5906, 5315, 4520, 3552, 2446, 1247,
}

// fixed point constants with 8 fractional bits
const (
	constBits = 8
	pass1Bits = 2

	fix1_082392200 = 277
	fix1_414213562 = 362
	fix1_847759065 = 473
	fix2_613125930 = 669
)

// clipTable maps v+clipOffset to v clamped to [0, 255].
var clipTable [1024]uint8

const clipOffset = 384

func init() {
	for i := range clipTable {
		v := i - clipOffset
		switch {
		case v < 0:
			clipTable[i] = 0
		case v > 255:
			clipTable[i] = 255
		default:
			clipTable[i] = uint8(v)
		}
	}
}

func clip(v int32) uint8 {
	i := int(v) + clipOffset
	if i < 0 {
		i = 0
	} else if i >= len(clipTable) {
		i = len(clipTable) - 1
	}
	return clipTable[i]
}

// scaleQuant folds the AAN scale factors into a natural order
// quantization table.
func scaleQuant(q *[64]uint16) block {
	var s block
	for i := range s {
		s[i] = (int32(q[i])*aanScales[i] + 1<<11) >> 12
	}
	return s
}

func mul(v, c int32) int32 {
	return (v * c) >> constBits
}

// idct dequantizes the coefficients in b with the scaled table q and writes
// the level shifted samples to dst, stride bytes per row.
func idct(dst []byte, stride int, b *block, q *block) {
	var ws block

	// columns
	for c := 0; c < 8; c++ {
		if b[8+c] == 0 && b[16+c] == 0 && b[24+c] == 0 && b[32+c] == 0 &&
			b[40+c] == 0 && b[48+c] == 0 && b[56+c] == 0 {
			dc := b[c] * q[c]
			for r := 0; r < 8; r++ {
				ws[r*8+c] = dc
			}
			continue
		}

		tmp0 := b[c] * q[c]
		tmp1 := b[16+c] * q[16+c]
		tmp2 := b[32+c] * q[32+c]
		tmp3 := b[48+c] * q[48+c]

		tmp10 := tmp0 + tmp2
		tmp11 := tmp0 - tmp2
		tmp13 := tmp1 + tmp3
		tmp12 := mul(tmp1-tmp3, fix1_414213562) - tmp13

		tmp0 = tmp10 + tmp13
		tmp3 = tmp10 - tmp13
		tmp1 = tmp11 + tmp12
		tmp2 = tmp11 - tmp12

		tmp4 := b[8+c] * q[8+c]
		tmp5 := b[24+c] * q[24+c]
		tmp6 := b[40+c] * q[40+c]
		tmp7 := b[56+c] * q[56+c]

		z13 := tmp6 + tmp5
		z10 := tmp6 - tmp5
		z11 := tmp4 + tmp7
		z12 := tmp4 - tmp7

		tmp7 = z11 + z13
		tmp11 = mul(z11-z13, fix1_414213562)
		z5 := mul(z10+z12, fix1_847759065)
		tmp10 = mul(z12, fix1_082392200) - z5
		tmp12 = mul(z10, -fix2_613125930) + z5

		tmp6 = tmp12 - tmp7
		tmp5 = tmp11 - tmp6
		tmp4 = tmp10 + tmp5

		ws[c] = tmp0 + tmp7
		ws[56+c] = tmp0 - tmp7
		ws[8+c] = tmp1 + tmp6
		ws[48+c] = tmp1 - tmp6
		ws[16+c] = tmp2 + tmp5
		ws[40+c] = tmp2 - tmp5
		ws[32+c] = tmp3 + tmp4
		ws[24+c] = tmp3 - tmp4
	}

	// rows
	const shift = pass1Bits + 3
	for r := 0; r < 8; r++ {
		row := ws[r*8 : r*8+8]
		out := dst[r*stride : r*stride+8]

		r0 := row[0] + 1<<(shift-1)
		tmp10 := r0 + row[4]
		tmp11 := r0 - row[4]
		tmp13 := row[2] + row[6]
		tmp12 := mul(row[2]-row[6], fix1_414213562) - tmp13

		tmp0 := tmp10 + tmp13
		tmp3 := tmp10 - tmp13
		tmp1 := tmp11 + tmp12
		tmp2 := tmp11 - tmp12

		z13 := row[5] + row[3]
		z10 := row[5] - row[3]
		z11 := row[1] + row[7]
		z12 := row[1] - row[7]

		tmp7 := z11 + z13
		tmp11 = mul(z11-z13, fix1_414213562)
		z5 := mul(z10+z12, fix1_847759065)
		tmp10 = mul(z12, fix1_082392200) - z5
		tmp12 = mul(z10, -fix2_613125930) + z5

		tmp6 := tmp12 - tmp7
		tmp5 := tmp11 - tmp6
		tmp4 := tmp10 + tmp5

		out[0] = clip((tmp0+tmp7)>>shift + 128)
		out[7] = clip((tmp0-tmp7)>>shift + 128)
		out[1] = clip((tmp1+tmp6)>>shift + 128)
		out[6] = clip((tmp1-tmp6)>>shift + 128)
		out[2] = clip((tmp2+tmp5)>>shift + 128)
		out[5] = clip((tmp2-tmp5)>>shift + 128)
		out[4] = clip((tmp3+tmp4)>>shift + 128)
		out[3] = clip((tmp3-tmp4)>>shift + 128)
	}
}
