// Package dct decodes the JPEG streams stored under the DCTDecode filter.
//
// Baseline (SOF0, SOF1) and progressive (SOF2) Huffman coded frames with 8
// bit samples and one, three or four components are supported. Lossless,
// hierarchical and arithmetic coded frames return an [UnsupportedError].
//
// Three component images are converted from YCbCr unless an Adobe APP14
// segment says otherwise. Four component images are returned as CMYK,
// undoing the inversion Adobe applications write:
//
//	img, err := dct.Decode(stream.Data)
//	if errors.Is(err, dct.ErrUnsupported) {
//		// keep the encoded bytes
//	}
//
// [DecodeConfig] reads only the headers, including an embedded ICC
// profile.
package dct
