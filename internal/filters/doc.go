// Package filters implements the PDF stream filters the parser needs.
//
// # Decoders
//
//   - [FlateDecode] (zlib, with TIFF and PNG predictors)
//   - [LZWDecode] (EarlyChange aware, with predictors)
//   - [ASCIIHexDecode] and [ASCII85Decode]
//   - [RunLengthDecode]
//   - [CCITTFaxDecode] (Group 3 and Group 4)
//
// Each has a matching encoder except CCITT, which is only ever read.
//
// # Scanline Filters
//
// [Filter] and [Unfilter] implement the five PNG filter types on a single
// scanline. They serve both the PNG predictors of FlateDecode and LZWDecode
// and the PNG image codec.
//
// # Decode Parameters
//
// Filters accept a Params map converted from the /DecodeParms dictionary:
//
//	params := filters.Params{
//	    "Predictor": 12,
//	    "Columns":   100,
//	    "Colors":    3,
//	}
//	decoded, err := filters.FlateDecode(data, params)
package filters
