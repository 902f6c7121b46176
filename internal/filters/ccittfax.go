package filters

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/image/ccitt"
)

// CCITTFaxDecode decodes CCITT Group 3/4 fax data into packed 1-bit rows.
//
// Parameters read from the decode parameters dictionary:
//   - K: <0 for Group 4, >=0 for Group 3
//   - Columns: image width (default 1728)
//   - Rows: image height (0 detects the height from the data)
//   - BlackIs1: bit sense of the output
//   - EncodedByteAlign: rows start on byte boundaries
func CCITTFaxDecode(data []byte, params Params) ([]byte, error) {
	columns := getIntParam(params, "Columns", 1728)
	rows := getIntParam(params, "Rows", 0)
	if columns <= 0 || rows < 0 {
		return nil, fmt.Errorf("invalid CCITT geometry %dx%d", columns, rows)
	}

	sf := ccitt.Group3
	if getIntParam(params, "K", 0) < 0 {
		sf = ccitt.Group4
	}
	opts := &ccitt.Options{
		Invert: getBoolParam(params, "BlackIs1", false),
		Align:  getBoolParam(params, "EncodedByteAlign", false),
	}
	if rows == 0 {
		rows = ccitt.AutoDetectHeight
	}

	reader := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, sf, columns, rows, opts)
	return io.ReadAll(reader)
}
