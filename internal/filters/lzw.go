package filters

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hhrutter/lzw"
)

// LZWDecode decompresses LZWDecode data. EarlyChange (default 1) selects
// whether the code width grows one code early, as in TIFF.
func LZWDecode(data []byte, params Params) ([]byte, error) {
	earlyChange := getIntParam(params, "EarlyChange", 1)

	rc := lzw.NewReader(bytes.NewReader(data), earlyChange == 1)
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil && buf.Len() == 0 {
		return nil, fmt.Errorf("LZW decompression failed: %w", err)
	}

	out, err := applyPredictor(buf.Bytes(), params)
	if err != nil {
		return nil, fmt.Errorf("predictor failed: %w", err)
	}
	return out, nil
}

// LZWEncode compresses data for an LZWDecode stream with EarlyChange 1.
func LZWEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	wc := lzw.NewWriter(&buf, true)
	if _, err := wc.Write(data); err != nil {
		return nil, err
	}
	if err := wc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
