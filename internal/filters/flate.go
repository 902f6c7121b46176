package filters

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// Params represents decode parameters from PDF stream dictionaries.
// Common parameters include Predictor, Columns, Colors, and BitsPerComponent.
type Params map[string]interface{}

// FlateDecode decompresses Flate (zlib/deflate) compressed data and undoes
// the predictor named in params.
func FlateDecode(data []byte, params Params) ([]byte, error) {
	decompressed, err := zlibDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	decompressed, err = applyPredictor(decompressed, params)
	if err != nil {
		return nil, fmt.Errorf("predictor failed: %w", err)
	}
	return decompressed, nil
}

// zlibDecompress inflates data. Output produced before a truncated or
// corrupt tail is returned as long as some data was recovered, since many
// producers write streams with a damaged checksum.
func zlibDecompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib reader: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	_, err = io.Copy(&buf, reader)
	if err != nil && buf.Len() == 0 {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// FlateEncode compresses data with zlib.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// getIntParam extracts an integer parameter from Params, returning defaultValue
// if the parameter is missing or cannot be converted to an integer.
func getIntParam(params Params, key string, defaultValue int) int {
	if params == nil {
		return defaultValue
	}

	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

// getBoolParam extracts a boolean parameter from Params, returning defaultValue
// if the parameter is missing or cannot be converted to a boolean.
func getBoolParam(params Params, key string, defaultValue bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return defaultValue
}
