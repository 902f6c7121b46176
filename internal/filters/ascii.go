package filters

import (
	"bytes"
	"encoding/ascii85"
	"encoding/hex"
	"fmt"
)

// ASCIIHexDecode decodes ASCIIHexDecode data. Whitespace is skipped, '>'
// ends the data and an odd final digit is read as if followed by 0.
func ASCIIHexDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)/2)
	var hi byte
	odd := false
	for _, c := range data {
		if isWhitespace(c) {
			continue
		}
		if c == '>' {
			break
		}
		v, err := hexDigitToByte(c)
		if err != nil {
			return nil, err
		}
		if odd {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		odd = !odd
	}
	if odd {
		out = append(out, hi<<4)
	}
	return out, nil
}

// ASCIIHexEncode is the inverse of ASCIIHexDecode.
func ASCIIHexEncode(data []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(data)), hex.EncodedLen(len(data))+1)
	hex.Encode(out, data)
	return append(out, '>')
}

// ASCII85Decode decodes ASCII85Decode data. An optional "<~" prefix is
// accepted and "~>" marks the end of data.
func ASCII85Decode(data []byte) ([]byte, error) {
	data = bytes.TrimLeft(data, " \t\r\n\f\x00")
	data = bytes.TrimPrefix(data, []byte("<~"))
	if i := bytes.Index(data, []byte("~>")); i >= 0 {
		data = data[:i]
	}
	data = bytes.TrimRight(data, " \t\r\n\f\x00")
	for _, c := range data {
		if !isWhitespace(c) && c != 'z' && (c < '!' || c > 'u') {
			return nil, fmt.Errorf("invalid ASCII85 character: %c", c)
		}
	}

	// every group of up to five characters yields at most four bytes
	out := make([]byte, 4*((len(data)+4)/5)+4*bytes.Count(data, []byte("z")))
	n, nsrc, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, fmt.Errorf("ASCII85 decoding failed: %w", err)
	}
	if nsrc != len(data) {
		return nil, fmt.Errorf("ASCII85 decoding stopped after %d of %d bytes", nsrc, len(data))
	}
	return out[:n], nil
}

// ASCII85Encode is the inverse of ASCII85Decode.
func ASCII85Encode(data []byte) []byte {
	out := make([]byte, ascii85.MaxEncodedLen(len(data)), ascii85.MaxEncodedLen(len(data))+2)
	n := ascii85.Encode(out, data)
	return append(out[:n], '~', '>')
}

// hexDigitToByte converts a hexadecimal character to its numeric value (0-15).
func hexDigitToByte(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit: %c", c)
	}
}

// isWhitespace reports whether c is a PDF whitespace character.
func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}
