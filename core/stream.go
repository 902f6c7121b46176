package core

import (
	"fmt"

	"github.com/tsawler/pdfcore/internal/filters"
)

// Filters returns the filter names of the stream in application order and
// the matching decode parameters (nil where absent).
func (s *Stream) Filters() ([]Name, []*Dict, error) {
	var names []Name
	switch f := s.Dict.Get("Filter").(type) {
	case nil, Null:
		return nil, nil, nil
	case Name:
		names = []Name{f}
	case Array:
		for i, elem := range f {
			name, ok := elem.(Name)
			if !ok {
				return nil, nil, fmt.Errorf("filter %d is not a name: %T", i, elem)
			}
			names = append(names, name)
		}
	default:
		return nil, nil, fmt.Errorf("invalid Filter type: %T", f)
	}
	if len(names) == 0 {
		return nil, nil, nil
	}

	params := make([]*Dict, len(names))
	switch p := s.Dict.Get("DecodeParms").(type) {
	case *Dict:
		params[0] = p
	case Array:
		for i := range params {
			if d, ok := p.Get(i).(*Dict); ok {
				params[i] = d
			}
		}
	}
	return names, params, nil
}

// Decode applies the stream's filters and returns the decoded bytes.
// Image-only filters (DCTDecode, JPXDecode, JBIG2Decode) end the chain and
// leave their input as is, for an image decoder to handle.
func (s *Stream) Decode() ([]byte, error) {
	if s.decoded != nil {
		return s.decoded, nil
	}
	names, params, err := s.Filters()
	if err != nil {
		return nil, err
	}

	data := s.Data
	for i, name := range names {
		if IsImageFilter(name) {
			break
		}
		data, err = decodeWithFilter(data, name, params[i])
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s) failed: %w", i, name, err)
		}
	}
	s.decoded = data
	return data, nil
}

// IsImageFilter reports whether name is a filter that produces image
// samples and is left to an image decoder.
func IsImageFilter(name Name) bool {
	switch name {
	case "DCTDecode", "DCT", "JPXDecode", "JBIG2Decode":
		return true
	}
	return false
}

// decodeWithFilter applies a single filter.
func decodeWithFilter(data []byte, name Name, params *Dict) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		return filters.FlateDecode(data, dictToParams(params))
	case "LZWDecode", "LZW":
		return filters.LZWDecode(data, dictToParams(params))
	case "ASCIIHexDecode", "AHx":
		return filters.ASCIIHexDecode(data)
	case "ASCII85Decode", "A85":
		return filters.ASCII85Decode(data)
	case "RunLengthDecode", "RL":
		return filters.RunLengthDecode(data)
	case "CCITTFaxDecode", "CCF":
		return filters.CCITTFaxDecode(data, dictToParams(params))
	case "Crypt":
		// streams are decrypted before filters run; only Identity remains
		if n, _ := params.GetName("Name"); n != "" && n != "Identity" {
			return nil, fmt.Errorf("crypt filter %q must be applied by the security handler", string(n))
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown filter: %s", name)
	}
}

// dictToParams converts decode parameters to filters.Params, translating
// PDF objects to Go values.
func dictToParams(dict *Dict) filters.Params {
	if dict == nil {
		return nil
	}
	params := make(filters.Params, dict.Len())
	for _, k := range dict.Keys() {
		switch obj := dict.Get(k).(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case String:
			params[k] = string(obj.Value)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = obj
		}
	}
	return params
}

// EncodeFlate returns a FlateDecode stream holding data.
func EncodeFlate(dict *Dict, data []byte) (*Stream, error) {
	enc, err := filters.FlateEncode(data)
	if err != nil {
		return nil, err
	}
	if dict == nil {
		dict = NewDict()
	}
	dict.Set("Filter", Name("FlateDecode"))
	return NewStream(dict, enc), nil
}
