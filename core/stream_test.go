package core

import (
	"bytes"
	"compress/zlib"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func zlibCompress(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func TestStreamDecode(t *testing.T) {
	text := []byte("This is test data for the filter chain")
	tests := []struct {
		name string
		dict *Dict
		data []byte
		want []byte
	}{
		{
			name: "no filter",
			dict: NewDict(),
			data: text,
			want: text,
		},
		{
			name: "FlateDecode",
			dict: mkDict("Filter", Name("FlateDecode")),
			data: zlibCompress(text),
			want: text,
		},
		{
			name: "abbreviated Fl",
			dict: mkDict("Filter", Name("Fl")),
			data: zlibCompress(text),
			want: text,
		},
		{
			name: "ASCIIHexDecode",
			dict: mkDict("Filter", Name("ASCIIHexDecode")),
			data: []byte("48 65 6C 6C 6F>"),
			want: []byte("Hello"),
		},
		{
			name: "ASCII85Decode",
			dict: mkDict("Filter", Name("A85")),
			data: []byte("87cURD]i,\"Ebo80~>"),
			want: []byte("Hello World!"),
		},
		{
			name: "RunLengthDecode",
			dict: mkDict("Filter", Name("RunLengthDecode")),
			data: []byte{2, 'a', 'b', 'c', 254, 'x', 128},
			want: []byte("abcxxx"),
		},
		{
			name: "chain",
			dict: mkDict("Filter", Array{Name("ASCIIHexDecode"), Name("FlateDecode")}),
			data: []byte(hexEncode(zlibCompress(text)) + ">"),
			want: text,
		},
		{
			name: "empty filter array",
			dict: mkDict("Filter", Array{}),
			data: text,
			want: text,
		},
		{
			name: "identity crypt filter",
			dict: mkDict("Filter", Name("Crypt"), "DecodeParms", mkDict("Name", Name("Identity"))),
			data: text,
			want: text,
		},
		{
			name: "image filter ends the chain",
			dict: mkDict("Filter", Array{Name("FlateDecode"), Name("DCTDecode")}),
			data: zlibCompress([]byte{0xff, 0xd8, 0xff, 0xd9}),
			want: []byte{0xff, 0xd8, 0xff, 0xd9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStream(tt.dict, tt.data).Decode()
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamDecodeWithPredictor(t *testing.T) {
	// two rows of three bytes, PNG Up predictor
	raw := []byte{2, 1, 2, 3, 2, 1, 1, 1}
	params := mkDict("Predictor", Int(12), "Columns", Int(3))
	s := NewStream(mkDict("Filter", Name("FlateDecode"), "DecodeParms", params), zlibCompress(raw))
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 2, 3, 4}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamDecodeParmsArray(t *testing.T) {
	raw := []byte{2, 5, 5, 2, 1, 1}
	params := Array{Null{}, mkDict("Predictor", Int(12), "Columns", Int(2))}
	data := []byte(hexEncode(zlibCompress(raw)) + ">")
	s := NewStream(mkDict("Filter", Array{Name("AHx"), Name("Fl")}, "DecodeParms", params), data)
	got, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff([]byte{5, 5, 6, 6}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		dict *Dict
	}{
		{"unknown filter", mkDict("Filter", Name("BogusDecode"))},
		{"filter of wrong type", mkDict("Filter", Int(3))},
		{"non-name in array", mkDict("Filter", Array{Name("FlateDecode"), Int(1)})},
		{"named crypt filter", mkDict("Filter", Name("Crypt"), "DecodeParms", mkDict("Name", Name("StdCF")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStream(tt.dict, []byte("data")).Decode(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestStreamDecodeIsCached(t *testing.T) {
	s := NewStream(mkDict("Filter", Name("FlateDecode")), zlibCompress([]byte("abc")))
	first, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	s.Data = nil
	second, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("cached result %q differs from %q", second, first)
	}
}

func TestEncodeFlate(t *testing.T) {
	text := bytes.Repeat([]byte("compress me "), 50)
	s, err := EncodeFlate(mkDict("Type", Name("Metadata")), text)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Dict.GetInt("Length"); int(n) != len(s.Data) {
		t.Errorf("Length = %d, want %d", n, len(s.Data))
	}
	if len(s.Data) >= len(text) {
		t.Errorf("encoded %d bytes into %d", len(text), len(s.Data))
	}
	got, err := s.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, text) {
		t.Error("round trip mismatch")
	}
}

func TestIsImageFilter(t *testing.T) {
	for name, want := range map[Name]bool{
		"DCTDecode":   true,
		"DCT":         true,
		"JPXDecode":   true,
		"JBIG2Decode": true,
		"FlateDecode": false,
		"CCITTFax":    false,
	} {
		if got := IsImageFilter(name); got != want {
			t.Errorf("IsImageFilter(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestStreamDecodeCorruptFlate(t *testing.T) {
	_, err := NewStream(mkDict("Filter", Name("FlateDecode")), []byte("not zlib at all")).Decode()
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrCorrupt) {
		t.Error("filter failure should not be reported as a corrupt document")
	}
}

func hexEncode(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, 2*len(b))
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}
