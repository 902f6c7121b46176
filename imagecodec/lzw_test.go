package imagecodec

import (
	"bytes"
	"compress/lzw"
	"testing"
)

// packCodes packs fixed width codes least significant bit first.
func packCodes(width int, codes ...int) []byte {
	var out []byte
	var acc uint32
	nbits := 0
	for _, c := range codes {
		acc |= uint32(c) << nbits
		nbits += width
		for nbits >= 8 {
			out = append(out, byte(acc))
			acc >>= 8
			nbits -= 8
		}
	}
	if nbits > 0 {
		out = append(out, byte(acc))
	}
	return out
}

func TestLZWDecoder_HandStream(t *testing.T) {
	// clear=4, eoi=5, codes start 3 bits wide
	tests := []struct {
		name  string
		codes []int
		limit int
		want  []byte
	}{
		{"clear mid stream", []int{4, 1, 2, 4, 3, 5}, 100, []byte{1, 2, 3}},
		{"dictionary entry", []int{4, 1, 2, 6}, 4, []byte{1, 2, 1, 2}},
		{"code not yet in dictionary", []int{4, 1, 6}, 3, []byte{1, 1, 1}},
		{"missing EOI", []int{4, 0, 3, 4, 1, 2, 4, 3}, 100, []byte{0, 3, 1, 2, 3}},
		{"limit", []int{4, 1, 2, 3, 5}, 2, []byte{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := newLZWDecoder(2, packCodes(3, tt.codes...))
			if err != nil {
				t.Fatal(err)
			}
			got, err := d.decode(tt.limit)
			if err != nil {
				t.Fatalf("decode() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLZWDecoder_Errors(t *testing.T) {
	if _, err := newLZWDecoder(1, nil); err == nil {
		t.Error("newLZWDecoder(1) error = nil")
	}
	if _, err := newLZWDecoder(9, nil); err == nil {
		t.Error("newLZWDecoder(9) error = nil")
	}

	d, err := newLZWDecoder(2, packCodes(3, 4, 1, 7))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.decode(100); err == nil {
		t.Error("decode() of out of range code error = nil")
	}
}

func TestLZWDecoder_RoundTrip(t *testing.T) {
	var text []byte
	for i := 0; i < 3000; i++ {
		text = append(text, byte(i*7%251), byte(i%13), 'a'+byte(i%26))
	}
	tests := []struct {
		name     string
		litWidth int
		data     []byte
	}{
		{"8-bit text", 8, text},
		{"2-bit samples", 2, bytes.Repeat([]byte{0, 1, 2, 3, 3, 2, 1, 0, 0, 0}, 500)},
		{"4-bit runs", 4, bytes.Repeat([]byte{15, 15, 15, 15, 7}, 2000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := lzw.NewWriter(&buf, lzw.LSB, tt.litWidth)
			if _, err := w.Write(tt.data); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			d, err := newLZWDecoder(tt.litWidth, buf.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			got, err := d.decode(len(tt.data))
			if err != nil {
				t.Fatalf("decode() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("decode() returned %d bytes that differ from the %d input bytes", len(got), len(tt.data))
			}
		})
	}
}
