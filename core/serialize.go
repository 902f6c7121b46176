package core

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"io"
	"math"
	"strconv"
	"strings"
)

// Format returns the PDF syntax for obj.
func Format(obj Object) []byte {
	var buf bytes.Buffer
	_ = WriteObject(&buf, obj)
	return buf.Bytes()
}

// WriteObject writes obj in PDF syntax. Streams are written with a /Length
// matching their data.
func WriteObject(w io.Writer, obj Object) error {
	bw := bufio.NewWriter(w)
	writeObject(bw, obj)
	return bw.Flush()
}

// WriteIndirectObject writes "N G obj ... endobj".
func WriteIndirectObject(w io.Writer, ref IndirectRef, obj Object) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(strconv.Itoa(ref.Number))
	bw.WriteByte(' ')
	bw.WriteString(strconv.Itoa(ref.Generation))
	bw.WriteString(" obj\n")
	writeObject(bw, obj)
	bw.WriteString("\nendobj\n")
	return bw.Flush()
}

func writeObject(w *bufio.Writer, obj Object) {
	switch v := obj.(type) {
	case nil, Null:
		w.WriteString("null")
	case Bool, Int, IndirectRef:
		w.WriteString(v.String())
	case Real:
		w.WriteString(formatReal(float64(v)))
	case Name:
		writeName(w, string(v))
	case String:
		writeString(w, v)
	case Array:
		w.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				w.WriteByte(' ')
			}
			writeObject(w, elem)
		}
		w.WriteByte(']')
	case *Dict:
		writeDict(w, v)
	case *Stream:
		dict := v.Dict.Clone()
		dict.Set("Length", Int(len(v.Data)))
		writeDict(w, dict)
		w.WriteString("\nstream\n")
		w.Write(v.Data)
		w.WriteString("\nendstream")
	default:
		w.WriteString(v.String())
	}
}

func writeDict(w *bufio.Writer, d *Dict) {
	w.WriteString("<<")
	for _, key := range d.Keys() {
		w.WriteByte(' ')
		writeName(w, key)
		w.WriteByte(' ')
		writeObject(w, d.Get(key))
	}
	w.WriteString(" >>")
}

// formatReal never uses exponent notation and always keeps a period so the
// value reads back as a real.
func formatReal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0.0"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func writeName(w *bufio.Writer, name string) {
	w.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			w.WriteByte('#')
			w.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
			continue
		}
		w.WriteByte(c)
	}
}

func writeString(w *bufio.Writer, s String) {
	if s.Hex {
		w.WriteByte('<')
		w.WriteString(hex.EncodeToString(s.Value))
		w.WriteByte('>')
		return
	}
	w.WriteByte('(')
	for _, c := range s.Value {
		switch c {
		case '(', ')', '\\':
			w.WriteByte('\\')
			w.WriteByte(c)
		case '\r':
			w.WriteString(`\r`)
		default:
			w.WriteByte(c)
		}
	}
	w.WriteByte(')')
}
