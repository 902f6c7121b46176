package reader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/crypt"
)

// pdfBuilder writes small PDF files with correct offsets.
type pdfBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
	// compressed objects: object number -> (stream number, index)
	compressed map[int][2]int

	security   *crypt.Handler
	encryptNum int
}

func newPDF(version string) *pdfBuilder {
	b := &pdfBuilder{
		offsets:    make(map[int]int64),
		compressed: make(map[int][2]int),
	}
	fmt.Fprintf(&b.buf, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", version)
	return b
}

func mkDict(kv ...interface{}) *core.Dict {
	d := core.NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(kv[i].(string), kv[i+1].(core.Object))
	}
	return d
}

func ref(n int) core.IndirectRef { return core.IndirectRef{Number: n} }

// add writes object num, encrypting it when the builder has a handler.
func (b *pdfBuilder) add(num int, obj core.Object) {
	r := core.IndirectRef{Number: num}
	if b.security != nil && num != b.encryptNum {
		obj = encryptObject(b.security, r, obj)
	}
	b.offsets[num] = int64(b.buf.Len())
	if err := core.WriteIndirectObject(&b.buf, r, obj); err != nil {
		panic(err)
	}
}

// addObjStm writes object stream num holding objs in the given order.
func (b *pdfBuilder) addObjStm(num int, nums []int, objs []core.Object) {
	var header, body bytes.Buffer
	for i, o := range objs {
		fmt.Fprintf(&header, "%d %d ", nums[i], body.Len())
		body.Write(core.Format(o))
		body.WriteByte('\n')
		b.compressed[nums[i]] = [2]int{num, i}
	}
	data := append(header.Bytes(), body.Bytes()...)
	dict := mkDict("Type", core.Name("ObjStm"), "N", core.Int(len(objs)), "First", core.Int(header.Len()))
	b.add(num, core.NewStream(dict, data))
}

func (b *pdfBuilder) maxNum() int {
	n := 0
	for num := range b.offsets {
		n = max(n, num)
	}
	for num := range b.compressed {
		n = max(n, num)
	}
	return n
}

// finish writes a classic xref table and trailer.
func (b *pdfBuilder) finish(trailer *core.Dict) []byte {
	size := b.maxNum() + 1
	start := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", size)
	for num := 0; num < size; num++ {
		if off, ok := b.offsets[num]; ok {
			fmt.Fprintf(&b.buf, "%010d 00000 n\r\n", off)
		} else {
			b.buf.WriteString("0000000000 65535 f\r\n")
		}
	}
	trailer.Set("Size", core.Int(size))
	b.buf.WriteString("trailer\n")
	b.buf.Write(core.Format(trailer))
	fmt.Fprintf(&b.buf, "\nstartxref\n%d\n%%%%EOF\n", start)
	return b.buf.Bytes()
}

// finishStream writes a cross-reference stream as object xrefNum.
func (b *pdfBuilder) finishStream(xrefNum int, trailer *core.Dict) []byte {
	start := int64(b.buf.Len())
	b.offsets[xrefNum] = start
	size := b.maxNum() + 1

	var data []byte
	for num := 0; num < size; num++ {
		if off, ok := b.offsets[num]; ok {
			data = append(data, 1, byte(off>>24), byte(off>>16), byte(off>>8), byte(off), 0, 0)
		} else if c, ok := b.compressed[num]; ok {
			data = append(data, 2, byte(c[0]>>24), byte(c[0]>>16), byte(c[0]>>8), byte(c[0]), byte(c[1]>>8), byte(c[1]))
		} else {
			data = append(data, 0, 0, 0, 0, 0, 0xFF, 0xFF)
		}
	}
	dict := trailer.Clone()
	dict.Set("Type", core.Name("XRef"))
	dict.Set("Size", core.Int(size))
	dict.Set("W", core.Array{core.Int(1), core.Int(4), core.Int(2)})
	if err := core.WriteIndirectObject(&b.buf, ref(xrefNum), core.NewStream(dict, data)); err != nil {
		panic(err)
	}
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", start)
	return b.buf.Bytes()
}

// encrypt installs a fresh encryption dictionary as object num and returns
// the trailer entries it needs.
func (b *pdfBuilder) encrypt(t *testing.T, num, revision int, user, owner string, perm crypt.Perm) *core.Dict {
	t.Helper()
	id := []byte("0123456789abcdef")
	enc := crypt.NewEncryptor(revision, id)
	dict, err := enc.Reset(user, owner, perm)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	b.encryptNum = num
	b.security = enc.Handler()
	b.add(num, dict)
	return mkDict(
		"Encrypt", ref(num),
		"ID", core.Array{core.String{Value: id, Hex: true}, core.String{Value: id, Hex: true}},
	)
}

func encryptObject(h *crypt.Handler, r core.IndirectRef, obj core.Object) core.Object {
	switch v := obj.(type) {
	case core.String:
		enc, err := h.EncryptString(r, v.Value)
		if err != nil {
			panic(err)
		}
		return core.String{Value: enc, Hex: true}
	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			out[i] = encryptObject(h, r, elem)
		}
		return out
	case *core.Dict:
		out := core.NewDict()
		for _, k := range v.Keys() {
			out.Set(k, encryptObject(h, r, v.Get(k)))
		}
		return out
	case *core.Stream:
		data, err := h.EncryptStream(r, v.Data)
		if err != nil {
			panic(err)
		}
		return &core.Stream{Dict: encryptObject(h, r, v.Dict).(*core.Dict), Data: data}
	}
	return obj
}

// basicPDF is a catalog, an empty page tree and an info dictionary.
func basicPDF(t *testing.T) []byte {
	t.Helper()
	b := newPDF("1.4")
	b.add(1, mkDict("Type", core.Name("Catalog"), "Pages", ref(2)))
	b.add(2, mkDict("Type", core.Name("Pages"), "Kids", core.Array{}, "Count", core.Int(0)))
	b.add(3, mkDict("Title", core.NewString("Test Document"), "Author", core.NewString("Test Author")))
	return b.finish(mkDict("Root", ref(1), "Info", ref(3)))
}

func openBytes(t *testing.T, data []byte, opts ...Option) *Reader {
	t.Helper()
	r, err := New(bytes.NewReader(data), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

// createTempPDF creates a temporary PDF file with the given content
func createTempPDF(t *testing.T, content []byte) string {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "test.pdf")
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		t.Fatalf("failed to create temp PDF: %v", err)
	}
	return tmpFile
}
