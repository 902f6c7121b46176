package core

import (
	"fmt"
)

// ObjectStream is a decoded /Type /ObjStm stream holding compressed objects.
// The header is parsed on first access and objects are parsed on demand.
type ObjectStream struct {
	stream  *Stream
	n       int
	first   int
	extends *IndirectRef

	decoded []byte
	entries []objStmEntry
	objects map[int]Object // by index
}

type objStmEntry struct {
	num    int
	offset int // relative to first
}

// NewObjectStream checks the dictionary of an object stream. Data must
// already be decrypted.
func NewObjectStream(stream *Stream) (*ObjectStream, error) {
	if stream == nil {
		return nil, fmt.Errorf("stream is nil")
	}
	if typ, _ := stream.Dict.GetName("Type"); typ != "ObjStm" {
		return nil, fmt.Errorf("stream is not an object stream, got type %q", string(typ))
	}
	n, ok := stream.Dict.GetInt("N")
	if !ok || n < 0 {
		return nil, fmt.Errorf("object stream has invalid /N")
	}
	first, ok := stream.Dict.GetInt("First")
	if !ok || first < 0 {
		return nil, fmt.Errorf("object stream has invalid /First")
	}

	os := &ObjectStream{
		stream:  stream,
		n:       int(n),
		first:   int(first),
		objects: make(map[int]Object),
	}
	if ref, ok := stream.Dict.GetIndirectRef("Extends"); ok {
		os.extends = &ref
	}
	return os, nil
}

// N returns the number of objects declared in the stream.
func (os *ObjectStream) N() int { return os.n }

// First returns the offset of the first object in the decoded data.
func (os *ObjectStream) First() int { return os.first }

// Extends returns the object stream this one extends, or nil.
func (os *ObjectStream) Extends() *IndirectRef { return os.extends }

func (os *ObjectStream) decode() error {
	if os.decoded != nil {
		return nil
	}
	decoded, err := os.stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode object stream: %w", err)
	}
	if os.first > len(decoded) {
		return fmt.Errorf("/First %d exceeds decoded length %d", os.first, len(decoded))
	}

	p := NewParserBytes(decoded[:os.first])
	entries := make([]objStmEntry, 0, os.n)
	for i := 0; i < os.n; i++ {
		num, ok1 := p.readInt()
		off, ok2 := p.readInt()
		if !ok1 || !ok2 {
			return fmt.Errorf("object stream header truncated at entry %d", i)
		}
		entries = append(entries, objStmEntry{num: int(num), offset: int(off)})
	}
	os.decoded = decoded
	os.entries = entries
	return nil
}

// GetObjectByIndex parses the object at index (0-based) and returns it with
// its object number.
func (os *ObjectStream) GetObjectByIndex(index int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(os.entries) {
		return nil, 0, fmt.Errorf("index %d out of range [0, %d)", index, len(os.entries))
	}
	num := os.entries[index].num
	if obj, ok := os.objects[index]; ok {
		return obj, num, nil
	}

	start := os.first + os.entries[index].offset
	if start < os.first || start >= len(os.decoded) {
		return nil, 0, fmt.Errorf("object %d offset %d out of range", num, start)
	}
	p := NewParserBytes(os.decoded[start:])
	obj, err := p.ReadObject()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse object %d at index %d: %w", num, index, err)
	}
	os.objects[index] = obj
	return obj, num, nil
}

// GetObjectByNumber returns the object with number num and its index.
func (os *ObjectStream) GetObjectByNumber(num int) (Object, int, error) {
	if err := os.decode(); err != nil {
		return nil, 0, err
	}
	for i, e := range os.entries {
		if e.num == num {
			obj, _, err := os.GetObjectByIndex(i)
			return obj, i, err
		}
	}
	return nil, 0, fmt.Errorf("object %d not found in object stream", num)
}

// ObjectNumbers returns the object numbers in header order.
func (os *ObjectStream) ObjectNumbers() ([]int, error) {
	if err := os.decode(); err != nil {
		return nil, err
	}
	nums := make([]int, len(os.entries))
	for i, e := range os.entries {
		nums[i] = e.num
	}
	return nums, nil
}
