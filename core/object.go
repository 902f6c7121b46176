package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Object represents a PDF object
type Object interface {
	Type() ObjectType
	String() string
}

// ObjectType represents the type of PDF object
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjReal
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjIndirect
)

// String returns the string representation of the object type
func (t ObjectType) String() string {
	switch t {
	case ObjNull:
		return "Null"
	case ObjBool:
		return "Bool"
	case ObjInt:
		return "Int"
	case ObjReal:
		return "Real"
	case ObjString:
		return "String"
	case ObjName:
		return "Name"
	case ObjArray:
		return "Array"
	case ObjDict:
		return "Dict"
	case ObjStream:
		return "Stream"
	case ObjIndirect:
		return "IndirectRef"
	default:
		return "Unknown"
	}
}

// Null represents a PDF null object
type Null struct{}

func (n Null) Type() ObjectType { return ObjNull }
func (n Null) String() string   { return "null" }

// Bool represents a PDF boolean
type Bool bool

func (b Bool) Type() ObjectType { return ObjBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int represents a PDF integer
type Int int64

func (i Int) Type() ObjectType { return ObjInt }
func (i Int) String() string   { return strconv.FormatInt(int64(i), 10) }

// Real represents a PDF real number
type Real float64

func (r Real) Type() ObjectType { return ObjReal }
func (r Real) String() string   { return strconv.FormatFloat(float64(r), 'f', -1, 64) }

// String represents a PDF string. The bytes are kept raw; Hex records whether
// the string was written as <...> rather than (...).
type String struct {
	Value []byte
	Hex   bool
}

// NewString returns a literal string holding s.
func NewString(s string) String { return String{Value: []byte(s)} }

func (s String) Type() ObjectType { return ObjString }
func (s String) String() string   { return string(s.Value) }

// Name represents a PDF name. The value is stored decoded, without the
// leading slash and with #xx escapes resolved.
type Name string

func (n Name) Type() ObjectType { return ObjName }
func (n Name) String() string   { return "/" + string(n) }

// Array represents a PDF array
type Array []Object

func (a Array) Type() ObjectType { return ObjArray }
func (a Array) String() string {
	parts := make([]string, 0, len(a))
	for _, obj := range a {
		parts = append(parts, objString(obj))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Len returns the length of the array
func (a Array) Len() int {
	return len(a)
}

// Get retrieves an element at the given index
func (a Array) Get(index int) Object {
	if index < 0 || index >= len(a) {
		return nil
	}
	return a[index]
}

// GetInt retrieves an integer at the given index
func (a Array) GetInt(index int) (Int, bool) {
	i, ok := a.Get(index).(Int)
	return i, ok
}

// GetReal retrieves a number at the given index, converting integers.
func (a Array) GetReal(index int) (Real, bool) {
	return toReal(a.Get(index))
}

// GetName retrieves a name at the given index
func (a Array) GetName(index int) (Name, bool) {
	n, ok := a.Get(index).(Name)
	return n, ok
}

// Dict represents a PDF dictionary. Keys are unique and keep their insertion
// order; setting an existing key replaces its value in place.
type Dict struct {
	keys []string
	m    map[string]Object
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{m: make(map[string]Object)}
}

func (d *Dict) Type() ObjectType { return ObjDict }
func (d *Dict) String() string {
	if d == nil {
		return "<<>>"
	}
	parts := make([]string, 0, len(d.keys))
	for _, key := range d.keys {
		parts = append(parts, fmt.Sprintf("/%s %s", key, objString(d.m[key])))
	}
	return "<<" + strings.Join(parts, " ") + ">>"
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Get retrieves a value from the dictionary
func (d *Dict) Get(key string) Object {
	if d == nil {
		return nil
	}
	return d.m[key]
}

// GetName retrieves a name value
func (d *Dict) GetName(key string) (Name, bool) {
	name, ok := d.Get(key).(Name)
	return name, ok
}

// GetInt retrieves an integer value. Reals with an integral value are
// accepted because some producers write /Length 120.0.
func (d *Dict) GetInt(key string) (Int, bool) {
	switch v := d.Get(key).(type) {
	case Int:
		return v, true
	case Real:
		if float64(v) == float64(int64(v)) {
			return Int(v), true
		}
	}
	return 0, false
}

// GetDict retrieves a dictionary value
func (d *Dict) GetDict(key string) (*Dict, bool) {
	dict, ok := d.Get(key).(*Dict)
	return dict, ok && dict != nil
}

// GetArray retrieves an array value
func (d *Dict) GetArray(key string) (Array, bool) {
	arr, ok := d.Get(key).(Array)
	return arr, ok
}

// GetReal retrieves a number value, converting integers.
func (d *Dict) GetReal(key string) (Real, bool) {
	return toReal(d.Get(key))
}

// GetString retrieves a string value
func (d *Dict) GetString(key string) (String, bool) {
	s, ok := d.Get(key).(String)
	return s, ok
}

// GetBool retrieves a boolean value
func (d *Dict) GetBool(key string) (Bool, bool) {
	b, ok := d.Get(key).(Bool)
	return b, ok
}

// GetStream retrieves a stream value
func (d *Dict) GetStream(key string) (*Stream, bool) {
	s, ok := d.Get(key).(*Stream)
	return s, ok
}

// GetIndirectRef retrieves an indirect reference
func (d *Dict) GetIndirectRef(key string) (IndirectRef, bool) {
	ref, ok := d.Get(key).(IndirectRef)
	return ref, ok
}

// Has checks if a key exists in the dictionary
func (d *Dict) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.m[key]
	return ok
}

// Set sets a value in the dictionary. A nil value removes the key.
func (d *Dict) Set(key string, value Object) {
	if value == nil {
		d.Delete(key)
		return
	}
	if d.m == nil {
		d.m = make(map[string]Object)
	}
	if _, ok := d.m[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.m[key] = value
}

// Delete removes a key from the dictionary
func (d *Dict) Delete(key string) {
	if d == nil {
		return
	}
	if _, ok := d.m[key]; !ok {
		return
	}
	delete(d.m, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns all keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

// Clone returns a shallow copy of the dictionary.
func (d *Dict) Clone() *Dict {
	c := NewDict()
	if d == nil {
		return c
	}
	for _, k := range d.keys {
		c.Set(k, d.m[k])
	}
	return c
}

// Stream represents a PDF stream object. Data holds the bytes as stored in
// the file (after decryption, before filters).
type Stream struct {
	Dict *Dict
	Data []byte

	decoded []byte
}

// NewStream returns a stream whose /Length matches data.
func NewStream(dict *Dict, data []byte) *Stream {
	if dict == nil {
		dict = NewDict()
	}
	dict.Set("Length", Int(len(data)))
	return &Stream{Dict: dict, Data: data}
}

func (s *Stream) Type() ObjectType { return ObjStream }
func (s *Stream) String() string {
	return fmt.Sprintf("stream %s (%d bytes)", s.Dict.String(), len(s.Data))
}

// IndirectRef represents an indirect object reference
type IndirectRef struct {
	Number     int
	Generation int
}

func (r IndirectRef) Type() ObjectType { return ObjIndirect }
func (r IndirectRef) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// IndirectObject represents an indirect object with its reference
type IndirectObject struct {
	Ref    IndirectRef
	Object Object
}

func objString(obj Object) string {
	if obj == nil {
		return "null"
	}
	return obj.String()
}

func toReal(obj Object) (Real, bool) {
	switch v := obj.(type) {
	case Real:
		return v, true
	case Int:
		return Real(v), true
	}
	return 0, false
}
