package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// XRefEntryType distinguishes the three kinds of cross-reference entries.
type XRefEntryType int

const (
	XRefFree       XRefEntryType = iota // unused object number
	XRefInUse                           // object stored at a byte offset
	XRefCompressed                      // object stored inside an object stream
)

// String returns the name of the entry type
func (t XRefEntryType) String() string {
	switch t {
	case XRefFree:
		return "free"
	case XRefInUse:
		return "in-use"
	case XRefCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// XRefEntry locates one object.
type XRefEntry struct {
	Type       XRefEntryType
	Offset     int64 // in-use: byte offset; free: next free object number
	Generation int

	StreamNumber int // compressed: number of the containing object stream
	Index        int // compressed: index within that stream
}

// InUse reports whether the entry refers to an existing object.
func (e *XRefEntry) InUse() bool {
	return e != nil && e.Type != XRefFree
}

// XRefTable maps object numbers to their locations.
type XRefTable struct {
	Entries map[int]*XRefEntry
	Trailer *Dict

	// Repaired is set when the table was rebuilt by scanning the file.
	Repaired bool
}

// NewXRefTable creates a new empty XRef table
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Entries: make(map[int]*XRefEntry),
		Trailer: NewDict(),
	}
}

// Get retrieves an XRef entry by object number
func (x *XRefTable) Get(objNum int) (*XRefEntry, bool) {
	entry, ok := x.Entries[objNum]
	return entry, ok
}

// Set adds or replaces an entry.
func (x *XRefTable) Set(objNum int, entry *XRefEntry) {
	x.Entries[objNum] = entry
}

// Add stores entry unless objNum already has one. Sections are read from
// newest to oldest, so the first entry seen for an object is current.
func (x *XRefTable) Add(objNum int, entry *XRefEntry) bool {
	if _, ok := x.Entries[objNum]; ok {
		return false
	}
	x.Entries[objNum] = entry
	return true
}

// Size returns the number of object slots in the table.
func (x *XRefTable) Size() int {
	return len(x.Entries)
}

// ObjectNumbers returns all object numbers in ascending order.
func (x *XRefTable) ObjectNumbers() []int {
	nums := make([]int, 0, len(x.Entries))
	for n := range x.Entries {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// mergeOlder folds an older section into x: existing entries and trailer
// keys win, and chain links are never copied.
func (x *XRefTable) mergeOlder(older *XRefTable) {
	for num, entry := range older.Entries {
		x.Add(num, entry)
	}
	for _, key := range older.Trailer.Keys() {
		if key == "Prev" || key == "XRefStm" || x.Trailer.Has(key) {
			continue
		}
		x.Trailer.Set(key, older.Trailer.Get(key))
	}
}

// XRefParser reads cross-reference sections from a lexer.
type XRefParser struct {
	lex    *Lexer
	logger *slog.Logger
}

// NewXRefParser creates a new XRef parser
func NewXRefParser(lex *Lexer) *XRefParser {
	return &XRefParser{lex: lex, logger: slog.New(slog.DiscardHandler)}
}

// SetLogger sets the logger used to report repairs.
func (x *XRefParser) SetLogger(logger *slog.Logger) {
	if logger != nil {
		x.logger = logger
	}
}

// Load reads the cross-reference data of the whole file. When the
// startxref offset does not lead to usable sections, the file is repaired
// by scanning.
func (x *XRefParser) Load() (*XRefTable, error) {
	start, err := x.FindStartXRef()
	if err == nil {
		table, err := x.LoadChain(start)
		if err == nil {
			return table, nil
		}
		x.logger.Debug("cross-reference chain unreadable, repairing", "startxref", start, "error", err)
	} else {
		x.logger.Debug("startxref unusable, repairing", "error", err)
	}
	return x.Repair()
}

// FindStartXRef returns the offset given after the last startxref keyword.
func (x *XRefParser) FindStartXRef() (int64, error) {
	pos, ok := x.lex.FindLastSubstring([]byte("startxref"))
	if !ok {
		return 0, ErrNoXRef
	}
	x.lex.Seek(pos + int64(len("startxref")))
	tok, ok := x.lex.ReadLexeme()
	if !ok {
		return 0, corrupt(pos, "startxref without offset")
	}
	off, ok := x.lex.ToInt(tok)
	if !ok || off < 0 || off >= x.lex.Size() {
		return 0, corrupt(pos, "invalid startxref offset %q", x.lex.Bytes(tok))
	}
	return off, nil
}

// LoadChain reads the section at start and every older section reachable
// through /Prev, folding in hybrid /XRefStm streams. Each offset is read at
// most once.
func (x *XRefParser) LoadChain(start int64) (*XRefTable, error) {
	var merged *XRefTable
	visited := make(map[int64]bool)

	off, more := start, true
	for more {
		if visited[off] {
			x.logger.Debug("cross-reference chain revisits offset", "offset", off)
			break
		}
		visited[off] = true

		section, err := x.ParseSection(off)
		if err != nil {
			if merged == nil {
				return nil, err
			}
			// a broken older section leaves the newer data usable
			x.logger.Debug("skipping unreadable older cross-reference section", "offset", off, "error", err)
			break
		}

		if stm, ok := section.Trailer.GetInt("XRefStm"); ok && !visited[int64(stm)] {
			visited[int64(stm)] = true
			x.mergeHybrid(section, int64(stm))
		}

		var prev Int
		prev, more = section.Trailer.GetInt("Prev")
		off = int64(prev)

		if merged == nil {
			merged = NewXRefTable()
		}
		merged.mergeOlder(section)
	}

	if !merged.Trailer.Has("Root") {
		return nil, corrupt(start, "trailer has no /Root")
	}
	return merged, nil
}

// mergeHybrid adds the entries of the cross-reference stream named by a
// classic table's /XRefStm. They fill gaps and replace free entries of the
// table but leave its in-use entries alone.
func (x *XRefParser) mergeHybrid(section *XRefTable, off int64) {
	hidden, err := x.ParseSection(off)
	if err != nil {
		x.logger.Debug("ignoring unreadable XRefStm", "offset", off, "error", err)
		return
	}
	for num, e := range hidden.Entries {
		if cur, ok := section.Entries[num]; !ok || cur.Type == XRefFree {
			section.Entries[num] = e
		}
	}
}

// ParseSection reads a single classic table or cross-reference stream at
// off. Its trailer still holds /Prev and /XRefStm.
func (x *XRefParser) ParseSection(off int64) (*XRefTable, error) {
	x.lex.Seek(off)
	tok, ok := x.lex.ReadLexeme()
	if !ok {
		return nil, corrupt(off, "no cross-reference section")
	}
	if x.lex.Is(tok, "xref") {
		return x.parseTable(off)
	}
	x.lex.Seek(off)
	return x.parseStream(off)
}

// parseTable reads subsections of "offset generation n|f" entries up to
// the trailer keyword. The lexer is positioned after "xref".
func (x *XRefParser) parseTable(off int64) (*XRefTable, error) {
	table := NewXRefTable()
	for {
		pos := x.lex.Offset()
		tok, ok := x.lex.ReadLexeme()
		if !ok {
			return nil, corrupt(pos, "xref table without trailer")
		}
		if x.lex.Is(tok, "trailer") {
			break
		}
		first, ok1 := x.lex.ToInt(tok)
		count, ok2 := x.readInt()
		if !ok1 || !ok2 || first < 0 || count < 0 {
			return nil, corrupt(pos, "invalid xref subsection header")
		}

		for i := int64(0); i < count; i++ {
			entry, err := x.parseEntry()
			if err != nil {
				return nil, err
			}
			// some writers number the first subsection from 1 although it
			// starts with the free head of the list
			if i == 0 && first == 1 && entry.Type == XRefFree && entry.Generation == 65535 {
				first = 0
			}
			table.Add(int(first+i), entry)
		}
	}

	p := NewParser(x.lex)
	p.SetLogger(x.logger)
	obj, err := p.ReadObject()
	if err != nil {
		return nil, &CorruptError{Pos: off, Err: fmt.Errorf("trailer: %w", err)}
	}
	trailer, ok := obj.(*Dict)
	if !ok {
		return nil, corrupt(off, "trailer is %s, not a dictionary", obj.Type())
	}
	table.Trailer = trailer
	return table, nil
}

// parseEntry reads one 20-byte entry. Whitespace between the fields is
// read loosely since many writers get the line ending wrong.
func (x *XRefParser) parseEntry() (*XRefEntry, error) {
	pos := x.lex.Offset()
	offset, ok1 := x.readInt()
	gen, ok2 := x.readInt()
	tok, ok3 := x.lex.ReadLexeme()
	if !ok1 || !ok2 || !ok3 || tok.Len != 1 {
		return nil, corrupt(pos, "malformed xref entry")
	}
	if gen > 65535 {
		gen = 65535
	}
	switch x.lex.Bytes(tok)[0] {
	case 'n':
		if offset == 0 {
			return &XRefEntry{Type: XRefFree, Generation: int(gen)}, nil
		}
		return &XRefEntry{Type: XRefInUse, Offset: offset, Generation: int(gen)}, nil
	case 'f':
		return &XRefEntry{Type: XRefFree, Offset: offset, Generation: int(gen)}, nil
	}
	return nil, corrupt(pos, "invalid xref entry flag %q", x.lex.Bytes(tok))
}

func (x *XRefParser) readInt() (int64, bool) {
	tok, ok := x.lex.ReadLexeme()
	if !ok || tok.Kind != TokenRegular {
		return 0, false
	}
	return x.lex.ToInt(tok)
}

// xrefStreamKeys are stream dictionary entries that do not belong in the
// document trailer.
var xrefStreamKeys = []string{
	"Type", "W", "Index", "Length", "Filter", "DecodeParms", "DL",
	"F", "FFilter", "FDecodeParms",
}

// parseStream reads a cross-reference stream object at off.
func (x *XRefParser) parseStream(off int64) (*XRefTable, error) {
	p := NewParser(x.lex)
	p.SetLogger(x.logger)
	obj, err := p.ReadIndirectObject()
	if err != nil {
		return nil, &CorruptError{Pos: off, Err: fmt.Errorf("neither xref table nor xref stream: %w", err)}
	}
	stream, ok := obj.Object.(*Stream)
	if !ok {
		return nil, corrupt(off, "object %d is not a stream", obj.Ref.Number)
	}
	if typ, _ := stream.Dict.GetName("Type"); typ != "XRef" {
		return nil, corrupt(off, "stream type %q is not XRef", string(typ))
	}

	table, err := DecodeXRefStream(stream)
	if err != nil {
		return nil, &CorruptError{Pos: off, Err: err}
	}
	return table, nil
}

// DecodeXRefStream builds a section from a cross-reference stream.
func DecodeXRefStream(stream *Stream) (*XRefTable, error) {
	dict := stream.Dict
	size, ok := dict.GetInt("Size")
	if !ok || size < 0 {
		return nil, errors.New("xref stream has invalid /Size")
	}

	wArr, ok := dict.GetArray("W")
	if !ok || len(wArr) != 3 {
		return nil, errors.New("xref stream has invalid /W")
	}
	var w [3]int
	for i := range w {
		v, ok := wArr.GetInt(i)
		if !ok || v < 0 || v > 8 {
			return nil, fmt.Errorf("xref stream has invalid field width %v", wArr.Get(i))
		}
		w[i] = int(v)
	}
	recLen := w[0] + w[1] + w[2]
	if recLen == 0 {
		return nil, errors.New("xref stream has zero record length")
	}

	index := []int64{0, int64(size)}
	if arr, ok := dict.GetArray("Index"); ok {
		if len(arr)%2 != 0 {
			return nil, errors.New("xref stream /Index has odd length")
		}
		index = index[:0]
		for i := range arr {
			v, ok := arr.GetInt(i)
			if !ok || v < 0 {
				return nil, errors.New("xref stream /Index holds invalid value")
			}
			index = append(index, int64(v))
		}
	}

	data, err := stream.Decode()
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}

	table := NewXRefTable()
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			if pos+recLen > len(data) {
				// truncated data ends the section
				return withTrailer(table, dict), nil
			}
			rec := data[pos : pos+recLen]
			pos += recLen

			typ := int64(1)
			if w[0] > 0 {
				typ = decodeInt(rec[:w[0]])
			}
			f2 := decodeInt(rec[w[0] : w[0]+w[1]])
			f3 := decodeInt(rec[w[0]+w[1]:])

			var entry *XRefEntry
			switch typ {
			case 0:
				entry = &XRefEntry{Type: XRefFree, Offset: f2, Generation: int(f3)}
			case 1:
				entry = &XRefEntry{Type: XRefInUse, Offset: f2, Generation: int(f3)}
			case 2:
				entry = &XRefEntry{Type: XRefCompressed, StreamNumber: int(f2), Index: int(f3)}
			default:
				// unknown types are references to the null object
				continue
			}
			table.Add(int(start+j), entry)
		}
	}
	return withTrailer(table, dict), nil
}

func withTrailer(table *XRefTable, dict *Dict) *XRefTable {
	trailer := dict.Clone()
	for _, k := range xrefStreamKeys {
		trailer.Delete(k)
	}
	table.Trailer = trailer
	return table
}

// decodeInt reads a big-endian unsigned integer.
func decodeInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}
