package core

import (
	"errors"
	"sort"
)

// Repair rebuilds the cross-reference data of a damaged file.
//
// Every %%EOF marker closes one revision. Each span between consecutive
// markers is searched for xref tables, which are parsed independently and
// merged with later revisions taking precedence. If that yields no usable
// trailer, the file is scanned for "N G obj" headers instead.
func (x *XRefParser) Repair() (*XRefTable, error) {
	table := x.repairFromEOFMarkers()
	if table == nil || !table.Trailer.Has("Root") {
		scanned, err := x.scanObjects()
		if err != nil {
			return nil, err
		}
		if table != nil {
			// keep what the section scan recovered
			scanned.mergeOlder(table)
		}
		table = scanned
	}
	if !table.Trailer.Has("Root") {
		return nil, &CorruptError{Pos: -1, Err: errors.New("no document catalog found during repair")}
	}
	table.Repaired = true
	return table, nil
}

// eofOffsets returns the offsets just past every %%EOF marker, in order.
func (x *XRefParser) eofOffsets() []int64 {
	marker := []byte("%%EOF")
	var ends []int64
	x.lex.Seek(0)
	for {
		pos, ok := x.lex.FindSubstring(marker)
		if !ok {
			break
		}
		end := pos + int64(len(marker))
		ends = append(ends, end)
		x.lex.Seek(end)
	}
	if len(ends) == 0 || ends[len(ends)-1] < x.lex.Size() {
		// data after the last marker may be an unterminated update
		ends = append(ends, x.lex.Size())
	}
	return ends
}

// repairFromEOFMarkers parses every xref table found between consecutive
// %%EOF markers. It returns nil when none could be read.
func (x *XRefParser) repairFromEOFMarkers() *XRefTable {
	parsed := make(map[int64]bool)
	var queue []int64

	start := int64(0)
	for _, end := range x.eofOffsets() {
		for _, off := range x.findXRefKeywords(start, end) {
			if !parsed[off] {
				parsed[off] = true
				queue = append(queue, off)
			}
		}
		start = end
	}

	// newest revision first so that its entries win
	sort.Slice(queue, func(i, j int) bool { return queue[i] > queue[j] })

	var merged *XRefTable
	for _, off := range queue {
		section, err := x.ParseSection(off)
		if err != nil {
			x.logger.Debug("repair: skipping xref table", "offset", off, "error", err)
			continue
		}
		x.logger.Debug("repair: recovered xref table", "offset", off, "entries", section.Size())
		if merged == nil {
			merged = NewXRefTable()
		}
		merged.mergeOlder(section)
	}
	if merged != nil {
		x.dropBadOffsets(merged)
	}
	return merged
}

// findXRefKeywords returns offsets of "xref" keywords in [from, to) that
// are not part of "startxref".
func (x *XRefParser) findXRefKeywords(from, to int64) []int64 {
	var found []int64
	pat := []byte("xref")
	x.lex.Seek(from)
	for {
		pos, ok := x.lex.FindSubstring(pat)
		if !ok || pos >= to {
			return found
		}
		x.lex.Seek(pos + int64(len(pat)))

		if pos > 0 {
			if c, _ := x.lex.at(pos - 1); !isWhitespace(c) && !isDelimiter(c) {
				continue
			}
		}
		if c, ok := x.lex.at(pos + int64(len(pat))); ok && !isWhitespace(c) {
			continue
		}
		found = append(found, pos)
	}
}

// dropBadOffsets removes in-use entries whose offset does not hold the
// expected object header, since repaired tables often come from damaged
// revisions.
func (x *XRefParser) dropBadOffsets(table *XRefTable) {
	for num, e := range table.Entries {
		if e.Type != XRefInUse {
			continue
		}
		if !x.objectHeaderAt(e.Offset, num) {
			delete(table.Entries, num)
		}
	}
}

func (x *XRefParser) objectHeaderAt(off int64, num int) bool {
	if off <= 0 || off >= x.lex.Size() {
		return false
	}
	x.lex.Seek(off)
	n, ok := x.readInt()
	if !ok || int(n) != num {
		return false
	}
	if _, ok := x.readInt(); !ok {
		return false
	}
	tok, ok := x.lex.ReadLexeme()
	return ok && x.lex.Is(tok, "obj")
}

// scanObjects rebuilds the table from "N G obj" headers found anywhere in
// the file. Later definitions of an object replace earlier ones. The
// trailer comes from the last readable trailer dictionary or, failing
// that, from the catalog object found by the scan.
func (x *XRefParser) scanObjects() (*XRefTable, error) {
	table := NewXRefTable()
	pat := []byte("obj")

	x.lex.Seek(0)
	for {
		pos, ok := x.lex.FindSubstring(pat)
		if !ok {
			break
		}
		next := pos + int64(len(pat))
		if c, ok := x.lex.at(next); ok && !isWhitespace(c) && !isDelimiter(c) {
			x.lex.Seek(next)
			continue
		}
		if start, num, gen, ok := x.headerBefore(pos); ok {
			table.Set(num, &XRefEntry{Type: XRefInUse, Offset: start, Generation: gen})
		}
		x.lex.Seek(next)
	}
	if table.Size() == 0 {
		return nil, &CorruptError{Pos: -1, Err: errors.New("no objects found")}
	}
	x.logger.Debug("repair: rebuilt table from object headers", "objects", table.Size())
	table.Entries[0] = &XRefEntry{Type: XRefFree, Generation: 65535}

	x.addObjectStreamEntries(table)
	table.Trailer = x.scanTrailer(table)
	return table, nil
}

// headerBefore reads backwards from the "obj" keyword at pos over a
// generation and an object number.
func (x *XRefParser) headerBefore(pos int64) (start int64, num, gen int, ok bool) {
	p := pos - 1
	readBack := func() (int64, int64, bool) {
		for p >= 0 {
			c, _ := x.lex.at(p)
			if !isWhitespace(c) {
				break
			}
			p--
		}
		end := p + 1
		for p >= 0 {
			c, _ := x.lex.at(p)
			if !isDigit(c) {
				break
			}
			p--
		}
		if p+1 == end || end-(p+1) > 10 {
			return 0, 0, false
		}
		raw, err := x.lex.ReadAt(p+1, end)
		if err != nil {
			return 0, 0, false
		}
		v, ok := ParseInt(raw)
		return p + 1, v, ok
	}

	if c, _ := x.lex.at(p); !isWhitespace(c) {
		return 0, 0, 0, false
	}
	_, g, ok := readBack()
	if !ok {
		return 0, 0, 0, false
	}
	if c, _ := x.lex.at(p); !isWhitespace(c) {
		return 0, 0, 0, false
	}
	s, n, ok := readBack()
	if !ok || n <= 0 || g > 65535 {
		return 0, 0, 0, false
	}
	if p >= 0 {
		if c, _ := x.lex.at(p); !isWhitespace(c) && !isDelimiter(c) {
			return 0, 0, 0, false
		}
	}
	return s, int(n), int(g), true
}

// addObjectStreamEntries records the objects stored in every object
// stream found by the scan, without replacing direct objects.
func (x *XRefParser) addObjectStreamEntries(table *XRefTable) {
	for _, num := range table.ObjectNumbers() {
		e := table.Entries[num]
		if e.Type != XRefInUse {
			continue
		}
		stream, ok := x.streamAt(e.Offset)
		if !ok {
			continue
		}
		if typ, _ := stream.Dict.GetName("Type"); typ != "ObjStm" {
			continue
		}
		os, err := NewObjectStream(stream)
		if err != nil {
			continue
		}
		nums, err := os.ObjectNumbers()
		if err != nil {
			x.logger.Debug("repair: unreadable object stream", "object", num, "error", err)
			continue
		}
		for i, n := range nums {
			table.Add(n, &XRefEntry{Type: XRefCompressed, StreamNumber: num, Index: i})
		}
	}
}

func (x *XRefParser) streamAt(off int64) (*Stream, bool) {
	x.lex.Seek(off)
	p := NewParser(x.lex)
	obj, err := p.ReadIndirectObject()
	if err != nil {
		return nil, false
	}
	s, ok := obj.Object.(*Stream)
	return s, ok
}

// scanTrailer finds the trailer of a file rebuilt from object headers.
func (x *XRefParser) scanTrailer(table *XRefTable) *Dict {
	end := x.lex.Size()
	for {
		pos, ok := x.lex.findLastBefore([]byte("trailer"), end)
		if !ok {
			break
		}
		x.lex.Seek(pos + int64(len("trailer")))
		p := NewParser(x.lex)
		if obj, err := p.ReadObject(); err == nil {
			if d, ok := obj.(*Dict); ok && d.Has("Root") {
				d = d.Clone()
				d.Delete("Prev")
				d.Delete("XRefStm")
				return d
			}
		}
		end = pos + int64(len("trailer")) - 1
	}

	// no usable trailer: look for a catalog and an xref stream dictionary
	trailer := NewDict()
	for _, num := range table.ObjectNumbers() {
		e := table.Entries[num]
		if e.Type != XRefInUse {
			continue
		}
		x.lex.Seek(e.Offset)
		obj, err := NewParser(x.lex).ReadIndirectObject()
		if err != nil {
			continue
		}
		var dict *Dict
		switch v := obj.Object.(type) {
		case *Dict:
			dict = v
		case *Stream:
			dict = v.Dict
		default:
			continue
		}
		switch typ, _ := dict.GetName("Type"); typ {
		case "Catalog":
			trailer.Set("Root", obj.Ref)
		case "XRef":
			for _, k := range []string{"Root", "Info", "ID", "Encrypt"} {
				if v := dict.Get(k); v != nil && !trailer.Has(k) {
					trailer.Set(k, v)
				}
			}
		}
		if !trailer.Has("Info") && (dict.Has("Producer") || dict.Has("CreationDate")) && !dict.Has("Type") {
			trailer.Set("Info", obj.Ref)
		}
	}
	maxNum := 0
	for n := range table.Entries {
		if n > maxNum {
			maxNum = n
		}
	}
	trailer.Set("Size", Int(maxNum+1))
	return trailer
}
