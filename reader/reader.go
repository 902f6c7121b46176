package reader

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/crypt"
	"github.com/tsawler/pdfcore/format"
	"github.com/tsawler/pdfcore/resolver"
)

// ErrObjectNotFound is matched by errors for object numbers that have no
// in-use cross-reference entry.
var ErrObjectNotFound = errors.New("object not found")

// ErrNotPDF is returned when the input is recognisably some other format.
var ErrNotPDF = errors.New("not a PDF file")

// PDFVersion represents a PDF version
type PDFVersion struct {
	Major int
	Minor int
}

// String returns the version as a string (e.g., "1.7")
func (v PDFVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v PDFVersion) less(w PDFVersion) bool {
	return v.Major < w.Major || v.Major == w.Major && v.Minor < w.Minor
}

var versionPattern = regexp.MustCompile(`%PDF-(\d+)\.(\d+)`)

// Reader gives access to the objects of a PDF file. Objects are parsed on
// first use and cached; encrypted strings and streams are decrypted as
// they are loaded.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	lex      *core.Lexer
	closer   io.Closer
	xref     *core.XRefTable
	trailer  *core.Dict
	version  PDFVersion
	resolver *resolver.ObjectResolver
	logger   *slog.Logger

	security   *crypt.Handler
	encryptRef core.IndirectRef // the encryption dictionary is never decrypted

	objCache   map[int]core.Object
	objStreams map[int]*core.ObjectStream
	loading    map[int]bool

	warnings []string
}

// Open opens a PDF file and returns a Reader. Close releases the file.
func Open(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r, err := New(file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// New reads the header, cross-reference data and trailer of a PDF held in
// rs. Encrypted documents are authenticated here, so an error matching
// crypt.ErrInvalidPassword means a different password may succeed.
func New(rs io.ReadSeeker, opts ...Option) (*Reader, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	lex, err := core.NewLexer(rs)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		lex:        lex,
		logger:     o.logger,
		objCache:   make(map[int]core.Object),
		objStreams: make(map[int]*core.ObjectStream),
		loading:    make(map[int]bool),
	}
	r.resolver = resolver.NewResolver(r)

	version, err := r.parseHeader(o.repair)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}
	r.version = version

	xref, err := r.loadXRef(o.repair)
	if err != nil {
		return nil, fmt.Errorf("failed to load xref: %w", err)
	}
	r.xref = xref
	r.trailer = xref.Trailer
	if xref.Repaired {
		r.warn("cross-reference data was rebuilt by scanning the file")
	}

	if err := r.setupSecurity(o); err != nil {
		return nil, err
	}
	r.checkCatalogVersion()
	return r, nil
}

// Close closes the file opened by Open. Readers created with New leave
// their input alone.
func (r *Reader) Close() error {
	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil
		return err
	}
	return nil
}

// parseHeader finds %PDF-x.y in the first kilobyte.
func (r *Reader) parseHeader(repair bool) (PDFVersion, error) {
	head, err := r.lex.ReadAt(0, min(1024, r.lex.Size()))
	if err != nil {
		return PDFVersion{}, fmt.Errorf("failed to read header: %w", err)
	}

	switch f := format.DetectFromMagic(head); f {
	case format.PDF:
	case format.Unknown:
		if !repair {
			return PDFVersion{}, fmt.Errorf("%w: no %%PDF- header", ErrNotPDF)
		}
		r.warn("no %%PDF- header, assuming version 1.4")
		return PDFVersion{Major: 1, Minor: 4}, nil
	default:
		return PDFVersion{}, fmt.Errorf("%w: looks like %s", ErrNotPDF, f)
	}

	m := versionPattern.FindSubmatch(head)
	if m == nil {
		r.warn("unreadable version in header, assuming 1.4")
		return PDFVersion{Major: 1, Minor: 4}, nil
	}
	major, _ := strconv.Atoi(string(m[1]))
	minor, _ := strconv.Atoi(string(m[2]))
	return PDFVersion{Major: major, Minor: minor}, nil
}

// loadXRef reads the cross-reference chain, falling back to a repair scan
// when repair is allowed.
func (r *Reader) loadXRef(repair bool) (*core.XRefTable, error) {
	xp := core.NewXRefParser(r.lex)
	xp.SetLogger(r.logger)
	if repair {
		return xp.Load()
	}
	start, err := xp.FindStartXRef()
	if err != nil {
		return nil, err
	}
	return xp.LoadChain(start)
}

// setupSecurity authenticates against the /Encrypt dictionary, trying the
// configured password first and then the password callback.
func (r *Reader) setupSecurity(o options) error {
	encObj := r.trailer.Get("Encrypt")
	if encObj == nil {
		return nil
	}
	if ref, ok := encObj.(core.IndirectRef); ok {
		r.encryptRef = ref
	}
	resolved, err := r.Resolve(encObj)
	if err != nil {
		return fmt.Errorf("failed to load encryption dictionary: %w", err)
	}
	dict, ok := resolved.(*core.Dict)
	if !ok {
		return fmt.Errorf("encryption dictionary is %T", resolved)
	}

	var id []byte
	if ids, ok := r.trailer.GetArray("ID"); ok && len(ids) > 0 {
		if s, ok := ids[0].(core.String); ok {
			id = s.Value
		}
	}
	h, err := crypt.NewHandler(dict, id)
	if err != nil {
		return err
	}

	err = h.AuthenticatePassword(o.password)
	for attempt := 1; err != nil && o.passwordFunc != nil; attempt++ {
		if !errors.Is(err, crypt.ErrInvalidPassword) {
			break
		}
		pw, ok := o.passwordFunc(attempt)
		if !ok {
			break
		}
		err = h.AuthenticatePassword(pw)
	}
	if err != nil {
		return err
	}

	r.security = h
	// anything loaded so far was read without decryption
	r.ClearCache()
	r.logger.Debug("document decrypted",
		"revision", h.Revision(), "keyBits", h.KeyLength(), "owner", h.IsOwner())
	return nil
}

// checkCatalogVersion applies a catalog /Version later than the header.
func (r *Reader) checkCatalogVersion() {
	catalog, err := r.Catalog()
	if err != nil {
		return
	}
	name, ok := catalog.GetName("Version")
	if !ok {
		return
	}
	m := versionPattern.FindStringSubmatch("%PDF-" + string(name))
	if m == nil {
		return
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if v := (PDFVersion{Major: major, Minor: minor}); r.version.less(v) {
		r.version = v
	}
}

func (r *Reader) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	r.logger.Debug(msg)
}

// Warnings returns the problems worked around while reading, oldest first.
func (r *Reader) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// Version returns the PDF version
func (r *Reader) Version() PDFVersion {
	return r.version
}

// Trailer returns the merged trailer dictionary
func (r *Reader) Trailer() *core.Dict {
	return r.trailer
}

// XRef returns the cross-reference table.
func (r *Reader) XRef() *core.XRefTable {
	return r.xref
}

// IsEncrypted reports whether the document has an /Encrypt dictionary.
func (r *Reader) IsEncrypted() bool {
	return r.security != nil
}

// Security returns the authenticated security handler, or nil for
// unencrypted documents.
func (r *Reader) Security() *crypt.Handler {
	return r.security
}

// Permissions returns the user access permissions. Unencrypted documents
// and documents opened with the owner password allow everything.
func (r *Reader) Permissions() crypt.Perm {
	if r.security == nil || r.security.IsOwner() {
		return crypt.PermAll
	}
	return r.security.Permissions()
}

// GetObject loads an object by its number. The result is cached.
func (r *Reader) GetObject(objNum int) (core.Object, error) {
	if obj, ok := r.objCache[objNum]; ok {
		return obj, nil
	}

	entry, ok := r.xref.Get(objNum)
	if !ok || !entry.InUse() {
		return nil, fmt.Errorf("object %d: %w", objNum, ErrObjectNotFound)
	}
	if r.loading[objNum] {
		return nil, fmt.Errorf("object %d refers to itself while loading", objNum)
	}
	r.loading[objNum] = true
	defer delete(r.loading, objNum)

	var obj core.Object
	var err error
	if entry.Type == core.XRefCompressed {
		obj, err = r.loadCompressed(objNum, entry)
	} else {
		obj, err = r.loadAt(objNum, entry)
	}
	if err != nil {
		return nil, err
	}
	r.objCache[objNum] = obj
	return obj, nil
}

// loadAt parses the object at the entry's offset and decrypts it.
func (r *Reader) loadAt(objNum int, entry *core.XRefEntry) (core.Object, error) {
	save := r.lex.Offset()
	defer r.lex.Seek(save)

	r.lex.Seek(entry.Offset)
	parser := core.NewParser(r.lex)
	parser.SetLogger(r.logger)
	parser.SetReferenceResolver(r)
	indObj, err := parser.ReadIndirectObject()
	if err != nil {
		return nil, fmt.Errorf("failed to parse object %d: %w", objNum, err)
	}
	if indObj.Ref.Number != objNum {
		return nil, fmt.Errorf("object number mismatch: expected %d, got %d", objNum, indObj.Ref.Number)
	}
	if indObj.Ref.Generation != entry.Generation {
		r.warn("object %d has generation %d, cross-reference says %d",
			objNum, indObj.Ref.Generation, entry.Generation)
	}

	obj := indObj.Object
	if r.security != nil && indObj.Ref != r.encryptRef {
		obj, err = r.security.DecryptObject(indObj.Ref, obj)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt object %d: %w", objNum, err)
		}
	}
	return obj, nil
}

// loadCompressed returns an object stored in an object stream. The stream
// itself was decrypted when it was loaded; its members are not encrypted
// again.
func (r *Reader) loadCompressed(objNum int, entry *core.XRefEntry) (core.Object, error) {
	stm, err := r.objectStream(entry.StreamNumber)
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", objNum, err)
	}
	obj, num, err := stm.GetObjectByIndex(entry.Index)
	if err == nil && num == objNum {
		return obj, nil
	}
	// stale index, look the number up in the stream header
	obj, _, err = stm.GetObjectByNumber(objNum)
	if err != nil {
		return nil, fmt.Errorf("object %d in object stream %d: %w", objNum, entry.StreamNumber, err)
	}
	r.warn("object %d is not at index %d of object stream %d", objNum, entry.Index, entry.StreamNumber)
	return obj, nil
}

func (r *Reader) objectStream(num int) (*core.ObjectStream, error) {
	if stm, ok := r.objStreams[num]; ok {
		return stm, nil
	}
	obj, err := r.GetObject(num)
	if err != nil {
		return nil, fmt.Errorf("failed to load object stream %d: %w", num, err)
	}
	stream, ok := obj.(*core.Stream)
	if !ok {
		return nil, fmt.Errorf("object stream %d is %T", num, obj)
	}
	stm, err := core.NewObjectStream(stream)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", num, err)
	}
	r.objStreams[num] = stm
	return stm, nil
}

// ResolveReference returns the target of ref. References to missing or
// free objects resolve to null.
func (r *Reader) ResolveReference(ref core.IndirectRef) (core.Object, error) {
	obj, err := r.GetObject(ref.Number)
	if errors.Is(err, ErrObjectNotFound) {
		return core.Null{}, nil
	}
	return obj, err
}

// Resolve follows obj if it is an indirect reference.
func (r *Reader) Resolve(obj core.Object) (core.Object, error) {
	return r.resolver.Resolve(obj)
}

// ResolveDeep returns a copy of obj with all reachable references
// replaced. References that lead back into the object being expanded stay
// references.
func (r *Reader) ResolveDeep(obj core.Object) (core.Object, error) {
	return r.resolver.ResolveDeep(obj)
}

// resolveDict resolves obj and requires a dictionary. A stream yields its
// dictionary.
func (r *Reader) resolveDict(obj core.Object) (*core.Dict, error) {
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, err
	}
	switch v := resolved.(type) {
	case *core.Dict:
		return v, nil
	case *core.Stream:
		return v.Dict, nil
	}
	return nil, fmt.Errorf("expected a dictionary, got %T", resolved)
}

// Catalog returns the document catalog (root object)
func (r *Reader) Catalog() (*core.Dict, error) {
	root := r.trailer.Get("Root")
	if root == nil {
		return nil, fmt.Errorf("trailer missing /Root entry")
	}
	catalog, err := r.resolveDict(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve catalog: %w", err)
	}
	return catalog, nil
}

// Info returns the document information dictionary, or nil if there is
// none.
func (r *Reader) Info() (*core.Dict, error) {
	info := r.trailer.Get("Info")
	if info == nil {
		return nil, nil
	}
	resolved, err := r.Resolve(info)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve info: %w", err)
	}
	switch v := resolved.(type) {
	case *core.Dict:
		return v, nil
	case core.Null:
		return nil, nil
	}
	return nil, fmt.Errorf("info is not a dictionary: %T", resolved)
}

// NumObjects returns the /Size of the trailer, one more than the highest
// object number.
func (r *Reader) NumObjects() int {
	size, _ := r.trailer.GetInt("Size")
	return int(size)
}

// FileSize returns the size of the PDF file in bytes
func (r *Reader) FileSize() int64 {
	return r.lex.Size()
}

// ClearCache drops all cached objects and object streams.
func (r *Reader) ClearCache() {
	clear(r.objCache)
	clear(r.objStreams)
}

// CacheSize returns the number of cached objects
func (r *Reader) CacheSize() int {
	return len(r.objCache)
}
