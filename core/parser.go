package core

import (
	"fmt"
	"io"
	"log/slog"
)

// maxNesting bounds the depth of nested arrays and dictionaries.
const maxNesting = 256

// ReferenceResolver is an interface for resolving indirect references.
// This allows the parser to resolve indirect stream lengths when needed.
type ReferenceResolver interface {
	ResolveReference(ref IndirectRef) (Object, error)
}

// keyword is a bare lexeme that is not an object by itself (], >>, endobj,
// stream, R). It never escapes the parser.
type keyword string

func (k keyword) Type() ObjectType { return ObjNull }
func (k keyword) String() string   { return string(k) }

// Parser builds PDF objects from the lexemes of a [Lexer].
//
// A number followed by a second integer may start an indirect reference, so
// the parser looks ahead. When the lookahead fails the already-parsed second
// integer is kept as the single pending number and returned by the next call.
type Parser struct {
	lex      *Lexer
	resolver ReferenceResolver
	logger   *slog.Logger

	pending    int64
	hasPending bool
	depth      int
}

// NewParser creates a parser reading from lex.
func NewParser(lex *Lexer) *Parser {
	return &Parser{
		lex:    lex,
		logger: slog.New(slog.DiscardHandler),
	}
}

// NewParserBytes creates a parser over an in-memory buffer.
func NewParserBytes(data []byte) *Parser {
	return NewParser(NewLexerBytes(data))
}

// SetReferenceResolver sets the reference resolver for the parser.
// This is needed to resolve indirect stream lengths.
func (p *Parser) SetReferenceResolver(resolver ReferenceResolver) {
	p.resolver = resolver
}

// SetLogger sets the logger used to report repaired input.
func (p *Parser) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Lexer returns the underlying lexer.
func (p *Parser) Lexer() *Lexer { return p.lex }

// Seek moves the parser to off and drops any pending lookahead.
func (p *Parser) Seek(off int64) {
	p.hasPending = false
	p.lex.Seek(off)
}

// ReadObject parses the next object. It returns io.EOF at the end of input.
func (p *Parser) ReadObject() (Object, error) {
	start := p.lex.Offset()
	obj, err := p.read()
	if err != nil {
		return nil, err
	}
	if k, ok := obj.(keyword); ok {
		return nil, &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected %q", string(k))}
	}
	return obj, nil
}

func (p *Parser) read() (Object, error) {
	if p.hasPending {
		p.hasPending = false
		return p.number(p.pending)
	}

	for {
		tok, ok := p.lex.ReadLexeme()
		if !ok {
			return nil, io.EOF
		}

		if tok.Kind == TokenDelimiter {
			switch string(p.lex.Bytes(tok)) {
			case "%":
				p.lex.SkipLine()
				continue
			case "<<":
				return p.readDict(tok.Pos)
			case "[":
				return p.readArray(tok.Pos)
			case "(":
				s, ok := p.lex.ReadLiteralString()
				if !ok {
					return nil, &SyntaxError{Pos: tok.Pos, Msg: "unterminated string"}
				}
				return String{Value: s}, nil
			case "<":
				s, ok := p.lex.ReadHexString()
				if !ok {
					return nil, &SyntaxError{Pos: tok.Pos, Msg: "malformed hex string"}
				}
				return String{Value: s, Hex: true}, nil
			case "/":
				body := p.lex.ReadNameBody()
				return Name(DecodeName(p.lex.Bytes(body))), nil
			default:
				return keyword(p.lex.Bytes(tok)), nil
			}
		}

		switch b := p.lex.Bytes(tok); string(b) {
		case "null":
			return Null{}, nil
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		if i, ok := p.lex.ToInt(tok); ok {
			return p.number(i)
		}
		if r, ok := p.lex.ToDouble(tok); ok {
			return Real(r), nil
		}
		return keyword(p.lex.Bytes(tok)), nil
	}
}

// number completes an integer that may be the start of "N G R". The lexer
// is positioned just after the integer.
func (p *Parser) number(n int64) (Object, error) {
	if n < 0 {
		return Int(n), nil
	}
	save := p.lex.Offset()
	t2, ok := p.lex.ReadLexeme()
	if !ok || t2.Kind != TokenRegular {
		p.lex.Seek(save)
		return Int(n), nil
	}
	gen, ok := p.lex.ToInt(t2)
	if !ok || gen < 0 {
		p.lex.Seek(save)
		return Int(n), nil
	}
	t3, ok := p.lex.ReadLexeme()
	if ok && p.lex.Is(t3, "R") {
		return IndirectRef{Number: int(n), Generation: int(gen)}, nil
	}
	p.pending = gen
	p.hasPending = true
	p.lex.Seek(t2.End())
	return Int(n), nil
}

func (p *Parser) enter(pos int64) error {
	p.depth++
	if p.depth > maxNesting {
		return &SyntaxError{Pos: pos, Msg: "objects nested too deeply"}
	}
	return nil
}

func (p *Parser) readArray(pos int64) (Object, error) {
	if err := p.enter(pos); err != nil {
		return nil, err
	}
	defer func() { p.depth-- }()

	arr := Array{}
	for {
		obj, err := p.read()
		if err == io.EOF {
			return nil, &SyntaxError{Pos: pos, Msg: "unterminated array"}
		}
		if err != nil {
			return nil, err
		}
		if k, ok := obj.(keyword); ok {
			if k == "]" {
				return arr, nil
			}
			return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("unexpected %q in array", string(k))}
		}
		arr = append(arr, obj)
	}
}

func (p *Parser) readDict(pos int64) (Object, error) {
	if err := p.enter(pos); err != nil {
		return nil, err
	}
	dict, err := p.readDictEntries(pos)
	p.depth--
	if err != nil {
		return nil, err
	}

	// a dictionary directly followed by "stream" is a stream header
	save := p.lex.Offset()
	tok, ok := p.lex.ReadLexeme()
	if ok && p.lex.Is(tok, "stream") {
		return p.readStream(dict)
	}
	p.lex.Seek(save)
	return dict, nil
}

func (p *Parser) readDictEntries(pos int64) (*Dict, error) {
	dict := NewDict()
	for {
		obj, err := p.read()
		if err == io.EOF {
			return nil, &SyntaxError{Pos: pos, Msg: "unterminated dictionary"}
		}
		if err != nil {
			return nil, err
		}
		if k, ok := obj.(keyword); ok && k == ">>" {
			return dict, nil
		}
		key, ok := obj.(Name)
		if !ok {
			return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("dictionary key %s is not a name", objString(obj))}
		}

		val, err := p.read()
		if err == io.EOF {
			return nil, &SyntaxError{Pos: pos, Msg: "unterminated dictionary"}
		}
		if err != nil {
			return nil, err
		}
		if k, ok := val.(keyword); ok {
			if k == ">>" {
				p.logger.Debug("dictionary key without value", "offset", pos, "key", string(key))
				dict.Set(string(key), Null{})
				return dict, nil
			}
			return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("unexpected %q in dictionary", string(k))}
		}
		dict.Set(string(key), val)
	}
}

// readStream reads the payload of a stream whose dictionary has been parsed
// and whose "stream" keyword has just been consumed.
func (p *Parser) readStream(dict *Dict) (*Stream, error) {
	p.lex.ReadStreamEOL()
	start := p.lex.Offset()

	if length, ok := p.streamLength(dict, start); ok {
		p.lex.Seek(start)
		data, err := p.lex.ReadBytes(int(length))
		if err == nil {
			save := p.lex.Offset()
			tok, ok := p.lex.ReadLexeme()
			if ok && p.lex.Is(tok, "endstream") {
				return &Stream{Dict: dict, Data: data}, nil
			}
			p.lex.Seek(save)
		}
		p.logger.Debug("stream length mismatch, scanning for endstream",
			"offset", start, "length", length)
	}

	data, ok := p.scanStreamData(start)
	if !ok {
		return nil, &CorruptError{Pos: start, Err: fmt.Errorf("stream without endstream")}
	}
	return &Stream{Dict: dict, Data: data}, nil
}

// streamLength reports the declared /Length if it is usable.
func (p *Parser) streamLength(dict *Dict, start int64) (int64, bool) {
	var obj Object = dict.Get("Length")
	if ref, ok := obj.(IndirectRef); ok {
		if p.resolver == nil {
			return 0, false
		}
		save := p.lex.Offset()
		resolved, err := p.resolver.ResolveReference(ref)
		p.lex.Seek(save)
		if err != nil {
			p.logger.Debug("cannot resolve stream length", "ref", ref.String(), "error", err)
			return 0, false
		}
		obj = resolved
	}
	n, ok := obj.(Int)
	if !ok || n < 0 || start+int64(n) > p.lex.Size() {
		return 0, false
	}
	return int64(n), true
}

// scanStreamData recovers a stream payload by searching for the endstream
// keyword and dropping the end-of-line marker in front of it.
func (p *Parser) scanStreamData(start int64) ([]byte, bool) {
	p.lex.Seek(start)
	end, ok := p.lex.FindSubstring([]byte("endstream"))
	if !ok {
		return nil, false
	}
	stop := end
	if stop > start {
		if c, _ := p.lex.at(stop - 1); c == '\n' {
			stop--
		}
	}
	if stop > start {
		if c, _ := p.lex.at(stop - 1); c == '\r' {
			stop--
		}
	}
	data, err := p.lex.ReadAt(start, stop)
	if err != nil {
		return nil, false
	}
	p.lex.Seek(end + int64(len("endstream")))
	return data, true
}

// ReadIndirectObject parses "N G obj ... endobj" at the current position.
func (p *Parser) ReadIndirectObject() (*IndirectObject, error) {
	p.hasPending = false
	pos := p.lex.Offset()

	num, ok1 := p.readInt()
	gen, ok2 := p.readInt()
	tok, ok3 := p.lex.ReadLexeme()
	if !ok1 || !ok2 || !ok3 || !p.lex.Is(tok, "obj") {
		return nil, &SyntaxError{Pos: pos, Msg: "expected object header"}
	}

	obj, err := p.read()
	if err == io.EOF {
		return nil, &SyntaxError{Pos: pos, Msg: "unexpected end of input in object"}
	}
	if err != nil {
		return nil, err
	}
	ref := IndirectRef{Number: int(num), Generation: int(gen)}
	if k, ok := obj.(keyword); ok {
		if k == "endobj" {
			return &IndirectObject{Ref: ref, Object: Null{}}, nil
		}
		return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("unexpected %q in object", string(k))}
	}

	p.hasPending = false
	save := p.lex.Offset()
	tok, ok := p.lex.ReadLexeme()
	if !ok || !p.lex.Is(tok, "endobj") {
		p.logger.Debug("missing endobj", "object", ref.String(), "offset", save)
		p.lex.Seek(save)
	}
	return &IndirectObject{Ref: ref, Object: obj}, nil
}

func (p *Parser) readInt() (int64, bool) {
	tok, ok := p.lex.ReadLexeme()
	if !ok || tok.Kind != TokenRegular {
		return 0, false
	}
	return p.lex.ToInt(tok)
}
