package core

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// windowSize is the size of the read window that slides over the input.
const windowSize = 64 * 1024

// TokenKind classifies a lexeme
type TokenKind int

const (
	TokenEOF       TokenKind = iota
	TokenRegular             // run of regular characters: numbers, keywords, name bodies
	TokenDelimiter           // one of / [ ] ( ) { } % < > << >>
)

// String returns the name of the token kind
func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "EOF"
	case TokenRegular:
		return "Regular"
	case TokenDelimiter:
		return "Delimiter"
	default:
		return "Unknown"
	}
}

// Token is a byte range of the input. It owns no memory; use [Lexer.Bytes]
// to view it while it is still inside the lexer's window.
type Token struct {
	Kind TokenKind
	Pos  int64
	Len  int
}

// End returns the offset just past the token.
func (t Token) End() int64 { return t.Pos + int64(t.Len) }

// Lexer splits a seekable byte stream into PDF lexemes. Only a window of
// the input is held in memory.
type Lexer struct {
	r    io.ReadSeeker
	size int64

	buf  []byte // window contents
	base int64  // file offset of buf[0]
	pos  int64  // absolute cursor
	mark int64  // start of the lexeme being scanned, -1 if none
}

// NewLexer creates a lexer reading from r.
func NewLexer(r io.ReadSeeker) (*Lexer, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to determine input size: %w", err)
	}
	return &Lexer{r: r, size: size, mark: -1}, nil
}

// NewLexerBytes creates a lexer over an in-memory buffer.
func NewLexerBytes(data []byte) *Lexer {
	l, _ := NewLexer(bytes.NewReader(data))
	return l
}

// Size returns the length of the input.
func (l *Lexer) Size() int64 { return l.size }

// Offset returns the current cursor position.
func (l *Lexer) Offset() int64 { return l.pos }

// Seek moves the cursor. Offsets outside the input are clamped.
func (l *Lexer) Seek(off int64) {
	if off < 0 {
		off = 0
	}
	if off > l.size {
		off = l.size
	}
	l.pos = off
}

// at returns the byte at absolute offset p, sliding the window if needed.
func (l *Lexer) at(p int64) (byte, bool) {
	if p >= l.base && p < l.base+int64(len(l.buf)) {
		return l.buf[p-l.base], true
	}
	if !l.load(p) {
		return 0, false
	}
	return l.buf[p-l.base], true
}

// load positions the window so that it covers p. An active mark keeps the
// current lexeme inside the window.
func (l *Lexer) load(p int64) bool {
	if p < 0 || p >= l.size {
		return false
	}
	start := p
	if l.mark >= 0 && l.mark <= p {
		start = l.mark
	}
	n := windowSize
	if need := 2 * (p - start + 1); need > int64(n) {
		n = int(need)
	}
	if rem := l.size - start; int64(n) > rem {
		n = int(rem)
	}
	if cap(l.buf) < n {
		l.buf = make([]byte, n)
	}
	l.buf = l.buf[:n]
	if _, err := l.r.Seek(start, io.SeekStart); err != nil {
		l.buf = l.buf[:0]
		return false
	}
	got, err := io.ReadFull(l.r, l.buf)
	l.buf = l.buf[:got]
	l.base = start
	if err != nil && got <= int(p-start) {
		return false
	}
	return true
}

// Bytes returns the bytes of tok. The slice aliases the window and is only
// valid until the next read.
func (l *Lexer) Bytes(tok Token) []byte {
	if tok.Len == 0 {
		return nil
	}
	lo := tok.Pos - l.base
	hi := lo + int64(tok.Len)
	if lo < 0 || hi > int64(len(l.buf)) {
		saved := l.mark
		l.mark = tok.Pos
		ok := l.load(tok.End() - 1)
		l.mark = saved
		if !ok {
			return nil
		}
		lo = tok.Pos - l.base
		hi = lo + int64(tok.Len)
	}
	return l.buf[lo:hi]
}

// Is reports whether tok consists of exactly the bytes of s.
func (l *Lexer) Is(tok Token, s string) bool {
	return tok.Len == len(s) && string(l.Bytes(tok)) == s
}

// ToInt converts a lexeme to an integer. ok is false unless the lexeme is
// an optional sign followed by decimal digits.
func (l *Lexer) ToInt(tok Token) (int64, bool) {
	return ParseInt(l.Bytes(tok))
}

// ToDouble converts a lexeme to a real number. ok is false unless the
// lexeme is an optional sign followed by digits with at most one period.
func (l *Lexer) ToDouble(tok Token) (float64, bool) {
	return ParseReal(l.Bytes(tok))
}

// ParseInt parses a PDF integer.
func ParseInt(b []byte) (int64, bool) {
	neg := false
	if len(b) > 0 && (b[0] == '+' || b[0] == '-') {
		neg = b[0] == '-'
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, false
	}
	var v int64
	for _, c := range b {
		if !isDigit(c) {
			return 0, false
		}
		d := int64(c - '0')
		if v > (1<<63-1-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	if neg {
		v = -v
	}
	return v, true
}

// ParseReal parses a PDF real number such as 3.14, -.5 or 4.
func ParseReal(b []byte) (float64, bool) {
	body := b
	if len(body) > 0 && (body[0] == '+' || body[0] == '-') {
		body = body[1:]
	}
	digits, dots := 0, 0
	for _, c := range body {
		switch {
		case isDigit(c):
			digits++
		case c == '.':
			dots++
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SkipWhitespace advances past whitespace bytes.
func (l *Lexer) SkipWhitespace() {
	for {
		c, ok := l.at(l.pos)
		if !ok || !isWhitespace(c) {
			return
		}
		l.pos++
	}
}

// SkipLine advances past the rest of the current line, including the EOL.
func (l *Lexer) SkipLine() {
	for {
		c, ok := l.at(l.pos)
		if !ok {
			return
		}
		l.pos++
		if c == '\n' {
			return
		}
		if c == '\r' {
			if c2, ok := l.at(l.pos); ok && c2 == '\n' {
				l.pos++
			}
			return
		}
	}
}

// ReadLexeme skips whitespace and returns the next lexeme: either a single
// delimiter (<< and >> count as one) or a run of regular bytes. At the end
// of input it returns a TokenEOF token and false.
func (l *Lexer) ReadLexeme() (Token, bool) {
	l.SkipWhitespace()
	c, ok := l.at(l.pos)
	if !ok {
		return Token{Kind: TokenEOF, Pos: l.pos}, false
	}
	if isDelimiter(c) {
		n := 1
		if c == '<' || c == '>' {
			if c2, ok := l.at(l.pos + 1); ok && c2 == c {
				n = 2
			}
		}
		tok := Token{Kind: TokenDelimiter, Pos: l.pos, Len: n}
		l.pos += int64(n)
		return tok, true
	}

	l.mark = l.pos
	start := l.pos
	for {
		c, ok := l.at(l.pos)
		if !ok || isWhitespace(c) || isDelimiter(c) {
			break
		}
		l.pos++
	}
	l.mark = -1
	return Token{Kind: TokenRegular, Pos: start, Len: int(l.pos - start)}, true
}

// ReadNameBody reads the characters of a name after its leading slash.
// An empty name ("/" followed by a delimiter) is valid.
func (l *Lexer) ReadNameBody() Token {
	l.mark = l.pos
	start := l.pos
	for {
		c, ok := l.at(l.pos)
		if !ok || isWhitespace(c) || isDelimiter(c) {
			break
		}
		l.pos++
	}
	l.mark = -1
	return Token{Kind: TokenRegular, Pos: start, Len: int(l.pos - start)}
}

// DecodeName resolves #xx escapes in a raw name. The result is interpreted
// as UTF-8 when valid and as Latin-1 otherwise.
func DecodeName(raw []byte) string {
	if bytes.IndexByte(raw, '#') >= 0 {
		out := make([]byte, 0, len(raw))
		for i := 0; i < len(raw); i++ {
			if raw[i] == '#' && i+2 < len(raw) && isHexDigit(raw[i+1]) && isHexDigit(raw[i+2]) {
				out = append(out, hexValue(raw[i+1])<<4|hexValue(raw[i+2]))
				i += 2
				continue
			}
			out = append(out, raw[i])
		}
		raw = out
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(s)
}

// ReadLiteralString reads a literal string after its opening parenthesis
// and consumes the closing one. ok is false if the input ends first.
func (l *Lexer) ReadLiteralString() ([]byte, bool) {
	var buf bytes.Buffer
	depth := 1
	for {
		b, ok := l.at(l.pos)
		if !ok {
			return buf.Bytes(), false
		}
		l.pos++

		switch b {
		case '(':
			depth++
			buf.WriteByte(b)
		case ')':
			depth--
			if depth == 0 {
				return buf.Bytes(), true
			}
			buf.WriteByte(b)
		case '\r':
			// an unescaped EOL in a string reads as a single LF
			if c, ok := l.at(l.pos); ok && c == '\n' {
				l.pos++
			}
			buf.WriteByte('\n')
		case '\\':
			next, ok := l.at(l.pos)
			if !ok {
				return buf.Bytes(), false
			}
			l.pos++
			switch next {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r':
				if c, ok := l.at(l.pos); ok && c == '\n' {
					l.pos++
				}
			case '\n':
			case '0', '1', '2', '3', '4', '5', '6', '7':
				val := next - '0'
				for i := 0; i < 2; i++ {
					c, ok := l.at(l.pos)
					if !ok || !isOctalDigit(c) {
						break
					}
					val = val<<3 | (c - '0')
					l.pos++
				}
				buf.WriteByte(val)
			default:
				buf.WriteByte(next)
			}
		default:
			buf.WriteByte(b)
		}
	}
}

// ReadHexString reads a hex string after its opening '<' and consumes the
// closing '>'. An odd final digit is padded with a zero nibble.
func (l *Lexer) ReadHexString() ([]byte, bool) {
	var out []byte
	var hi byte
	odd := false
	for {
		c, ok := l.at(l.pos)
		if !ok {
			return out, false
		}
		l.pos++
		switch {
		case c == '>':
			if odd {
				out = append(out, hi<<4)
			}
			return out, true
		case isWhitespace(c):
		case isHexDigit(c):
			if odd {
				out = append(out, hi<<4|hexValue(c))
			} else {
				hi = hexValue(c)
			}
			odd = !odd
		default:
			return out, false
		}
	}
}

// ReadStreamEOL consumes the single end-of-line marker following the
// stream keyword: CRLF, LF, or a bare CR.
func (l *Lexer) ReadStreamEOL() {
	c, ok := l.at(l.pos)
	if !ok {
		return
	}
	switch c {
	case '\r':
		l.pos++
		if c2, ok := l.at(l.pos); ok && c2 == '\n' {
			l.pos++
		}
	case '\n':
		l.pos++
	}
}

// ReadBytes copies n bytes starting at the cursor and advances past them.
func (l *Lexer) ReadBytes(n int) ([]byte, error) {
	if n < 0 || l.pos+int64(n) > l.size {
		return nil, fmt.Errorf("read of %d bytes at offset %d: %w", n, l.pos, io.ErrUnexpectedEOF)
	}
	data := make([]byte, n)
	if l.pos >= l.base && l.pos+int64(n) <= l.base+int64(len(l.buf)) {
		copy(data, l.buf[l.pos-l.base:])
		l.pos += int64(n)
		return data, nil
	}
	if _, err := l.r.Seek(l.pos, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(l.r, data); err != nil {
		return nil, fmt.Errorf("read of %d bytes at offset %d: %w", n, l.pos, err)
	}
	l.pos += int64(n)
	return data, nil
}

// ReadAt copies the bytes in [from, to) without moving the cursor.
func (l *Lexer) ReadAt(from, to int64) ([]byte, error) {
	saved := l.pos
	l.Seek(from)
	data, err := l.ReadBytes(int(to - from))
	l.pos = saved
	return data, err
}

// Peek returns the byte at the cursor without consuming it.
func (l *Lexer) Peek() (byte, bool) {
	return l.at(l.pos)
}

// ReadByte reads and returns a single byte.
func (l *Lexer) ReadByte() (byte, error) {
	c, ok := l.at(l.pos)
	if !ok {
		return 0, io.EOF
	}
	l.pos++
	return c, nil
}

// FindSubstring searches forward from the cursor for pat. On success the
// cursor is left at the start of the match.
func (l *Lexer) FindSubstring(pat []byte) (int64, bool) {
	if len(pat) == 0 {
		return l.pos, true
	}
	chunk := make([]byte, windowSize+len(pat)-1)
	for from := l.pos; from+int64(len(pat)) <= l.size; from += windowSize {
		n := int64(len(chunk))
		if rem := l.size - from; n > rem {
			n = rem
		}
		if err := l.readChunk(chunk[:n], from); err != nil {
			return 0, false
		}
		if i := bytes.Index(chunk[:n], pat); i >= 0 {
			l.pos = from + int64(i)
			return l.pos, true
		}
	}
	return 0, false
}

// FindLastSubstring returns the offset of the last occurrence of pat in the
// input, scanning backward from the end. The cursor is left at the match.
func (l *Lexer) FindLastSubstring(pat []byte) (int64, bool) {
	return l.findLastBefore(pat, l.size)
}

func (l *Lexer) findLastBefore(pat []byte, end int64) (int64, bool) {
	if len(pat) == 0 || end > l.size {
		return 0, false
	}
	chunk := make([]byte, windowSize+len(pat)-1)
	for hi := end; hi >= int64(len(pat)); hi -= windowSize {
		lo := hi - int64(len(chunk))
		if lo < 0 {
			lo = 0
		}
		buf := chunk[:hi-lo]
		if err := l.readChunk(buf, lo); err != nil {
			return 0, false
		}
		if i := bytes.LastIndex(buf, pat); i >= 0 {
			l.pos = lo + int64(i)
			return l.pos, true
		}
		if lo == 0 {
			break
		}
	}
	return 0, false
}

func (l *Lexer) readChunk(buf []byte, off int64) error {
	if _, err := l.r.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(l.r, buf)
	return err
}

// Helper functions

func isWhitespace(b byte) bool {
	// PDF whitespace: space, tab, LF, CR, FF, null
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == 0
}

func isDelimiter(b byte) bool {
	return b == '(' || b == ')' || b == '<' || b == '>' || b == '[' || b == ']' ||
		b == '{' || b == '}' || b == '/' || b == '%'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isOctalDigit(b byte) bool {
	return b >= '0' && b <= '7'
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexValue(b byte) byte {
	if b >= '0' && b <= '9' {
		return b - '0'
	}
	if b >= 'a' && b <= 'f' {
		return b - 'a' + 10
	}
	if b >= 'A' && b <= 'F' {
		return b - 'A' + 10
	}
	return 0
}
