// Package core provides low-level PDF parsing primitives and object types.
//
// This package implements the fundamental building blocks for reading PDF files:
// the object model, a byte-level lexer, the object parser, cross-reference
// loading with repair, object streams and stream filters.
//
// # Object Types
//
// PDF defines eight basic object types, all implemented as types satisfying the
// Object interface:
//
//   - [Null] - represents the PDF null object
//   - [Bool] - represents PDF boolean values (true/false)
//   - [Int] - represents PDF integers
//   - [Real] - represents PDF real numbers (floating point)
//   - [String] - represents PDF string objects (literal or hexadecimal)
//   - [Name] - represents PDF name objects (e.g., /Type, /Font)
//   - [Array] - represents PDF arrays
//   - [Dict] - represents PDF dictionaries, which keep their key order
//
// Additionally, [Stream] represents a PDF stream (dictionary + binary data),
// and [IndirectRef] represents a reference to an indirect object.
// [Format] and [WriteObject] turn objects back into PDF syntax.
//
// # Lexing and Parsing
//
// The [Lexer] reads through a sliding window over an io.ReadSeeker, so large
// files are never loaded whole. Lexemes are returned as byte ranges ([Token])
// and converted on demand.
//
// The [Parser] builds objects from lexemes. It resolves "N G R" references
// with one number of lookahead and recovers stream data whose /Length is
// wrong by searching for the endstream keyword.
//
// # Cross-Reference Tables
//
// The [XRefParser] loads classic xref tables, xref streams and hybrid files,
// following /Prev links. When the startxref data is unusable, [XRefParser.Repair]
// rebuilds the table by scanning the file; the result has [XRefTable.Repaired]
// set.
//
// # Errors
//
// Damage that cannot be recovered is reported as a [*CorruptError], which
// matches [ErrCorrupt] with errors.Is. Input that matches no object syntax is
// reported as a [*SyntaxError].
package core
