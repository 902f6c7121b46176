package crypt

import "strings"

// Perm holds the user access permissions of an encrypted document. The bits
// match their positions in the /P entry of the encryption dictionary.
//
// The permissions are only reported; enforcing them is up to the caller.
type Perm uint32

const (
	PermPrint        Perm = 1 << 2  // print the document
	PermModify       Perm = 1 << 3  // modify contents
	PermCopy         Perm = 1 << 4  // copy or extract text and graphics
	PermAnnotate     Perm = 1 << 5  // add or modify annotations, fill forms
	PermFillForms    Perm = 1 << 8  // fill in form fields
	PermExtract      Perm = 1 << 9  // extract for accessibility
	PermAssemble     Perm = 1 << 10 // insert, rotate or delete pages
	PermPrintHighRes Perm = 1 << 11 // print at full quality

	PermAll = PermPrint | PermModify | PermCopy | PermAnnotate |
		PermFillForms | PermExtract | PermAssemble | PermPrintHighRes
)

// reserved bits of /P that must be 1
const reservedP = 0xFFFFF0C0

var permNames = []struct {
	p    Perm
	name string
}{
	{PermPrint, "print"},
	{PermModify, "modify"},
	{PermCopy, "copy"},
	{PermAnnotate, "annotate"},
	{PermFillForms, "fill-forms"},
	{PermExtract, "extract"},
	{PermAssemble, "assemble"},
	{PermPrintHighRes, "print-high-res"},
}

// Has reports whether all bits of q are set in p.
func (p Perm) Has(q Perm) bool { return p&q == q }

func (p Perm) String() string {
	var names []string
	for _, n := range permNames {
		if p&n.p != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// P returns the value stored as /P in an encryption dictionary.
func (p Perm) P() int32 {
	return int32(uint32(p&PermAll) | reservedP)
}

// PermFromP decodes a /P value. Revision 2 handlers only define bits 3 to
// 6; the later bits follow the ones they were split from.
func PermFromP(p int32, revision int) Perm {
	perm := Perm(uint32(p)) & PermAll
	if revision == 2 {
		perm &^= PermFillForms | PermExtract | PermAssemble | PermPrintHighRes
		if perm.Has(PermAnnotate) {
			perm |= PermFillForms
		}
		if perm.Has(PermCopy) {
			perm |= PermExtract
		}
		if perm.Has(PermModify) {
			perm |= PermAssemble
		}
		if perm.Has(PermPrint) {
			perm |= PermPrintHighRes
		}
	}
	return perm
}
