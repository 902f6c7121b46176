package crypt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tsawler/pdfcore/core"
)

var docID = []byte("\x9a\x1b\x3c\x55\x01\x02\x03\x04\x05\x06\x07\x08\x09\x0a\x0b\x0c")

func newEncrypted(t *testing.T, revision int, user, owner string, perm Perm) (*core.Dict, *Encryptor) {
	t.Helper()
	e := NewEncryptor(revision, docID)
	dict, err := e.Reset(user, owner, perm)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	return dict, e
}

func TestAuthenticatePassword(t *testing.T) {
	for _, revision := range []int{2, 3, 4, 5, 6} {
		dict, _ := newEncrypted(t, revision, "user", "owner", PermPrint|PermCopy)

		tests := []struct {
			password  string
			wantErr   bool
			wantOwner bool
		}{
			{"user", false, false},
			{"owner", false, true},
			{"wrong", true, false},
			{"", true, false},
		}
		for _, tt := range tests {
			h, err := NewHandler(dict, docID)
			if err != nil {
				t.Fatalf("R%d: NewHandler() error = %v", revision, err)
			}
			err = h.AuthenticatePassword(tt.password)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPassword) {
					t.Errorf("R%d: AuthenticatePassword(%q) error = %v, want ErrInvalidPassword", revision, tt.password, err)
				}
				var ipe *InvalidPasswordError
				if errors.As(err, &ipe) && ipe.Revision != revision {
					t.Errorf("R%d: error revision = %d", revision, ipe.Revision)
				}
				if h.Authenticated() {
					t.Errorf("R%d: handler authenticated after failure", revision)
				}
				continue
			}
			if err != nil {
				t.Errorf("R%d: AuthenticatePassword(%q) error = %v", revision, tt.password, err)
				continue
			}
			if h.IsOwner() != tt.wantOwner {
				t.Errorf("R%d: IsOwner() = %v for %q", revision, h.IsOwner(), tt.password)
			}
		}
	}
}

func TestEmptyUserPassword(t *testing.T) {
	for _, revision := range []int{2, 3, 4, 5, 6} {
		dict, _ := newEncrypted(t, revision, "", "secret", PermAll)
		h, err := NewHandler(dict, docID)
		if err != nil {
			t.Fatal(err)
		}
		if err := h.AuthenticatePassword(""); err != nil {
			t.Errorf("R%d: empty user password rejected: %v", revision, err)
		}
		if h.IsOwner() {
			t.Errorf("R%d: empty password accepted as owner", revision)
		}
	}
}

func TestOwnerRecoversUserPassword(t *testing.T) {
	for _, revision := range []int{2, 3, 4} {
		dict, _ := newEncrypted(t, revision, "hidden", "owner", PermAll)
		h, _ := NewHandler(dict, docID)
		if err := h.AuthenticatePassword("owner"); err != nil {
			t.Fatalf("R%d: %v", revision, err)
		}
		if got := string(h.UserPassword()); got != "hidden" {
			t.Errorf("R%d: UserPassword() = %q, want %q", revision, got, "hidden")
		}
	}
}

func TestOwnerDefaultsToUser(t *testing.T) {
	dict, _ := newEncrypted(t, 3, "both", "", PermAll)
	h, _ := NewHandler(dict, docID)
	if err := h.AuthenticatePassword("both"); err != nil {
		t.Fatal(err)
	}
	if !h.IsOwner() {
		t.Error("password not accepted as owner password")
	}
}

func TestEncryptDecryptAcrossHandlers(t *testing.T) {
	refs := []core.IndirectRef{{Number: 1}, {Number: 12, Generation: 3}, {Number: 70000}}
	for _, revision := range []int{2, 3, 4, 5, 6} {
		dict, enc := newEncrypted(t, revision, "user", "owner", PermAll)
		dec, err := NewHandler(dict, docID)
		if err != nil {
			t.Fatal(err)
		}
		if err := dec.AuthenticatePassword("user"); err != nil {
			t.Fatal(err)
		}

		for _, ref := range refs {
			for _, n := range roundTripLengths {
				plain := testData(n)
				c, err := enc.Handler().EncryptString(ref, plain)
				if err != nil {
					t.Fatal(err)
				}
				got, err := dec.DecryptString(ref, c)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(got, plain) {
					t.Errorf("R%d %v: string of %d bytes did not round trip", revision, ref, n)
				}

				c, err = enc.Handler().EncryptStream(ref, plain)
				if err != nil {
					t.Fatal(err)
				}
				got, err = dec.DecryptStream(ref, c)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(got, plain) {
					t.Errorf("R%d %v: stream of %d bytes did not round trip", revision, ref, n)
				}
			}
		}
	}
}

func TestObjectKeys(t *testing.T) {
	tests := []struct {
		revision int
		aes      bool
		keyLen   int
	}{
		{2, false, 10},
		{3, false, 16},
		{4, true, 16},
		{5, true, 32},
		{6, true, 32},
	}
	for _, tt := range tests {
		_, e := newEncrypted(t, tt.revision, "u", "o", PermAll)
		h := e.Handler()
		k1 := append([]byte(nil), h.objectKey(core.IndirectRef{Number: 1}, tt.aes)...)
		k2 := h.objectKey(core.IndirectRef{Number: 2}, tt.aes)
		if len(k1) != tt.keyLen {
			t.Errorf("R%d: object key length = %d, want %d", tt.revision, len(k1), tt.keyLen)
		}
		if tt.revision < 5 && bytes.Equal(k1, k2) {
			t.Errorf("R%d: objects 1 and 2 share a key", tt.revision)
		}
		if tt.revision >= 5 && !bytes.Equal(k1, h.key) {
			t.Errorf("R%d: object key differs from the file key", tt.revision)
		}
		if again := h.objectKey(core.IndirectRef{Number: 1}, tt.aes); !bytes.Equal(again, k1) {
			t.Errorf("R%d: key for object 1 changed", tt.revision)
		}
	}
}

func TestDecryptNotAuthenticated(t *testing.T) {
	dict, _ := newEncrypted(t, 4, "user", "owner", PermAll)
	h, _ := NewHandler(dict, docID)
	if _, err := h.DecryptString(core.IndirectRef{Number: 1}, []byte("abc")); err == nil {
		t.Error("expected error before authentication")
	}
}

func TestDecryptObject(t *testing.T) {
	ref := core.IndirectRef{Number: 5}
	dict, e := newEncrypted(t, 4, "", "owner", PermAll)
	enc := e.Handler()
	encStr := func(s string) core.String {
		c, err := enc.EncryptString(ref, []byte(s))
		if err != nil {
			t.Fatal(err)
		}
		return core.String{Value: c}
	}
	encStm := func(s string) []byte {
		c, err := enc.EncryptStream(ref, []byte(s))
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	inner := core.NewDict()
	inner.Set("Title", encStr("inner"))
	d := core.NewDict()
	d.Set("Name", core.Name("Plain"))
	d.Set("Kids", core.Array{encStr("a"), core.Int(3), inner})
	stmDict := core.NewDict()
	stmDict.Set("Length", core.Int(0))
	stm := &core.Stream{Dict: stmDict, Data: encStm("BT /F1 12 Tf ET")}
	xrefDict := core.NewDict()
	xrefDict.Set("Type", core.Name("XRef"))
	xref := &core.Stream{Dict: xrefDict, Data: []byte("raw")}

	h, _ := NewHandler(dict, docID)
	if err := h.AuthenticatePassword(""); err != nil {
		t.Fatal(err)
	}

	got, err := h.DecryptObject(ref, d)
	if err != nil {
		t.Fatal(err)
	}
	wantInner := core.NewDict()
	wantInner.Set("Title", core.NewString("inner"))
	want := core.NewDict()
	want.Set("Name", core.Name("Plain"))
	want.Set("Kids", core.Array{core.NewString("a"), core.Int(3), wantInner})
	if !bytes.Equal(core.Format(got), core.Format(want)) {
		t.Errorf("DecryptObject() = %s, want %s", core.Format(got), core.Format(want))
	}

	gotStm, err := h.DecryptObject(ref, stm)
	if err != nil {
		t.Fatal(err)
	}
	if data := gotStm.(*core.Stream).Data; string(data) != "BT /F1 12 Tf ET" {
		t.Errorf("stream data = %q", data)
	}

	gotXRef, err := h.DecryptObject(ref, xref)
	if err != nil {
		t.Fatal(err)
	}
	if data := gotXRef.(*core.Stream).Data; string(data) != "raw" {
		t.Errorf("xref stream was decrypted: %q", data)
	}
}

func TestUnencryptedMetadata(t *testing.T) {
	e := NewEncryptor(4, docID)
	e.EncryptMetadata = false
	dict, err := e.Reset("", "o", PermAll)
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := dict.GetBool("EncryptMetadata"); !ok || bool(b) {
		t.Fatalf("EncryptMetadata = %v, %v", b, ok)
	}
	h, err := NewHandler(dict, docID)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.AuthenticatePassword(""); err != nil {
		t.Fatal(err)
	}
	if h.EncryptMetadata() {
		t.Error("EncryptMetadata() = true")
	}
	md := core.NewDict()
	md.Set("Type", core.Name("Metadata"))
	got, err := h.DecryptObject(core.IndirectRef{Number: 9}, &core.Stream{Dict: md, Data: []byte("<x:xmpmeta/>")})
	if err != nil {
		t.Fatal(err)
	}
	if data := got.(*core.Stream).Data; string(data) != "<x:xmpmeta/>" {
		t.Errorf("metadata stream was decrypted: %q", data)
	}
}

func TestNewHandlerReadsDictionary(t *testing.T) {
	tests := []struct {
		revision int
		v        int
		keyBits  int
	}{
		{2, 1, 40},
		{3, 2, 128},
		{4, 4, 128},
		{5, 5, 256},
		{6, 5, 256},
	}
	for _, tt := range tests {
		dict, _ := newEncrypted(t, tt.revision, "u", "o", PermPrint)
		h, err := NewHandler(dict, docID)
		if err != nil {
			t.Fatalf("R%d: %v", tt.revision, err)
		}
		got := []int{h.Revision(), h.Version(), h.KeyLength()}
		if diff := cmp.Diff([]int{tt.revision, tt.v, tt.keyBits}, got); diff != "" {
			t.Errorf("R%d mismatch (-want +got):\n%s", tt.revision, diff)
		}
		if p := h.Permissions(); !p.Has(PermPrint) || p.Has(PermModify) {
			t.Errorf("R%d: Permissions() = %v", tt.revision, p)
		}
	}
}

func TestRC4KeyLength40(t *testing.T) {
	e := NewEncryptor(3, docID)
	e.KeyLength = 40
	dict, err := e.Reset("u", "o", PermAll)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := NewHandler(dict, docID)
	if err := h.AuthenticatePassword("u"); err != nil {
		t.Fatal(err)
	}
	if h.KeyLength() != 40 {
		t.Errorf("KeyLength() = %d, want 40", h.KeyLength())
	}
}

func TestNewHandlerErrors(t *testing.T) {
	valid, _ := newEncrypted(t, 4, "u", "o", PermAll)
	with := func(key string, val core.Object) *core.Dict {
		d := valid.Clone()
		d.Set(key, val)
		return d
	}
	tests := []struct {
		name            string
		dict            *core.Dict
		wantUnsupported bool
	}{
		{"nil", nil, false},
		{"public key handler", with("Filter", core.Name("Adobe.PubSec")), true},
		{"unpublished V3", with("V", core.Int(3)), true},
		{"revision 7", with("R", core.Int(7)), true},
		{"missing R", with("R", nil), false},
		{"missing P", with("P", nil), false},
		{"short O", with("O", core.NewString("abc")), false},
		{"unknown crypt filter", with("StmF", core.Name("Other")), false},
		{"revision 5 with V4", with("R", core.Int(5)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHandler(tt.dict, docID)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnsupported); got != tt.wantUnsupported {
				t.Errorf("errors.Is(ErrUnsupported) = %v for %v", got, err)
			}
		})
	}
}

func TestEncryptorInvalid(t *testing.T) {
	if _, err := NewEncryptor(7, docID).Reset("u", "o", PermAll); !errors.Is(err, ErrUnsupported) {
		t.Errorf("revision 7: error = %v", err)
	}
	e := NewEncryptor(3, docID)
	e.KeyLength = 44
	if _, err := e.Reset("u", "o", PermAll); err == nil {
		t.Error("expected error for 44-bit key")
	}
}

func TestAESPasswordPreparation(t *testing.T) {
	// U+00AD (soft hyphen) is mapped to nothing by SASLprep
	dict, _ := newEncrypted(t, 6, "pass\u00adword", "owner", PermAll)
	h, _ := NewHandler(dict, docID)
	if err := h.AuthenticatePassword("password"); err != nil {
		t.Errorf("prepared password rejected: %v", err)
	}
}
