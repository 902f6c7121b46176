package crypt

import (
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/tsawler/pdfcore/core"
)

// method is the cipher a crypt filter applies.
type method int

const (
	methodIdentity method = iota
	methodRC4
	methodAESV2
	methodAESV3
)

func (m method) String() string {
	switch m {
	case methodIdentity:
		return "Identity"
	case methodRC4:
		return "V2"
	case methodAESV2:
		return "AESV2"
	case methodAESV3:
		return "AESV3"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

var errNotAuthenticated = errors.New("security handler is not authenticated")

// Handler is the Standard Security Handler of one document.
//
// The per-object key of the last object used is cached, so a Handler is
// not safe for concurrent use. The reader calls it from one goroutine.
type Handler struct {
	v, r            int
	keyLen          int // file key length in bytes
	o, u, oe, ue    []byte
	perms           []byte
	p               int32
	id              []byte
	encryptMetadata bool

	strF, stmF method

	key          []byte
	owner        bool
	userPassword []byte

	cacheRef core.IndirectRef
	cacheAES bool
	cacheKey []byte
}

// NewHandler reads an encryption dictionary. id is the first element of the
// trailer /ID array and may be empty. The handler must be authenticated
// before it can decrypt.
func NewHandler(dict *core.Dict, id []byte) (*Handler, error) {
	if dict == nil {
		return nil, errors.New("missing encryption dictionary")
	}
	if filter, _ := dict.GetName("Filter"); filter != "Standard" {
		return nil, unsupported("security handler %q", string(filter))
	}

	h := &Handler{
		id:              append([]byte(nil), id...),
		encryptMetadata: true,
	}
	v, _ := dict.GetInt("V")
	r, ok := dict.GetInt("R")
	if !ok {
		return nil, fmt.Errorf("encryption dictionary has no /R")
	}
	h.v, h.r = int(v), int(r)
	if h.r < 2 || h.r > 6 {
		return nil, unsupported("revision %d", h.r)
	}

	switch h.v {
	case 0, 1:
		h.keyLen = 5
		h.strF, h.stmF = methodRC4, methodRC4
	case 2:
		h.keyLen = 5
		if n, ok := dict.GetInt("Length"); ok {
			if n < 40 || n > 128 || n%8 != 0 {
				return nil, unsupported("key length %d", n)
			}
			h.keyLen = int(n) / 8
		}
		h.strF, h.stmF = methodRC4, methodRC4
	case 4, 5:
		if b, ok := dict.GetBool("EncryptMetadata"); ok {
			h.encryptMetadata = bool(b)
		}
		cf, _ := dict.GetDict("CF")
		var err error
		var strLen, stmLen int
		if h.strF, strLen, err = cryptFilter(cf, dict, "StrF"); err != nil {
			return nil, err
		}
		if h.stmF, stmLen, err = cryptFilter(cf, dict, "StmF"); err != nil {
			return nil, err
		}
		h.keyLen = 16
		if h.v == 5 {
			h.keyLen = 32
		}
		if l := max(strLen, stmLen); h.v == 4 && l > 0 {
			h.keyLen = l
		}
	default:
		return nil, unsupported("algorithm version %d", h.v)
	}
	if (h.r >= 5) != (h.v == 5) {
		return nil, unsupported("revision %d with algorithm version %d", h.r, h.v)
	}

	p, ok := dict.GetInt("P")
	if !ok {
		return nil, errors.New("encryption dictionary has no /P")
	}
	h.p = int32(p)

	hashLen := 32
	if h.r >= 5 {
		hashLen = 48
	}
	var err error
	if h.o, err = byteString(dict, "O", hashLen); err != nil {
		return nil, err
	}
	if h.u, err = byteString(dict, "U", hashLen); err != nil {
		return nil, err
	}
	if h.r >= 5 {
		if h.oe, err = byteString(dict, "OE", 32); err != nil {
			return nil, err
		}
		if h.ue, err = byteString(dict, "UE", 32); err != nil {
			return nil, err
		}
		if s, ok := dict.GetString("Perms"); ok && len(s.Value) >= 16 {
			h.perms = s.Value[:16]
		} else if h.r == 6 {
			return nil, errors.New("encryption dictionary has no valid /Perms")
		}
	}
	return h, nil
}

// cryptFilter resolves the crypt filter named by key (StrF or StmF) and
// returns its method and key length in bytes, or 0 when not given.
func cryptFilter(cf, dict *core.Dict, key string) (method, int, error) {
	name, ok := dict.GetName(key)
	if !ok || name == "Identity" {
		return methodIdentity, 0, nil
	}
	filter, ok := cf.GetDict(string(name))
	if !ok {
		return 0, 0, fmt.Errorf("crypt filter %q not found in /CF", string(name))
	}
	cfm, _ := filter.GetName("CFM")
	length := 0
	if n, ok := filter.GetInt("Length"); ok {
		// some writers give bits instead of bytes
		if n > 32 {
			n /= 8
		}
		length = int(n)
	}
	switch cfm {
	case "None", "":
		return methodIdentity, 0, nil
	case "V2":
		return methodRC4, length, nil
	case "AESV2":
		return methodAESV2, 16, nil
	case "AESV3":
		return methodAESV3, 32, nil
	}
	return 0, 0, unsupported("crypt filter method %q", string(cfm))
}

func byteString(dict *core.Dict, key string, n int) ([]byte, error) {
	s, ok := dict.GetString(key)
	if !ok || len(s.Value) < n {
		return nil, fmt.Errorf("encryption dictionary has invalid /%s", key)
	}
	return s.Value[:n], nil
}

// Revision returns /R.
func (h *Handler) Revision() int { return h.r }

// Version returns /V.
func (h *Handler) Version() int { return h.v }

// KeyLength returns the file key length in bits.
func (h *Handler) KeyLength() int { return 8 * h.keyLen }

// EncryptMetadata reports whether metadata streams are encrypted.
func (h *Handler) EncryptMetadata() bool { return h.encryptMetadata }

// Permissions returns the user access permissions.
func (h *Handler) Permissions() Perm { return PermFromP(h.p, h.r) }

// Authenticated reports whether a password has been accepted.
func (h *Handler) Authenticated() bool { return h.key != nil }

// IsOwner reports whether the owner password was accepted.
func (h *Handler) IsOwner() bool { return h.owner }

// UserPassword returns the user password recovered by an owner login for
// revisions 2 to 4, or the accepted user password.
func (h *Handler) UserPassword() []byte { return h.userPassword }

// AuthenticatePassword checks pw as owner password, then as user password.
// It returns an *InvalidPasswordError when neither matches.
func (h *Handler) AuthenticatePassword(pw string) error {
	if h.r >= 5 {
		prepared := utf8Password(pw)
		if key, ok := h.checkOwnerAES(prepared); ok && h.checkPerms(key) {
			h.setKey(key, true, nil)
			return nil
		}
		if key, ok := h.checkUserAES(prepared); ok && h.checkPerms(key) {
			h.setKey(key, false, prepared)
			return nil
		}
		return &InvalidPasswordError{ID: h.id, Revision: h.r}
	}

	padded := padPassword(pw)
	if key, user, ok := h.checkOwner(padded); ok {
		h.setKey(key, true, unpadPassword(user))
		return nil
	}
	if key, ok := h.checkUser(padded); ok {
		h.setKey(key, false, unpadPassword(padded))
		return nil
	}
	return &InvalidPasswordError{ID: h.id, Revision: h.r}
}

func (h *Handler) setKey(key []byte, owner bool, user []byte) {
	h.key = key
	h.owner = owner
	h.userPassword = user
	h.cacheKey = nil
}

// objectKey returns the key for one object. Revisions 5 and 6 use the file
// key directly.
func (h *Handler) objectKey(ref core.IndirectRef, aes bool) []byte {
	if h.r >= 5 {
		return h.key
	}
	if h.cacheKey != nil && h.cacheRef == ref && h.cacheAES == aes {
		return h.cacheKey
	}

	buf := make([]byte, 0, len(h.key)+9)
	buf = append(buf, h.key...)
	buf = append(buf,
		byte(ref.Number), byte(ref.Number>>8), byte(ref.Number>>16),
		byte(ref.Generation), byte(ref.Generation>>8))
	if aes {
		buf = append(buf, "sAlT"...)
	}
	sum := md5.Sum(buf)
	n := min(len(h.key)+5, 16)

	h.cacheRef, h.cacheAES = ref, aes
	h.cacheKey = sum[:n]
	return h.cacheKey
}

func (h *Handler) crypt(m method, ref core.IndirectRef, data []byte, encrypt bool) ([]byte, error) {
	if h.key == nil {
		return nil, errNotAuthenticated
	}
	switch m {
	case methodIdentity:
		return data, nil
	case methodRC4:
		return RC4{Key: h.objectKey(ref, false)}.Crypt(data)
	case methodAESV2, methodAESV3:
		c := AES{Key: h.objectKey(ref, true)}
		if encrypt {
			return c.Encrypt(data)
		}
		return c.Decrypt(data)
	}
	return nil, unsupported("crypt filter method %v", m)
}

// DecryptString decrypts a string of object ref.
func (h *Handler) DecryptString(ref core.IndirectRef, data []byte) ([]byte, error) {
	return h.crypt(h.strF, ref, data, false)
}

// DecryptStream decrypts the raw data of a stream of object ref.
func (h *Handler) DecryptStream(ref core.IndirectRef, data []byte) ([]byte, error) {
	return h.crypt(h.stmF, ref, data, false)
}

// EncryptString encrypts a string of object ref.
func (h *Handler) EncryptString(ref core.IndirectRef, data []byte) ([]byte, error) {
	return h.crypt(h.strF, ref, data, true)
}

// EncryptStream encrypts the data of a stream of object ref.
func (h *Handler) EncryptStream(ref core.IndirectRef, data []byte) ([]byte, error) {
	return h.crypt(h.stmF, ref, data, true)
}

// DecryptObject returns a copy of obj, which belongs to object ref, with
// all strings and stream data decrypted. Cross-reference streams, metadata
// streams when /EncryptMetadata is false and streams with an Identity
// crypt filter are left as they are.
func (h *Handler) DecryptObject(ref core.IndirectRef, obj core.Object) (core.Object, error) {
	switch v := obj.(type) {
	case core.String:
		b, err := h.DecryptString(ref, v.Value)
		if err != nil {
			return nil, err
		}
		return core.String{Value: b, Hex: v.Hex}, nil
	case core.Array:
		out := make(core.Array, len(v))
		for i, elem := range v {
			dec, err := h.DecryptObject(ref, elem)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case *core.Dict:
		return h.decryptDict(ref, v)
	case *core.Stream:
		dict, err := h.decryptDict(ref, v.Dict)
		if err != nil {
			return nil, err
		}
		data := v.Data
		if h.streamEncrypted(v.Dict) {
			if data, err = h.DecryptStream(ref, v.Data); err != nil {
				return nil, err
			}
		}
		return &core.Stream{Dict: dict, Data: data}, nil
	}
	return obj, nil
}

func (h *Handler) decryptDict(ref core.IndirectRef, d *core.Dict) (*core.Dict, error) {
	out := core.NewDict()
	for _, k := range d.Keys() {
		dec, err := h.DecryptObject(ref, d.Get(k))
		if err != nil {
			return nil, err
		}
		out.Set(k, dec)
	}
	return out, nil
}

func (h *Handler) streamEncrypted(d *core.Dict) bool {
	switch typ, _ := d.GetName("Type"); typ {
	case "XRef":
		return false
	case "Metadata":
		if !h.encryptMetadata {
			return false
		}
	}
	// a Crypt filter first in the chain overrides the default
	var first core.Name
	switch f := d.Get("Filter").(type) {
	case core.Name:
		first = f
	case core.Array:
		first, _ = f.GetName(0)
	}
	if first == "Crypt" {
		var parms *core.Dict
		switch p := d.Get("DecodeParms").(type) {
		case *core.Dict:
			parms = p
		case core.Array:
			parms, _ = p.Get(0).(*core.Dict)
		}
		if name, _ := parms.GetName("Name"); name == "" || name == "Identity" {
			return false
		}
	}
	return true
}
