package crypt

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/tsawler/pdfcore/core"
)

// Encryptor creates encryption dictionaries for new documents.
type Encryptor struct {
	// Revision of the security handler, 2 to 6.
	Revision int

	// KeyLength is the RC4 key length in bits for revision 3 (40 to 128).
	// Other revisions have a fixed key length.
	KeyLength int

	// EncryptMetadata controls whether metadata streams are encrypted
	// (revision 4 and later).
	EncryptMetadata bool

	// ID is the first element of the document ID.
	ID []byte

	handler *Handler
}

// NewEncryptor returns an Encryptor for the given revision with 128-bit
// keys where the revision allows a choice.
func NewEncryptor(revision int, id []byte) *Encryptor {
	return &Encryptor{
		Revision:        revision,
		KeyLength:       128,
		EncryptMetadata: true,
		ID:              id,
	}
}

// Handler returns the owner-authenticated handler created by the last
// successful Reset, or nil.
func (e *Encryptor) Handler() *Handler { return e.handler }

// Reset generates a new file key and returns the encryption dictionary for
// the passwords and permissions. An empty owner password is replaced by
// the user password.
func (e *Encryptor) Reset(user, owner string, perm Perm) (*core.Dict, error) {
	if owner == "" {
		owner = user
	}
	h := &Handler{
		r:               e.Revision,
		id:              append([]byte(nil), e.ID...),
		encryptMetadata: e.EncryptMetadata || e.Revision < 4,
		p:               perm.P(),
	}

	dict := core.NewDict()
	dict.Set("Filter", core.Name("Standard"))
	switch e.Revision {
	case 2:
		h.v, h.keyLen = 1, 5
		h.strF, h.stmF = methodRC4, methodRC4
	case 3:
		if e.KeyLength < 40 || e.KeyLength > 128 || e.KeyLength%8 != 0 {
			return nil, fmt.Errorf("invalid RC4 key length %d", e.KeyLength)
		}
		h.v, h.keyLen = 2, e.KeyLength/8
		h.strF, h.stmF = methodRC4, methodRC4
	case 4:
		h.v, h.keyLen = 4, 16
		h.strF, h.stmF = methodAESV2, methodAESV2
	case 5, 6:
		h.v, h.keyLen = 5, 32
		h.strF, h.stmF = methodAESV3, methodAESV3
	default:
		return nil, unsupported("revision %d", e.Revision)
	}
	dict.Set("V", core.Int(h.v))
	dict.Set("R", core.Int(h.r))
	if h.v >= 2 {
		dict.Set("Length", core.Int(8*h.keyLen))
	}
	if h.v >= 4 {
		cf := core.NewDict()
		cf.Set("CFM", core.Name(h.stmF.String()))
		cf.Set("AuthEvent", core.Name("DocOpen"))
		cf.Set("Length", core.Int(h.keyLen))
		cfs := core.NewDict()
		cfs.Set("StdCF", cf)
		dict.Set("CF", cfs)
		dict.Set("StmF", core.Name("StdCF"))
		dict.Set("StrF", core.Name("StdCF"))
		if !h.encryptMetadata {
			dict.Set("EncryptMetadata", core.Bool(false))
		}
	}

	if h.r < 5 {
		paddedUser := padPassword(user)
		h.o = h.computeO(paddedUser, padPassword(owner))
		h.key = h.fileKey(paddedUser)
		h.u = h.computeU(h.key)
		h.userPassword = unpadPassword(paddedUser)
	} else {
		if err := h.resetAES(utf8Password(user), utf8Password(owner)); err != nil {
			return nil, err
		}
		dict.Set("OE", hexString(h.oe))
		dict.Set("UE", hexString(h.ue))
		dict.Set("Perms", hexString(h.perms))
	}
	dict.Set("O", hexString(h.o))
	dict.Set("U", hexString(h.u))
	dict.Set("P", core.Int(h.p))

	h.owner = true
	e.handler = h
	return dict, nil
}

// resetAES fills in a random file key and the /U, /UE, /O, /OE and /Perms
// values for revisions 5 and 6.
func (h *Handler) resetAES(user, owner []byte) error {
	// file key, user salts, owner salts, Perms filler
	buf := make([]byte, 32+16+16+4)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Errorf("generating file key: %w", err)
	}
	key, userSalt, ownerSalt, filler := buf[:32], buf[32:48], buf[48:64], buf[64:]

	h.u = append(h.hash(user, userSalt[:8], nil), userSalt...)
	ue, err := cbcNoPad(h.hash(user, userSalt[8:], nil), key, true)
	if err != nil {
		return err
	}
	h.o = append(h.hash(owner, ownerSalt[:8], h.u), ownerSalt...)
	oe, err := cbcNoPad(h.hash(owner, ownerSalt[8:], h.u), key, true)
	if err != nil {
		return err
	}
	h.ue, h.oe = ue, oe
	h.perms = h.computePerms(key, filler)
	h.key = key
	h.userPassword = user
	return nil
}

func hexString(b []byte) core.String {
	return core.String{Value: b, Hex: true}
}
