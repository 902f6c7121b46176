package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"

	"github.com/xdg-go/stringprep"
	"golang.org/x/text/encoding/charmap"
)

// passwordPad fills passwords up to 32 bytes for revisions 2 to 4.
var passwordPad = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// padPassword returns the 32-byte padded form of a revision 2-4 password.
// Passwords are single-byte encoded; characters without a Windows-1252 form
// keep their UTF-8 bytes.
func padPassword(pw string) []byte {
	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte(pw))
	if err != nil {
		raw = []byte(pw)
	}
	padded := make([]byte, 32)
	n := copy(padded, raw)
	copy(padded[n:], passwordPad)
	return padded
}

// unpadPassword strips the padding from a padded password.
func unpadPassword(padded []byte) []byte {
	for i := 0; i < len(padded); i++ {
		if bytes.HasPrefix(passwordPad, padded[i:]) {
			return padded[:i]
		}
	}
	return padded
}

// utf8Password prepares a revision 5/6 password with SASLprep and truncates
// it to 127 bytes.
func utf8Password(pw string) []byte {
	prepped, err := stringprep.SASLprep.Prepare(pw)
	if err != nil {
		prepped = pw
	}
	b := []byte(prepped)
	if len(b) > 127 {
		b = b[:127]
	}
	return b
}

// fileKey computes the file encryption key from a padded user password
// (revisions 2 to 4).
func (h *Handler) fileKey(paddedUser []byte) []byte {
	md := md5.New()
	md.Write(paddedUser)
	md.Write(h.o)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(h.p))
	md.Write(p[:])
	md.Write(h.id)
	if h.r >= 4 && !h.encryptMetadata {
		md.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	key := md.Sum(nil)
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:h.keyLen])
			key = sum[:]
		}
	}
	return key[:h.keyLen]
}

// ownerKey derives the RC4 key that encrypts the user password into /O.
func (h *Handler) ownerKey(paddedOwner []byte) []byte {
	sum := md5.Sum(paddedOwner)
	key := sum[:]
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:h.keyLen])
			key = sum[:]
		}
	}
	return key[:h.keyLen]
}

// xorRounds applies RC4 with the key XORed with each round number in turn.
func xorRounds(key, data []byte, from, to int) []byte {
	tmp := make([]byte, len(key))
	step := 1
	if to < from {
		step = -1
	}
	for i := from; ; i += step {
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		data, _ = RC4{Key: tmp}.Crypt(data)
		if i == to {
			return data
		}
	}
}

// computeO builds the /O value for revisions 2 to 4.
func (h *Handler) computeO(paddedUser, paddedOwner []byte) []byte {
	key := h.ownerKey(paddedOwner)
	o, _ := RC4{Key: key}.Crypt(paddedUser)
	if h.r >= 3 {
		o = xorRounds(key, o, 1, 19)
	}
	return o
}

// computeU builds the /U value for revisions 2 to 4 from the file key.
func (h *Handler) computeU(key []byte) []byte {
	if h.r == 2 {
		u, _ := RC4{Key: key}.Crypt(passwordPad)
		return u
	}
	md := md5.New()
	md.Write(passwordPad)
	md.Write(h.id)
	u, _ := RC4{Key: key}.Crypt(md.Sum(nil))
	u = xorRounds(key, u, 1, 19)
	// the last 16 bytes are arbitrary
	return append(u, make([]byte, 16)...)
}

// checkUser tries a padded password as the user password (revisions 2 to 4)
// and returns the file key on success.
func (h *Handler) checkUser(paddedUser []byte) ([]byte, bool) {
	key := h.fileKey(paddedUser)
	u := h.computeU(key)
	if h.r == 2 {
		return key, bytes.Equal(u, h.u[:32])
	}
	return key, bytes.Equal(u[:16], h.u[:16])
}

// checkOwner tries a padded password as the owner password (revisions 2 to
// 4). On success it returns the file key and the padded user password
// recovered from /O.
func (h *Handler) checkOwner(paddedOwner []byte) ([]byte, []byte, bool) {
	key := h.ownerKey(paddedOwner)
	user := append([]byte(nil), h.o[:32]...)
	if h.r == 2 {
		user, _ = RC4{Key: key}.Crypt(user)
	} else {
		user = xorRounds(key, user, 19, 0)
	}
	fk, ok := h.checkUser(user)
	return fk, user, ok
}

// hashR5 is the SHA-256 password hash of revision 5. For owner checks, u
// holds the 48-byte /U value.
func hashR5(pw, salt, u []byte) []byte {
	md := sha256.New()
	md.Write(pw)
	md.Write(salt)
	md.Write(u)
	return md.Sum(nil)
}

// hashR6 is the iterated hash of revision 6. For owner checks, u holds the
// 48-byte /U value.
func hashR6(pw, salt, u []byte) []byte {
	md := sha256.New()
	md.Write(pw)
	md.Write(salt)
	md.Write(u)
	k := md.Sum(nil)

	k1 := make([]byte, 0, 64*(len(pw)+64+len(u)))
	for round := 0; ; round++ {
		k1 = k1[:0]
		for j := 0; j < 64; j++ {
			k1 = append(k1, pw...)
			k1 = append(k1, k...)
			k1 = append(k1, u...)
		}
		block, _ := aes.NewCipher(k[:16])
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(k1, k1)

		// the first 16 bytes as a big-endian number mod 3
		rem := 0
		for _, b := range k1[:16] {
			rem += int(b)
		}
		var next hash.Hash
		switch rem % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(k1)
		k = next.Sum(nil)

		// after round 63, stop once the last byte of E is at most the
		// next round number minus 32
		if round >= 63 && int(k1[len(k1)-1]) <= round+1-32 {
			break
		}
	}
	return k[:32]
}

func (h *Handler) hash(pw, salt, u []byte) []byte {
	if h.r == 5 {
		return hashR5(pw, salt, u)
	}
	return hashR6(pw, salt, u)
}

// checkUserAES tries a prepared password against /U (revisions 5 and 6)
// and unwraps the file key from /UE.
func (h *Handler) checkUserAES(pw []byte) ([]byte, bool) {
	if !bytes.Equal(h.hash(pw, h.u[32:40], nil), h.u[:32]) {
		return nil, false
	}
	key, err := cbcNoPad(h.hash(pw, h.u[40:48], nil), h.ue, false)
	return key, err == nil
}

// checkOwnerAES tries a prepared password against /O (revisions 5 and 6)
// and unwraps the file key from /OE.
func (h *Handler) checkOwnerAES(pw []byte) ([]byte, bool) {
	if !bytes.Equal(h.hash(pw, h.o[32:40], h.u[:48]), h.o[:32]) {
		return nil, false
	}
	key, err := cbcNoPad(h.hash(pw, h.o[40:48], h.u[:48]), h.oe, false)
	return key, err == nil
}

// computePerms encrypts the /Perms block for revisions 5 and 6. The last
// four bytes are random filler.
func (h *Handler) computePerms(key, filler []byte) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf, uint32(h.p))
	copy(buf[4:8], []byte{0xff, 0xff, 0xff, 0xff})
	buf[8] = 'F'
	if h.encryptMetadata {
		buf[8] = 'T'
	}
	copy(buf[9:12], "adb")
	copy(buf[12:], filler)
	block, _ := aes.NewCipher(key)
	block.Encrypt(buf, buf)
	return buf
}

// checkPerms decrypts /Perms with the file key and compares it with /P and
// /EncryptMetadata.
func (h *Handler) checkPerms(key []byte) bool {
	if len(h.perms) < 16 {
		return true
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return false
	}
	buf := make([]byte, 16)
	block.Decrypt(buf, h.perms[:16])
	if string(buf[9:12]) != "adb" {
		return false
	}
	if binary.LittleEndian.Uint32(buf[:4]) != uint32(h.p) {
		return false
	}
	want := byte('F')
	if h.encryptMetadata {
		want = 'T'
	}
	return buf[8] == want
}
