package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
	"fmt"
	"io"
)

// RC4 encrypts and decrypts with the RC4 stream cipher. The key schedule
// runs again on every call, so no keystream carries over between calls.
type RC4 struct {
	Key []byte
}

// Crypt returns data XORed with the keystream. Encryption and decryption
// are the same operation.
func (c RC4) Crypt(data []byte) ([]byte, error) {
	s, err := rc4.NewCipher(c.Key)
	if err != nil {
		return nil, fmt.Errorf("rc4: %w", err)
	}
	out := make([]byte, len(data))
	s.XORKeyStream(out, data)
	return out, nil
}

// AES is AES in CBC mode with the IV stored in front of the ciphertext and
// PKCS#7 padding, as used by the AESV2 and AESV3 crypt filters. The key
// length selects AES-128 or AES-256.
type AES struct {
	Key []byte
}

// Encrypt pads data and encrypts it under a fresh random IV, which is
// returned as the first block.
func (c AES) Encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.Key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	nPad := aes.BlockSize - len(data)%aes.BlockSize
	out := make([]byte, aes.BlockSize+len(data)+nPad)
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("aes: generating IV: %w", err)
	}
	body := out[aes.BlockSize:]
	copy(body, data)
	for i := len(data); i < len(body); i++ {
		body[i] = byte(nPad)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, body)
	return out, nil
}

// Decrypt reads the IV from the first block and decrypts the rest.
//
// Decryption is lenient. Input without a full block after the IV gives
// empty output. A trailing partial block is dropped. Padding that does not
// check out is left in place instead of failing.
func (c AES) Decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.Key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	// some writers encrypt the empty string as a bare IV; anything shorter
	// has no IV at all
	if len(data) < 2*aes.BlockSize {
		return []byte{}, nil
	}
	iv := data[:aes.BlockSize]
	n := (len(data) - aes.BlockSize) / aes.BlockSize * aes.BlockSize
	out := make([]byte, n)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data[aes.BlockSize:aes.BlockSize+n])
	return unpad(out), nil
}

// unpad strips PKCS#7 padding if it is well formed.
func unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	n := int(b[len(b)-1])
	if n < 1 || n > aes.BlockSize || n > len(b) {
		return b
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return b
		}
	}
	return b[:len(b)-n]
}

// cbcNoPad runs AES-CBC with a zero IV and no padding over whole blocks.
// It wraps and unwraps the file key in /UE and /OE.
func cbcNoPad(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("data length %d is not a multiple of the block size", len(data))
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}
