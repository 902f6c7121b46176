// Package crypt implements the PDF Standard Security Handler.
//
// A [Handler] is built from a document's encryption dictionary and the first
// element of the trailer /ID array. After [Handler.AuthenticatePassword]
// succeeds it decrypts strings and streams of individual objects:
//
//	h, err := crypt.NewHandler(encryptDict, id)
//	if err != nil {
//		return err
//	}
//	if err := h.AuthenticatePassword(""); err != nil {
//		// errors.Is(err, crypt.ErrInvalidPassword): ask for a password
//	}
//	plain, err := h.DecryptStream(ref, stream.Data)
//
// Revisions 2 through 6 are supported, with RC4 (40 to 128 bit keys),
// AES-128 and AES-256 crypt filters. An [Encryptor] creates new encryption
// dictionaries for a chosen revision.
//
// The ciphers [RC4] and [AES] keep no state between calls; every call sets
// up a fresh cipher context.
package crypt
