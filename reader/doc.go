// Package reader opens PDF files and gives access to their objects.
//
// It ties together the lower-level packages: core for syntax and
// cross-reference data, crypt for the standard security handler and dct for
// JPEG images.
//
// # Opening PDF Files
//
// Use [Open] to open a PDF file for reading:
//
//	r, err := reader.Open("document.pdf", reader.WithPassword("secret"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
// Or use [New] with any io.ReadSeeker.
//
// Damaged cross-reference data is rebuilt by scanning the file unless
// [WithRepair] turns that off. Everything worked around while reading is
// listed by Warnings and logged at debug level to the [WithLogger] logger.
//
// # Encrypted Documents
//
// Documents with an /Encrypt dictionary are authenticated when they are
// opened. The empty password is tried first, then the [WithPassword]
// password, then whatever a [WithPasswordFunc] callback supplies. An error
// matching crypt.ErrInvalidPassword means another password may work.
// Objects are decrypted as they are loaded.
//
// # Object Resolution
//
// The Reader resolves indirect object references:
//
//   - GetObject(objNum) - load object by number
//   - ResolveReference(ref) - resolve an IndirectRef; missing objects are null
//   - Resolve(obj) - resolve if indirect, otherwise return as-is
//   - ResolveDeep(obj) - recursively resolve all references
//
// # Images
//
// Images lists the image XObjects of the file and DecodeImage renders one
// to an image.Image.
package reader
