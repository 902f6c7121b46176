// Package imagecodec converts raster image files into PDF image XObjects.
//
// Each decoder returns an [Image] holding the samples in PDF layout plus
// the colour space, masks and bit depth the image dictionary needs:
//
//	im, err := imagecodec.Decode(data)
//	if errors.Is(err, imagecodec.ErrUnsupportedFormat) {
//		// skip the file
//	}
//	stream, err := im.ToStream()
//
// BMP, GIF and PNG are decoded natively. JPEG files are stored unchanged
// under /DCTDecode. TIFF and WebP go through golang.org/x/image and
// [FromImage].
package imagecodec
