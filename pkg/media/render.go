// Package media renders barcode labels and moves them in and out of PDF
// documents, the format delivery documents are scanned and archived in.
package media

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

const (
	LabelWidth  = 600
	LabelHeight = 120
)

// writerFor returns the gozxing encoder for a linear symbology.
func writerFor(format gozxing.BarcodeFormat) (gozxing.Writer, error) {
	switch format {
	case gozxing.BarcodeFormat_EAN_13:
		return oned.NewEAN13Writer(), nil
	case gozxing.BarcodeFormat_EAN_8:
		return oned.NewEAN8Writer(), nil
	case gozxing.BarcodeFormat_UPC_A:
		return oned.NewUPCAWriter(), nil
	case gozxing.BarcodeFormat_UPC_E:
		return oned.NewUPCEWriter(), nil
	case gozxing.BarcodeFormat_CODE_128:
		return oned.NewCode128Writer(), nil
	case gozxing.BarcodeFormat_CODE_39:
		return oned.NewCode39Writer(), nil
	case gozxing.BarcodeFormat_CODE_93:
		return oned.NewCode93Writer(), nil
	case gozxing.BarcodeFormat_ITF:
		return oned.NewITFWriter(), nil
	case gozxing.BarcodeFormat_CODABAR:
		return oned.NewCodaBarWriter(), nil
	default:
		return nil, fmt.Errorf("no label writer for symbology %s", format)
	}
}

// Render draws value as a barcode of the given symbology.
func Render(value string, format gozxing.BarcodeFormat, width, height int) (image.Image, error) {
	w, err := writerFor(format)
	if err != nil {
		return nil, err
	}
	if width <= 0 {
		width = LabelWidth
	}
	if height <= 0 {
		height = LabelHeight
	}
	img, err := w.Encode(value, format, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q as %s: %w", value, format, err)
	}
	return img, nil
}

// WritePNG encodes img as PNG.
func WritePNG(img image.Image, w io.Writer) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("png encoding failed: %w", err)
	}
	return nil
}
