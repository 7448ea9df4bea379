// Package decoder wraps gozxing into a reusable, symbology-configured decoder
// handle and the continuous decode loop that feeds a scan session.
package decoder

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// ErrNotFound is the steady-state outcome of a frame without a readable
// barcode. It is not a failure.
var ErrNotFound = errors.New("decoder: no barcode in frame")

// Result is a successfully decoded barcode.
type Result struct {
	Text   string
	Format gozxing.BarcodeFormat
}

// Handle is a decoding engine configured for a fixed set of symbologies.
// It is safe for use by one decode loop at a time and may be reused across
// loops.
type Handle struct {
	mu      sync.Mutex
	formats []gozxing.BarcodeFormat
	hints   map[gozxing.DecodeHintType]interface{}
	readers []gozxing.Reader
}

// upcEAN are the formats served by the combined UPC/EAN reader.
var upcEAN = []gozxing.BarcodeFormat{
	gozxing.BarcodeFormat_EAN_13,
	gozxing.BarcodeFormat_EAN_8,
	gozxing.BarcodeFormat_UPC_A,
	gozxing.BarcodeFormat_UPC_E,
}

// readersFor returns one reader per requested symbology family, in a fixed
// order. The UPC/EAN family shares a single reader.
func readersFor(formats []gozxing.BarcodeFormat, hints map[gozxing.DecodeHintType]interface{}) []gozxing.Reader {
	var readers []gozxing.Reader
	for _, f := range upcEAN {
		if Accepts(formats, f) {
			readers = append(readers, oned.NewMultiFormatUPCEANReader(hints))
			break
		}
	}
	if Accepts(formats, gozxing.BarcodeFormat_CODE_128) {
		readers = append(readers, oned.NewCode128Reader())
	}
	if Accepts(formats, gozxing.BarcodeFormat_CODE_39) {
		readers = append(readers, oned.NewCode39Reader())
	}
	if Accepts(formats, gozxing.BarcodeFormat_CODE_93) {
		readers = append(readers, oned.NewCode93Reader())
	}
	if Accepts(formats, gozxing.BarcodeFormat_ITF) {
		readers = append(readers, oned.NewITFReader())
	}
	if Accepts(formats, gozxing.BarcodeFormat_CODABAR) {
		readers = append(readers, oned.NewCodaBarReader())
	}
	return readers
}

// New builds a handle accepting the given symbologies.
func New(formats []gozxing.BarcodeFormat) (*Handle, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("decoder: at least one symbology is required")
	}
	for _, f := range formats {
		if !Accepts(Symbologies, f) {
			return nil, fmt.Errorf("decoder: symbology %s is not a supported linear format", f)
		}
	}

	set := append([]gozxing.BarcodeFormat(nil), formats...)
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_POSSIBLE_FORMATS: set,
		gozxing.DecodeHintType_TRY_HARDER:       true,
	}
	return &Handle{
		formats: set,
		hints:   hints,
		readers: readersFor(set, hints),
	}, nil
}

// Formats returns the accepted symbologies.
func (h *Handle) Formats() []gozxing.BarcodeFormat {
	return append([]gozxing.BarcodeFormat(nil), h.formats...)
}

// Decode looks for a barcode in a single frame. It returns ErrNotFound when
// the frame holds nothing readable.
func (h *Handle) Decode(img image.Image) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("decoder: nil frame")
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("gozxing.NewBinaryBitmapFromImage failed: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	res, err := h.decode(bmp)
	if err != nil {
		var nf gozxing.NotFoundException
		if errors.As(err, &nf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("decoder: %w", err)
	}
	if !Accepts(h.formats, res.GetBarcodeFormat()) {
		return nil, ErrNotFound
	}
	return &Result{Text: res.GetText(), Format: res.GetBarcodeFormat()}, nil
}

// decode tries each reader in turn. A reader rejecting the frame (not found,
// bad checksum, malformed) hands over to the next one; when all of them
// reject it the frame holds no readable barcode.
func (h *Handle) decode(bmp *gozxing.BinaryBitmap) (*gozxing.Result, error) {
	for _, r := range h.readers {
		res, err := r.Decode(bmp, h.hints)
		r.Reset()
		if err == nil {
			return res, nil
		}
		var re gozxing.ReaderException
		if !errors.As(err, &re) {
			return nil, err
		}
	}
	return nil, gozxing.NewNotFoundException()
}
