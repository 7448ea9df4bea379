package decoder

import (
	"fmt"
	"strings"

	"github.com/makiuchi-d/gozxing"
)

// Symbologies is the set of linear formats a scanning station accepts.
// Acceptance is the union; the order carries no preference.
var Symbologies = []gozxing.BarcodeFormat{
	gozxing.BarcodeFormat_EAN_13,
	gozxing.BarcodeFormat_EAN_8,
	gozxing.BarcodeFormat_UPC_A,
	gozxing.BarcodeFormat_UPC_E,
	gozxing.BarcodeFormat_CODE_128,
	gozxing.BarcodeFormat_CODE_39,
	gozxing.BarcodeFormat_CODE_93,
	gozxing.BarcodeFormat_ITF,
	gozxing.BarcodeFormat_CODABAR,
}

var formatNames = map[string]gozxing.BarcodeFormat{
	"ean13":   gozxing.BarcodeFormat_EAN_13,
	"ean8":    gozxing.BarcodeFormat_EAN_8,
	"upca":    gozxing.BarcodeFormat_UPC_A,
	"upce":    gozxing.BarcodeFormat_UPC_E,
	"code128": gozxing.BarcodeFormat_CODE_128,
	"code39":  gozxing.BarcodeFormat_CODE_39,
	"code93":  gozxing.BarcodeFormat_CODE_93,
	"itf":     gozxing.BarcodeFormat_ITF,
	"codabar": gozxing.BarcodeFormat_CODABAR,
}

// ParseFormat resolves a user supplied symbology name such as "EAN-13" or
// "code128".
func ParseFormat(name string) (gozxing.BarcodeFormat, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(name))
	if f, ok := formatNames[key]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unsupported symbology %q", name)
}

// Accepts reports whether format is part of the given set.
func Accepts(set []gozxing.BarcodeFormat, format gozxing.BarcodeFormat) bool {
	for _, f := range set {
		if f == format {
			return true
		}
	}
	return false
}
