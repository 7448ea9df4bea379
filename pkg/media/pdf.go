package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfPointsPerMM = 2.8346

var disableConfigDir sync.Once

// WritePDF embeds an image into a new single page PDF and writes it to w.
func WritePDF(img image.Image, w io.Writer) error {
	// Encode the image to JPEG format in memory.
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return fmt.Errorf("jpeg encoding failed: %w", err)
	}

	// The page is sized to the image so no scaling happens on print.
	widthMM := float64(img.Bounds().Dx()) / pdfPointsPerMM
	heightMM := float64(img.Bounds().Dy()) / pdfPointsPerMM
	pageSize := gofpdf.SizeType{Wd: widthMM, Ht: heightMM}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "mm",
		Size:    pageSize,
	})
	pdf.AddPageFormat("P", pageSize)

	options := gofpdf.ImageOptions{ImageType: "JPEG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("label.jpg", options, buf)
	pdf.ImageOptions("label.jpg", 0, 0, widthMM, heightMM, false, options, 0, "")

	return pdf.Output(w)
}

// ExtractImages returns every decodable image embedded in a PDF,
// grouped by page. Images in encodings the standard decoders cannot read are skipped.
func ExtractImages(rs io.ReadSeeker) ([]image.Image, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	pages, err := api.ExtractImagesRaw(rs, nil, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("could not extract images from PDF: %w", err)
	}

	var out []image.Image
	for _, raw := range inPageOrder(pages) {
		img, _, err := image.Decode(raw)
		if err != nil {
			continue
		}
		out = append(out, img)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no decodable images found in PDF")
	}
	return out, nil
}

// inPageOrder flattens extracted images page by page, ordered by object
// number within a page.
func inPageOrder(pages []map[int]model.Image) []model.Image {
	var out []model.Image
	for _, imgs := range pages {
		for _, objNr := range slices.Sorted(maps.Keys(imgs)) {
			out = append(out, imgs[objNr])
		}
	}
	return out
}
