// Command labelgen renders a barcode label as PNG or PDF, for printing or
// for feeding the Disk hardware of the scanner.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"danfescan/pkg/decoder"
	"danfescan/pkg/log"
	"danfescan/pkg/media"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("labelgen: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("labelgen", flag.ContinueOnError)
	format := fs.String("format", "EAN_13", "Symbology (EAN_13, EAN_8, UPC_A, UPC_E, CODE_128, CODE_39, CODE_93, ITF, CODABAR).")
	value := fs.String("value", "", "Value to encode.")
	out := fs.String("out", "label.png", "Output file, .png or .pdf.")
	width := fs.Int("width", media.LabelWidth, "Label width in pixels.")
	height := fs.Int("height", media.LabelHeight, "Label height in pixels.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *value == "" {
		return fmt.Errorf("-value is required")
	}

	f, err := decoder.ParseFormat(*format)
	if err != nil {
		return err
	}
	img, err := media.Render(*value, f, *width, *height)
	if err != nil {
		return err
	}

	write := media.WritePNG
	switch ext := strings.ToLower(filepath.Ext(*out)); ext {
	case ".png":
	case ".pdf":
		write = media.WritePDF
	default:
		return fmt.Errorf("unsupported output extension %q", ext)
	}

	file, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", *out, err)
	}
	if err := write(img, file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	log.Info("Wrote %s label for %q to %s", f, *value, *out)
	return nil
}
