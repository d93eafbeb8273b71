package app

import (
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// inspectPDF reports whether path holds a readable PDF with at least one page.
func inspectPDF(path string) (err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	if reader.NumPage() < 1 {
		return errors.New("pdf has no pages")
	}
	return nil
}
