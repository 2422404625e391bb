//go:build !ocr

package engine

import (
	"context"
	"errors"
)

// ErrOCRNotEnabled is returned when the Tesseract backend was not compiled
// in. Rebuild with -tags ocr to enable it; this requires Tesseract to be
// installed.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// NewTesseractFactory returns a Factory that always fails with
// ErrOCRNotEnabled.
func NewTesseractFactory(string) Factory {
	return func(context.Context) (Backend, error) {
		return nil, ErrOCRNotEnabled
	}
}
