//go:build ocr

package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is a Backend wrapping one gosseract client. It requires
// Tesseract and the trained data for every requested language to be
// installed. On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr tesseract-ocr-amh tesseract-ocr-tir
type Tesseract struct {
	client         *gosseract.Client
	tessdataPrefix string
}

// NewTesseractFactory returns a Factory creating Tesseract backends. A
// non-empty tessdataPrefix overrides where trained data is looked up.
func NewTesseractFactory(tessdataPrefix string) Factory {
	return func(ctx context.Context) (Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := gosseract.NewClient()
		if tessdataPrefix != "" {
			c.TessdataPrefix = tessdataPrefix
		}
		return &Tesseract{client: c, tessdataPrefix: tessdataPrefix}, nil
	}
}

// LoadLanguages checks that trained data exists for every language before
// handing the set to the client. The check only covers the default tessdata
// location; with a custom prefix Tesseract reports missing data itself.
func (t *Tesseract) LoadLanguages(ctx context.Context, langs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.tessdataPrefix == "" {
		if err := checkTrainedData(langs); err != nil {
			return err
		}
	}
	if err := t.client.SetLanguage(langs...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}
	return nil
}

func checkTrainedData(langs []string) error {
	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("list trained data: %w", err)
	}
	for _, l := range langs {
		if !slices.Contains(available, l) {
			return fmt.Errorf("no trained data for language %q", l)
		}
	}
	return nil
}

// Recognize reports progress at the start and end of recognition only;
// the gosseract API exposes no finer-grained progress.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, progress func(Progress)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	report := func(v float64) {
		if progress != nil {
			progress(Progress{Status: StatusRecognizing, Value: v})
		}
	}
	if err := t.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	report(0)
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	report(1)
	return text, nil
}

// Terminate closes the gosseract client.
func (t *Tesseract) Terminate() error {
	return t.client.Close()
}
