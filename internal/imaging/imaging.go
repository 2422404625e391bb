// Package imaging converts uploaded images into payloads the recognition
// engine can read, and encodes them as data URIs for persistence.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/vincent-petithory/dataurl"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MIMETypePDF  = "application/pdf"
	MIMETypePNG  = "image/png"
	MIMETypeJPEG = "image/jpeg"
	MIMETypeTIFF = "image/tiff"
)

var (
	// ErrUnsupportedImage is returned for payloads that are neither a
	// decodable image nor a PDF containing one.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrInvalidDataURI is returned when a data URI cannot be decoded.
	ErrInvalidDataURI = errors.New("invalid data URI")
)

// formats Tesseract reads without conversion.
var passthrough = map[string]string{
	"png":  MIMETypePNG,
	"jpeg": MIMETypeJPEG,
	"tiff": MIMETypeTIFF,
}

// ParseDataURI decodes a "data:<mime>;base64,<payload>" URI.
func ParseDataURI(uri string) ([]byte, string, error) {
	du, err := dataurl.DecodeString(uri)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return du.Data, du.ContentType(), nil
}

// DataURI encodes data as a base64 data URI of the given MIME type.
func DataURI(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = DetectMIMEType(data)
	}
	return dataurl.New(data, mimeType).String()
}

// DetectMIMEType sniffs the content type of data, ignoring parameters.
func DetectMIMEType(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// Normalize returns an encoded image Tesseract can read. PNG, JPEG and TIFF
// pass through untouched, other raster formats are re-encoded as PNG and a
// PDF is reduced to the first image of its first page.
func Normalize(data []byte, mimeType string) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	if strings.HasPrefix(mimeType, MIMETypePDF) || bytes.HasPrefix(data, []byte("%PDF-")) {
		pageImage, _, err := FirstPageImage(data)
		if err != nil {
			return nil, "", err
		}
		data = pageImage
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if mt, ok := passthrough[format]; ok {
		return data, mt, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", ErrUnsupportedImage, format, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), MIMETypePNG, nil
}

// FirstPageImage extracts the first embedded image on page 1 of a PDF, which
// for scanner output is the scanned page itself. It returns the image bytes
// and the pdfcpu file type ("png", "jpg", "tif", ...).
func FirstPageImage(pdf []byte) ([]byte, string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var (
		data     []byte
		fileType string
		readErr  error
	)
	digest := func(img model.Image, _ bool, _ int) error {
		if data != nil || readErr != nil {
			return nil
		}
		b, err := io.ReadAll(img)
		if err != nil {
			readErr = err
			return nil
		}
		data, fileType = b, img.FileType
		return nil
	}
	if err := api.ExtractImages(bytes.NewReader(pdf), []string{"1"}, digest, conf); err != nil {
		return nil, "", fmt.Errorf("%w: extract pdf images: %v", ErrUnsupportedImage, err)
	}
	if readErr != nil {
		return nil, "", fmt.Errorf("read pdf image: %w", readErr)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: pdf has no image on its first page", ErrUnsupportedImage)
	}
	return data, fileType, nil
}
