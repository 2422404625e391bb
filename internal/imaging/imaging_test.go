package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

func testImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.White)
		}
	}
	for x := 5; x < 35; x++ {
		img.Set(x, 10, color.Black)
	}
	return img
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDataURIRoundTrip(t *testing.T) {
	data := encodePNG(t)
	uri := DataURI(data, MIMETypePNG)
	if !bytes.HasPrefix([]byte(uri), []byte("data:image/png;base64,")) {
		t.Fatalf("DataURI() = %.40q", uri)
	}
	got, mt, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("ParseDataURI() error = %v", err)
	}
	if mt != MIMETypePNG {
		t.Errorf("mime type = %q, want %q", mt, MIMETypePNG)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("payload changed in round trip")
	}
}

func TestDataURIDetectsMissingMIMEType(t *testing.T) {
	uri := DataURI(encodePNG(t), "")
	if _, mt, err := ParseDataURI(uri); err != nil || mt != MIMETypePNG {
		t.Fatalf("ParseDataURI() = %q, %v", mt, err)
	}
}

func TestParseDataURIInvalid(t *testing.T) {
	_, _, err := ParseDataURI("not a data uri")
	if !errors.Is(err, ErrInvalidDataURI) {
		t.Fatalf("error = %v, want ErrInvalidDataURI", err)
	}
}

func TestNormalizePassesPNGThrough(t *testing.T) {
	data := encodePNG(t)
	out, mt, err := Normalize(data, "")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if mt != MIMETypePNG || !bytes.Equal(out, data) {
		t.Fatalf("png was rewritten (mime %q)", mt)
	}
}

func TestNormalizeConvertsGIF(t *testing.T) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	out, mt, err := Normalize(buf.Bytes(), "image/gif")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if mt != MIMETypePNG {
		t.Fatalf("mime type = %q, want png", mt)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(out)); err != nil || format != "png" {
		t.Fatalf("output format = %q, %v", format, err)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":      nil,
		"garbage":    []byte("definitely not an image"),
		"broken pdf": []byte("%PDF-1.7\nthis is not a real pdf body"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Normalize(data, ""); !errors.Is(err, ErrUnsupportedImage) {
				t.Fatalf("error = %v, want ErrUnsupportedImage", err)
			}
		})
	}
}
