package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Lllllllleong/lingualens/internal/models"
	"github.com/Lllllllleong/lingualens/internal/session"
)

func newStore(t *testing.T) *session.Store {
	t.Helper()
	n := 0
	return session.Open(context.Background(), session.NewMemoryKV(), session.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("doc-%d", n)
	}))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// documentWithImage creates a document holding a small PNG.
func documentWithImage(t *testing.T, store *session.Store) models.Document {
	t.Helper()
	ctx := context.Background()
	d := store.CreateDocument(ctx)
	d, err := store.SetImage(ctx, d.ID, models.Image{Data: pngBytes(t), Name: "scan.png", MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	return d
}
