package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/lingualens/internal/export"
	"github.com/Lllllllleong/lingualens/internal/ocr"
)

type fakeSink struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	writes  int
}

func newFakeSink() *fakeSink {
	return &fakeSink{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeSink) SaveAtomically(ctx context.Context, object, contentType string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if _, ok := f.objects[object]; ok {
		return nil
	}
	f.objects[object] = content
	f.types[object] = contentType
	return nil
}

func (f *fakeSink) URI(object string) string { return "gs://exports/" + object }

func TestExportUploadsAllFormats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	d := store.CreateDocument(ctx)
	if _, err := store.CommitText(ctx, d.ID, "line one\nline two"); err != nil {
		t.Fatal(err)
	}
	sink := newFakeSink()
	e := NewExporter(store, sink)

	uris, err := e.Export(ctx, d.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(uris) != 2 || !strings.HasSuffix(uris[0], "/extracted_text.txt") || !strings.HasSuffix(uris[1], "/extracted_text.docx") {
		t.Fatalf("uris = %v", uris)
	}
	if !strings.HasPrefix(uris[0], "gs://exports/"+d.ID+"/") {
		t.Errorf("uri %q not under the document prefix", uris[0])
	}
	txtObject := strings.TrimPrefix(uris[0], "gs://exports/")
	if got := string(sink.objects[txtObject]); got != "line one\nline two" {
		t.Errorf("txt content = %q", got)
	}
	if sink.types[strings.TrimPrefix(uris[1], "gs://exports/")] != export.MIMETypeDocx {
		t.Errorf("docx content type = %q", sink.types[strings.TrimPrefix(uris[1], "gs://exports/")])
	}

	again, err := e.Export(ctx, d.ID, "txt")
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if again[0] != uris[0] {
		t.Errorf("unchanged text exported to %q, want %q", again[0], uris[0])
	}

	if _, err := store.CommitText(ctx, d.ID, "edited"); err != nil {
		t.Fatal(err)
	}
	edited, err := e.Export(ctx, d.ID, "txt")
	if err != nil {
		t.Fatalf("third Export: %v", err)
	}
	if edited[0] == uris[0] {
		t.Errorf("edited text reused object %q", edited[0])
	}
}

func TestExportErrors(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	d := store.CreateDocument(ctx)

	if _, err := NewExporter(store, nil).Export(ctx, d.ID); !errors.Is(err, ErrExportDisabled) {
		t.Errorf("err = %v, want ErrExportDisabled", err)
	}
	if _, err := NewExporter(store, newFakeSink()).Export(ctx, d.ID, "pdf"); !errors.Is(err, ocr.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

type failingSink struct{ *fakeSink }

func (f failingSink) SaveAtomically(ctx context.Context, object, contentType string, content []byte) error {
	if strings.HasSuffix(object, ".docx") {
		return fmt.Errorf("bucket unavailable")
	}
	return f.fakeSink.SaveAtomically(ctx, object, contentType, content)
}

func TestExportUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	d := store.CreateDocument(ctx)
	if _, err := NewExporter(store, failingSink{newFakeSink()}).Export(ctx, d.ID); err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("err = %v, want upload failure", err)
	}
}

func TestRenderStreamsFormat(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	d := store.CreateDocument(ctx)
	if _, err := store.CommitText(ctx, d.ID, "hello"); err != nil {
		t.Fatal(err)
	}
	e := NewExporter(store, nil)

	data, f, err := e.Render(d.ID, "txt")
	if err != nil || f != export.FormatText || string(data) != "hello" {
		t.Fatalf("Render txt = %q, %q, %v", data, f, err)
	}
	data, f, err = e.Render(d.ID, "docx")
	if err != nil || f != export.FormatDocx || !strings.HasPrefix(string(data), "PK") {
		t.Fatalf("Render docx = %d bytes, %q, %v", len(data), f, err)
	}
	if _, _, err := e.Render(d.ID, "rtf"); !errors.Is(err, ocr.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}
