package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/Lllllllleong/lingualens/internal/export"
	"github.com/Lllllllleong/lingualens/internal/ocr"
	"github.com/Lllllllleong/lingualens/internal/session"
	"golang.org/x/sync/errgroup"
)

// ErrExportDisabled is returned by Export when no export bucket is configured.
var ErrExportDisabled = errors.New("export bucket not configured")

// BlobSink stores immutable export objects.
type BlobSink interface {
	SaveAtomically(ctx context.Context, object, contentType string, content []byte) error
	URI(object string) string
}

// Exporter renders document text to files and uploads them.
type Exporter struct {
	store *session.Store
	sink  BlobSink
}

// NewExporter returns an exporter. sink may be nil, in which case only Render
// is available.
func NewExporter(store *session.Store, sink BlobSink) *Exporter {
	return &Exporter{store: store, sink: sink}
}

// Render encodes the current text of a document in one format.
func (e *Exporter) Render(id string, format string) ([]byte, export.Format, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ocr.ErrInvalidRequest, err)
	}
	d, err := e.store.Get(id)
	if err != nil {
		return nil, "", err
	}
	data, err := export.Render(f, d.CurrentText())
	if err != nil {
		return nil, "", err
	}
	return data, f, nil
}

// Export uploads the current text of a document in each format to
// <id>/<textHash>/<filename> and returns the object URIs in format order.
// No formats means every format.
func (e *Exporter) Export(ctx context.Context, id string, formats ...string) ([]string, error) {
	if e.sink == nil {
		return nil, ErrExportDisabled
	}
	parsed, err := parseFormats(formats)
	if err != nil {
		return nil, err
	}
	d, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	text := d.CurrentText()
	sum := sha256.Sum256([]byte(text))
	prefix := path.Join(id, hex.EncodeToString(sum[:])[:16])
	logCtx := slog.With("documentId", id, "prefix", prefix)

	uris := make([]string, len(parsed))
	eg, gctx := errgroup.WithContext(ctx)
	for i, f := range parsed {
		eg.Go(func() error {
			data, err := export.Render(f, text)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			object := path.Join(prefix, f.Filename())
			if err := e.sink.SaveAtomically(gctx, object, f.ContentType(), data); err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			uris[i] = e.sink.URI(object)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("Export failed.", "error", err)
		return nil, fmt.Errorf("failed to export document %s: %w", id, err)
	}
	logCtx.Info("Export complete.", "objects", uris)
	return uris, nil
}

func parseFormats(formats []string) ([]export.Format, error) {
	if len(formats) == 0 {
		return []export.Format{export.FormatText, export.FormatDocx}, nil
	}
	out := make([]export.Format, 0, len(formats))
	seen := map[export.Format]bool{}
	for _, s := range formats {
		f, err := export.ParseFormat(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ocr.ErrInvalidRequest, err)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}
