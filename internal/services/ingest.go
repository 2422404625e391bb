package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/lingualens/internal/imaging"
	"github.com/Lllllllleong/lingualens/internal/models"
	"github.com/Lllllllleong/lingualens/internal/session"
)

// GCSEvent is the payload of a Cloud Storage object-finalized event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// ObjectSource downloads uploaded objects.
type ObjectSource interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error)
}

// IngestLedger remembers which uploads have already become documents.
type IngestLedger interface {
	Lookup(ctx context.Context, fileHash string) (string, bool, error)
	Record(ctx context.Context, rec models.IngestRecord) error
}

// Ingestor turns images uploaded to a bucket into new documents.
type Ingestor struct {
	store  *session.Store
	source ObjectSource
	ledger IngestLedger
	bucket string
	now    func() time.Time
}

// NewIngestor returns an ingestor accepting events for bucket. An empty
// bucket accepts every event.
func NewIngestor(store *session.Store, source ObjectSource, ledger IngestLedger, bucket string) *Ingestor {
	return &Ingestor{store: store, source: source, ledger: ledger, bucket: bucket, now: time.Now}
}

// Process downloads the uploaded object and adds a document holding it. The
// active document only changes when there was none. Uploads whose content was
// already ingested are skipped.
func (f *Ingestor) Process(ctx context.Context, e GCSEvent) (models.IngestResult, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if f.bucket != "" && e.Bucket != f.bucket {
		logCtx.Info("Event for another bucket. Skipping.", "expectedBucket", f.bucket)
		return models.IngestResult{Skipped: true}, nil
	}
	if e.Name == "" || strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Event is not for a file object. Skipping.")
		return models.IngestResult{Skipped: true}, nil
	}
	logCtx.Info("Processing new GCS object.")

	data, contentType, err := f.source.ReadObject(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download uploaded object", "error", err)
		return models.IngestResult{}, err
	}
	if contentType == "" {
		contentType = e.ContentType
	}

	fileHash := calculateHash(data)
	logCtx = logCtx.With("fileHash", fileHash)

	if docID, dup, err := f.ledger.Lookup(ctx, fileHash); err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return models.IngestResult{}, err
	} else if dup {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return models.IngestResult{DocumentID: docID, Duplicate: true}, nil
	}

	image, mimeType, err := imaging.Normalize(data, contentType)
	if err != nil {
		logCtx.Error("Uploaded object is not a usable image", "error", err)
		return models.IngestResult{}, fmt.Errorf("gs://%s/%s: %w", e.Bucket, e.Name, err)
	}

	filename := path.Base(e.Name)
	// Ingest never moves an existing selection.
	d := f.store.AddDocument(ctx, strings.TrimSuffix(filename, path.Ext(filename)),
		models.Image{Data: image, Name: filename, MIMEType: mimeType})
	logCtx = logCtx.With("documentId", d.ID)

	rec := models.IngestRecord{
		FileHash:         fileHash,
		OriginalFilename: e.Name,
		Bucket:           e.Bucket,
		DocumentID:       d.ID,
		CreatedAt:        f.now(),
	}
	if err := f.ledger.Record(ctx, rec); err != nil {
		// The document exists already; a retry would only create a duplicate.
		logCtx.Error("Failed to record ingest. Duplicate detection will miss this file.", "error", err)
	}
	logCtx.Info("Created document from upload.", "mimeType", mimeType)
	return models.IngestResult{DocumentID: d.ID}, nil
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryLedger is an IngestLedger for deployments without Firestore.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]models.IngestRecord
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: map[string]models.IngestRecord{}}
}

func (l *MemoryLedger) Lookup(_ context.Context, fileHash string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[fileHash]
	return rec.DocumentID, ok, nil
}

func (l *MemoryLedger) Record(_ context.Context, rec models.IngestRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.FileHash] = rec
	return nil
}
