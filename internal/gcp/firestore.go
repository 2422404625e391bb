package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/lingualens/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// kvEntry is the Firestore shape of one key-value pair.
type kvEntry struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// FirestoreKV stores string values as documents under
// <collection>/<workspace>/kv/<key>.
type FirestoreKV struct {
	client *firestore.Client
	kv     *firestore.CollectionRef
}

// NewFirestoreKV returns a key-value store scoped to one workspace.
func NewFirestoreKV(client *firestore.Client, collection, workspaceID string) *FirestoreKV {
	return &FirestoreKV{
		client: client,
		kv:     client.Collection(collection).Doc(workspaceID).Collection("kv"),
	}
}

// Get returns the value stored under key, or false when none is.
func (f *FirestoreKV) Get(ctx context.Context, key string) (string, bool, error) {
	snap, err := f.kv.Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	var entry kvEntry
	if err := snap.DataTo(&entry); err != nil {
		return "", false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return entry.Value, true, nil
}

// Put overwrites the value stored under key.
func (f *FirestoreKV) Put(ctx context.Context, key, value string) error {
	if _, err := f.kv.Doc(key).Set(ctx, kvEntry{Value: value, UpdatedAt: time.Now()}); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (f *FirestoreKV) Delete(ctx context.Context, key string) error {
	if _, err := f.kv.Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// IngestLedger records which uploaded files have already become documents,
// keyed by content hash.
type IngestLedger struct {
	records *firestore.CollectionRef
}

// NewIngestLedger returns a ledger stored under <collection>/<workspace>/ingests.
func NewIngestLedger(client *firestore.Client, collection, workspaceID string) *IngestLedger {
	return &IngestLedger{records: client.Collection(collection).Doc(workspaceID).Collection("ingests")}
}

// Lookup returns the document created for fileHash, if any.
func (l *IngestLedger) Lookup(ctx context.Context, fileHash string) (string, bool, error) {
	docs, err := l.records.Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return "", false, nil
	}
	var rec models.IngestRecord
	if err := docs[0].DataTo(&rec); err != nil {
		return "", false, fmt.Errorf("failed to decode ingest record: %w", err)
	}
	return rec.DocumentID, true, nil
}

// Record stores rec.
func (l *IngestLedger) Record(ctx context.Context, rec models.IngestRecord) error {
	if _, _, err := l.records.Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to record ingest: %w", err)
	}
	return nil
}
