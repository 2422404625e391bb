package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not an error.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Bucket writes objects into one GCS bucket.
type Bucket struct {
	name   string
	handle *storage.BucketHandle
}

// NewBucket returns a writer for the named bucket.
func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{name: name, handle: client.Bucket(name)}
}

// SaveAtomically stores content under object unless the object already exists.
func (b *Bucket) SaveAtomically(ctx context.Context, object, contentType string, content []byte) error {
	return SaveToGCSAtomically(ctx, b.handle, object, contentType, content)
}

// URI returns the gs:// address of object.
func (b *Bucket) URI(object string) string {
	return fmt.Sprintf("gs://%s/%s", b.name, object)
}

// ObjectReader downloads objects of bounded size.
type ObjectReader struct {
	client   *storage.Client
	maxBytes int64
}

// NewObjectReader returns a reader refusing objects larger than maxBytes.
func NewObjectReader(client *storage.Client, maxBytes int64) *ObjectReader {
	return &ObjectReader{client: client, maxBytes: maxBytes}
}

// ReadObject returns the content and content type of gs://bucket/object.
func (r *ObjectReader) ReadObject(ctx context.Context, bucket, object string) ([]byte, string, error) {
	reader, err := r.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	if reader.Attrs.Size > r.maxBytes {
		return nil, "", fmt.Errorf("gs://%s/%s is %d bytes, limit is %d", bucket, object, reader.Attrs.Size, r.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(reader, r.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, "", fmt.Errorf("gs://%s/%s exceeds %d bytes", bucket, object, r.maxBytes)
	}
	return data, reader.Attrs.ContentType, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
