package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/lingualens/internal/imaging"
	"github.com/Lllllllleong/lingualens/internal/language"
	"github.com/Lllllllleong/lingualens/internal/models"
	"github.com/Lllllllleong/lingualens/internal/ocr"
	"github.com/Lllllllleong/lingualens/internal/session"
)

// NoTextAdvisory is shown when recognition succeeds without finding text.
const NoTextAdvisory = "no text found"

// OCRFailedReason is recorded on a document whose recognition failed.
const OCRFailedReason = "ocr failed"

// TextRecognizer runs one recognition request.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte, languages []string, onProgress ocr.ProgressFunc) (ocr.Result, error)
}

// EngineTerminator releases the shared recognition engine.
type EngineTerminator interface {
	Terminate() error
}

// ExtractResult is the outcome of ExtractText.
type ExtractResult struct {
	Document    models.Document
	NoTextFound bool
	Advisory    string
}

// Workspace applies user actions to the session store and runs recognition
// for the documents in it.
type Workspace struct {
	store      *session.Store
	recognizer TextRecognizer
	engine     EngineTerminator
}

// NewWorkspace wires a workspace over its store and recognition pipeline.
func NewWorkspace(store *session.Store, recognizer TextRecognizer, engine EngineTerminator) *Workspace {
	return &Workspace{store: store, recognizer: recognizer, engine: engine}
}

// Store exposes the underlying session store.
func (w *Workspace) Store() *session.Store { return w.store }

// Documents returns every document and the active id.
func (w *Workspace) Documents() ([]models.Document, string) {
	return w.store.List(), w.store.ActiveID()
}

// Active returns the active document, creating one when the workspace is empty.
func (w *Workspace) Active(ctx context.Context) models.Document {
	return w.store.EnsureDocument(ctx)
}

// UpdateDocument applies the name and language edits of req. Languages must
// all be offered recognition languages.
func (w *Workspace) UpdateDocument(ctx context.Context, id string, req models.UpdateDocumentRequest) (models.Document, error) {
	u := session.Update{Name: req.Name}
	if req.SelectedLanguages != nil {
		if bad := language.Unsupported(*req.SelectedLanguages); len(bad) > 0 {
			return models.Document{}, fmt.Errorf("%w: unsupported languages %q", ocr.ErrInvalidRequest, bad)
		}
		u.SelectedLanguages = append([]string{}, (*req.SelectedLanguages)...)
	}
	return w.store.UpdateDocument(ctx, id, u)
}

// SetImage decodes a base64 data URI, normalizes it to a recognizable image
// and stores it on the document.
func (w *Workspace) SetImage(ctx context.Context, id, dataURI, name string) (models.Document, error) {
	logCtx := slog.With("documentId", id, "imageName", name)
	data, mimeType, err := imaging.ParseDataURI(dataURI)
	if err != nil {
		return models.Document{}, err
	}
	data, mimeType, err = imaging.Normalize(data, mimeType)
	if err != nil {
		logCtx.Warn("Rejected uploaded image.", "error", err)
		return models.Document{}, err
	}
	d, err := w.store.SetImage(ctx, id, models.Image{Data: data, Name: name, MIMEType: mimeType})
	if err != nil {
		return models.Document{}, err
	}
	logCtx.Info("Image stored.", "mimeType", mimeType, "bytes", len(data))
	return d, nil
}

// ExtractText recognizes the document's image with its selected languages and
// commits the result as a new text snapshot. An empty result leaves the
// history untouched and is reported through NoTextFound. While it runs the
// document's image and languages cannot change, so the committed text always
// belongs to the current image.
func (w *Workspace) ExtractText(ctx context.Context, id string, onProgress ocr.ProgressFunc) (ExtractResult, error) {
	d, err := w.store.StartRecognition(ctx, id, func(d models.Document) error {
		if !d.HasImage() {
			return fmt.Errorf("%w: document has no image", ocr.ErrInvalidRequest)
		}
		if len(d.SelectedLanguages) == 0 {
			return fmt.Errorf("%w: document has no languages selected", ocr.ErrInvalidRequest)
		}
		if bad := language.Unsupported(d.SelectedLanguages); len(bad) > 0 {
			return fmt.Errorf("%w: unsupported languages %q", ocr.ErrInvalidRequest, bad)
		}
		return nil
	})
	if err != nil {
		return ExtractResult{}, err
	}
	logCtx := slog.With("documentId", id, "languages", d.SelectedLanguages)
	logCtx.Info("Starting text extraction.")

	res, err := w.recognizer.Recognize(ctx, d.Image.Data, d.SelectedLanguages, onProgress)
	// Status writes must land even when the caller has gone away.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		logCtx.Error("Text extraction failed.", "error", err)
		if _, serr := w.store.SetStatus(bg, id, models.Failed(OCRFailedReason)); serr != nil && !errors.Is(serr, session.ErrDocumentNotFound) {
			logCtx.Error("Failed to record extraction failure.", "error", serr)
		}
		return ExtractResult{}, err
	}

	if res.NoTextFound {
		d, err := w.store.SetStatus(bg, id, models.Idle())
		if err != nil {
			return ExtractResult{}, err
		}
		logCtx.Info("Extraction found no text.")
		return ExtractResult{Document: d, NoTextFound: true, Advisory: NoTextAdvisory}, nil
	}

	if _, err := w.store.CommitText(bg, id, res.Text); err != nil {
		return ExtractResult{}, err
	}
	d, err = w.store.SetStatus(bg, id, models.Idle())
	if err != nil {
		return ExtractResult{}, err
	}
	logCtx.Info("Text extraction complete.", "characters", len([]rune(res.Text)))
	return ExtractResult{Document: d}, nil
}

// TerminateEngine releases the recognition engine. The next extraction
// starts a fresh one.
func (w *Workspace) TerminateEngine() error {
	if err := w.engine.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate engine: %w", err)
	}
	slog.Info("Recognition engine terminated.")
	return nil
}
