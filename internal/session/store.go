// Package session holds the collection of OCR documents, the active-document
// selection, and their durable snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/lingualens/internal/history"
	"github.com/Lllllllleong/lingualens/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDocumentNotFound is returned by mutations naming an unknown document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDocumentBusy is returned when a document's image or languages change,
	// or a second recognition starts, while its recognition is running.
	ErrDocumentBusy = errors.New("document recognition in progress")
)

// Update carries the simple field writes of UpdateDocument. Nil fields are
// left unchanged. Text edits go through CommitText.
type Update struct {
	Name *string
	// Image replaces the source image and resets the text history.
	Image              *models.Image
	SelectedLanguages  []string
	SuggestedLanguages []string
	Status             *models.OcrStatus
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultLanguages sets the language selection of new documents.
func WithDefaultLanguages(langs ...string) Option {
	return func(s *Store) { s.defaultLanguages = uniqueLanguages(langs) }
}

// WithMaxHistory bounds every document's history to n snapshots, dropping
// the oldest. n <= 0 keeps the history unbounded.
func WithMaxHistory(n int) Option {
	return func(s *Store) { s.maxHistory = n }
}

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the document id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Store owns the ordered document collection and the active document id.
// Every mutation writes a snapshot of both to the KeyValueStore; write
// failures are logged and the in-memory state stays authoritative.
type Store struct {
	kv               KeyValueStore
	defaultLanguages []string
	maxHistory       int
	now              func() time.Time
	newID            func() string

	mu       sync.Mutex
	docs     []models.Document
	activeID string
	seq      uint64

	saveMu   sync.Mutex
	savedSeq uint64
}

type snapshot struct {
	seq      uint64
	sessions string
	activeID string
}

// Open builds a Store and restores the persisted snapshot from kv. A missing
// snapshot yields an empty collection, and so does a corrupt one, which is
// discarded in full.
func Open(ctx context.Context, kv KeyValueStore, opts ...Option) *Store {
	s := &Store{
		kv:               kv,
		defaultLanguages: []string{"eng"},
		now:              time.Now,
		newID:            uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.restore(ctx)
	return s
}

func (s *Store) restore(ctx context.Context) {
	var (
		rawSessions, rawActive string
		haveSessions           bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, ok, err := s.kv.Get(gctx, SessionsKey)
		rawSessions, haveSessions = v, ok
		return err
	})
	g.Go(func() error {
		v, _, err := s.kv.Get(gctx, ActiveSessionIDKey)
		rawActive = v
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("Failed to read persisted sessions. Starting empty.", "error", err)
		return
	}
	if !haveSessions {
		return
	}

	docs, err := decodeDocuments(rawSessions)
	if err != nil {
		slog.Warn("Discarding corrupt persisted sessions.", "error", err)
		for _, key := range []string{SessionsKey, ActiveSessionIDKey} {
			if err := s.kv.Delete(ctx, key); err != nil {
				slog.Error("Failed to clear corrupt record.", "key", key, "error", err)
			}
		}
		return
	}
	for i := range docs {
		docs[i].History.Trim(s.maxHistory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
	s.activeID = ""
	if len(docs) > 0 {
		s.activeID = docs[0].ID
		if s.indexLocked(rawActive) >= 0 {
			s.activeID = rawActive
		}
	}
	slog.Info("Restored persisted sessions.", "documentCount", len(docs), "activeId", s.activeID)
}

// CreateDocument appends a fresh document and makes it active.
func (s *Store) CreateDocument(ctx context.Context) models.Document {
	s.mu.Lock()
	d := s.newDocumentLocked()
	s.docs = append(s.docs, d)
	s.activeID = d.ID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return d.Clone()
}

// AddDocument appends a document holding img under name without changing
// the active selection. It becomes active only when none is.
func (s *Store) AddDocument(ctx context.Context, name string, img models.Image) models.Document {
	s.mu.Lock()
	d := s.newDocumentLocked()
	if name = strings.TrimSpace(name); name != "" {
		d.Name = name
	}
	img.Data = append([]byte(nil), img.Data...)
	d.Image = &img
	s.docs = append(s.docs, d)
	if s.indexLocked(s.activeID) < 0 {
		s.activeID = d.ID
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return d.Clone()
}

// EnsureDocument returns the active document, creating one when the
// collection is empty and selecting the first one when none is active.
func (s *Store) EnsureDocument(ctx context.Context) models.Document {
	s.mu.Lock()
	if len(s.docs) == 0 {
		s.mu.Unlock()
		return s.CreateDocument(ctx)
	}
	if i := s.indexLocked(s.activeID); i >= 0 {
		d := s.docs[i].Clone()
		s.mu.Unlock()
		return d
	}
	s.activeID = s.docs[0].ID
	d := s.docs[0].Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return d
}

func (s *Store) newDocumentLocked() models.Document {
	return models.Document{
		ID:                s.newID(),
		Name:              fmt.Sprintf("Session %d", len(s.docs)+1),
		SelectedLanguages: append([]string(nil), s.defaultLanguages...),
		History:           history.New(),
		Status:            models.Idle(),
		CreatedAt:         s.now(),
	}
}

// DeleteDocument removes a document. Deleting the active document activates
// the first remaining one, or none when the collection becomes empty.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, ErrDocumentNotFound)
	}
	s.docs = slices.Delete(s.docs, i, i+1)
	if s.activeID == id {
		s.activeID = ""
		if len(s.docs) > 0 {
			s.activeID = s.docs[0].ID
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return nil
}

// SelectDocument makes id the active document.
func (s *Store) SelectDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, ErrDocumentNotFound)
	}
	s.activeID = id
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return nil
}

// UpdateDocument merges u into the document. A blank name is ignored. A new
// image clears the text, resets the history and returns the status to idle.
// Image and language changes fail with ErrDocumentBusy while recognition runs.
func (s *Store) UpdateDocument(ctx context.Context, id string, u Update) (models.Document, error) {
	return s.mutate(ctx, id, "update", func(d *models.Document) error {
		if d.Status.State == models.OcrRunning && (u.Image != nil || u.SelectedLanguages != nil) {
			return ErrDocumentBusy
		}
		if u.Name != nil {
			if name := strings.TrimSpace(*u.Name); name != "" {
				d.Name = name
			}
		}
		if u.Image != nil {
			img := *u.Image
			img.Data = append([]byte(nil), u.Image.Data...)
			d.Image = &img
			d.History = history.New()
			d.Status = models.Idle()
		}
		if u.SelectedLanguages != nil {
			d.SelectedLanguages = uniqueLanguages(u.SelectedLanguages)
		}
		if u.SuggestedLanguages != nil {
			d.SuggestedLanguages = uniqueLanguages(u.SuggestedLanguages)
		}
		if u.Status != nil {
			d.Status = *u.Status
		}
		return nil
	})
}

// SetImage replaces the source image of a document.
func (s *Store) SetImage(ctx context.Context, id string, img models.Image) (models.Document, error) {
	return s.UpdateDocument(ctx, id, Update{Image: &img})
}

// SetStatus writes the recognition status of a document.
func (s *Store) SetStatus(ctx context.Context, id string, status models.OcrStatus) (models.Document, error) {
	return s.UpdateDocument(ctx, id, Update{Status: &status})
}

// StartRecognition marks the document Running after check accepts it, in one
// step, and returns the document as recognition will see it. A document that
// is already running fails with ErrDocumentBusy.
func (s *Store) StartRecognition(ctx context.Context, id string, check func(models.Document) error) (models.Document, error) {
	return s.mutate(ctx, id, "start recognition", func(d *models.Document) error {
		if d.Status.State == models.OcrRunning {
			return ErrDocumentBusy
		}
		if check != nil {
			if err := check(*d); err != nil {
				return err
			}
		}
		d.Status = models.Running()
		return nil
	})
}

// CommitText records an edit: the redo branch is dropped and text becomes
// the current snapshot.
func (s *Store) CommitText(ctx context.Context, id, text string) (models.Document, error) {
	return s.mutate(ctx, id, "commit text", func(d *models.Document) error {
		d.History.Append(text)
		d.History.Trim(s.maxHistory)
		return nil
	})
}

// Undo steps the document's text back one snapshot. It is a no-op at the
// oldest snapshot.
func (s *Store) Undo(ctx context.Context, id string) (models.Document, error) {
	return s.mutate(ctx, id, "undo", func(d *models.Document) error {
		d.History.Undo()
		return nil
	})
}

// Redo steps the document's text forward one snapshot. It is a no-op at the
// newest snapshot.
func (s *Store) Redo(ctx context.Context, id string) (models.Document, error) {
	return s.mutate(ctx, id, "redo", func(d *models.Document) error {
		d.History.Redo()
		return nil
	})
}

// mutate applies fn to a copy of the document and keeps the copy only when
// fn succeeds.
func (s *Store) mutate(ctx context.Context, id, op string, fn func(*models.Document) error) (models.Document, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Document{}, fmt.Errorf("%s %s: %w", op, id, ErrDocumentNotFound)
	}
	d := s.docs[i].Clone()
	if err := fn(&d); err != nil {
		s.mu.Unlock()
		return models.Document{}, fmt.Errorf("%s %s: %w", op, id, err)
	}
	s.docs[i] = d
	d = d.Clone()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snap)
	return d, nil
}

// Get returns a copy of the document with the given id.
func (s *Store) Get(id string) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Document{}, fmt.Errorf("get %s: %w", id, ErrDocumentNotFound)
	}
	return s.docs[i].Clone(), nil
}

// GetActive returns the active document, if any.
func (s *Store) GetActive() (models.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return models.Document{}, false
	}
	return s.docs[i].Clone(), true
}

// ActiveID returns the id of the active document, or "" when none is.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// List returns copies of all documents in display order.
func (s *Store) List() []models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Clone())
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.docs, func(d models.Document) bool { return d.ID == id })
}

// snapshotLocked encodes the collection while s.mu is held so that the
// sequence number and the content agree.
func (s *Store) snapshotLocked() *snapshot {
	sessions, err := encodeDocuments(s.docs)
	if err != nil {
		slog.Error("Failed to encode sessions snapshot.", "error", err)
		return nil
	}
	s.seq++
	return &snapshot{seq: s.seq, sessions: sessions, activeID: s.activeID}
}

// persist writes snap unless a newer snapshot has already been written.
func (s *Store) persist(ctx context.Context, snap *snapshot) {
	if snap == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if snap.seq <= s.savedSeq {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.kv.Put(gctx, SessionsKey, snap.sessions); err != nil {
			return fmt.Errorf("put %s: %w", SessionsKey, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if snap.activeID == "" {
			err = s.kv.Delete(gctx, ActiveSessionIDKey)
		} else {
			err = s.kv.Put(gctx, ActiveSessionIDKey, snap.activeID)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", ActiveSessionIDKey, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("Failed to persist sessions. Continuing in memory.", "error", err, "seq", snap.seq)
		return
	}
	s.savedSeq = snap.seq
}

// uniqueLanguages drops blanks and duplicates, keeping first-seen order.
func uniqueLanguages(langs []string) []string {
	if langs == nil {
		return nil
	}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		l = strings.TrimSpace(l)
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
