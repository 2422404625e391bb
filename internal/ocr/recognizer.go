// Package ocr turns recognition requests into engine calls: it validates
// the request, acquires the shared engine for the requested languages, and
// forwards progress to the caller.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Lllllllleong/lingualens/internal/engine"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidRequest is returned without touching the engine when a
	// request names no languages or carries no image.
	ErrInvalidRequest = errors.New("invalid recognition request")
	// ErrEngineFailure wraps any error reported by the engine. The engine
	// stays usable for later requests.
	ErrEngineFailure = errors.New("recognition failed")
)

// maxAttempts bounds how often a request re-acquires an engine that was
// terminated or reloaded between acquisition and recognition.
const maxAttempts = 3

// Engine is the part of engine.Manager the Recognizer needs.
type Engine interface {
	Acquire(ctx context.Context, langs []string) (*engine.Handle, error)
}

// ProgressFunc receives recognition progress as a percentage.
type ProgressFunc func(percent int)

// Result is the outcome of a successful recognition. NoTextFound is set when
// the engine returned only whitespace; Text is then empty.
type Result struct {
	Text        string
	NoTextFound bool
}

// Recognizer runs recognitions one at a time. Requests that arrive while one
// is running wait in FIFO order.
type Recognizer struct {
	engine Engine
	queue  *semaphore.Weighted
}

// NewRecognizer returns a Recognizer driving e.
func NewRecognizer(e Engine) *Recognizer {
	return &Recognizer{engine: e, queue: semaphore.NewWeighted(1)}
}

// Recognize returns the text in image, recognized in languages. onProgress,
// when non-nil, receives strictly increasing percentages in [0,100], in
// order, derived from the engine's own progress events.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, languages []string, onProgress ProgressFunc) (Result, error) {
	langs := cleanLanguages(languages)
	if len(langs) == 0 {
		return Result{}, fmt.Errorf("%w: no languages selected", ErrInvalidRequest)
	}
	if len(image) == 0 {
		return Result{}, fmt.Errorf("%w: no image", ErrInvalidRequest)
	}

	if err := r.queue.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer r.queue.Release(1)

	fwd := &progressForwarder{fn: onProgress, last: -1}
	var (
		text string
		err  error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var h *engine.Handle
		h, err = r.engine.Acquire(ctx, langs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			return Result{}, fmt.Errorf("%w: %w", ErrEngineFailure, err)
		}
		text, err = h.Recognize(ctx, image, fwd.report)
		if !errors.Is(err, engine.ErrTerminated) && !errors.Is(err, engine.ErrLanguagesChanged) {
			break
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return Result{NoTextFound: true}, nil
	}
	return Result{Text: text}, nil
}

// progressForwarder converts engine events into deduplicated, monotonically
// increasing percentages.
type progressForwarder struct {
	fn   ProgressFunc
	last int
}

func (p *progressForwarder) report(ev engine.Progress) {
	if p.fn == nil || ev.Status != engine.StatusRecognizing {
		return
	}
	pct := int(math.Round(ev.Value * 100))
	pct = max(0, min(100, pct))
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}

func cleanLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
