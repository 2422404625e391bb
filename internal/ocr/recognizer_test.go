package ocr

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/lingualens/internal/engine"
)

type scriptedBackend struct {
	events   []engine.Progress
	text     string
	err      error
	inFlight *atomic.Int32
	overlap  *atomic.Bool
	calls    *atomic.Int32
}

func (b *scriptedBackend) LoadLanguages(context.Context, []string) error { return nil }

func (b *scriptedBackend) Recognize(_ context.Context, _ []byte, progress func(engine.Progress)) (string, error) {
	if b.inFlight.Add(1) > 1 {
		b.overlap.Store(true)
	}
	defer b.inFlight.Add(-1)
	b.calls.Add(1)
	for _, ev := range b.events {
		if progress != nil {
			progress(ev)
		}
	}
	time.Sleep(time.Millisecond)
	return b.text, b.err
}

func (b *scriptedBackend) Terminate() error { return nil }

type harness struct {
	backend *scriptedBackend
	creates atomic.Int32
	manager *engine.Manager
}

func newHarness(text string, events ...engine.Progress) *harness {
	h := &harness{backend: &scriptedBackend{
		text:     text,
		events:   events,
		inFlight: &atomic.Int32{},
		overlap:  &atomic.Bool{},
		calls:    &atomic.Int32{},
	}}
	h.manager = engine.NewManager(func(context.Context) (engine.Backend, error) {
		h.creates.Add(1)
		return h.backend, nil
	})
	return h
}

func TestRecognizeEmptyLanguages(t *testing.T) {
	h := newHarness("text")
	r := NewRecognizer(h.manager)
	for _, langs := range [][]string{nil, {}, {"  "}} {
		_, err := r.Recognize(context.Background(), []byte("img"), langs, nil)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("Recognize(%v) error = %v, want ErrInvalidRequest", langs, err)
		}
	}
	if h.creates.Load() != 0 || h.backend.calls.Load() != 0 {
		t.Fatalf("engine touched by an invalid request")
	}
	if h.manager.State() != engine.Uninitialized {
		t.Fatalf("State() = %v", h.manager.State())
	}
}

func TestRecognizeEmptyImage(t *testing.T) {
	h := newHarness("text")
	r := NewRecognizer(h.manager)
	if _, err := r.Recognize(context.Background(), nil, []string{"eng"}, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestRecognizeProgress(t *testing.T) {
	h := newHarness("Selam",
		engine.Progress{Status: "loading language traineddata", Value: 0.5},
		engine.Progress{Status: engine.StatusRecognizing, Value: 0},
		engine.Progress{Status: engine.StatusRecognizing, Value: 0.1},
		engine.Progress{Status: engine.StatusRecognizing, Value: 0.1},
		engine.Progress{Status: engine.StatusRecognizing, Value: 0.05},
		engine.Progress{Status: engine.StatusRecognizing, Value: 0.504},
		engine.Progress{Status: engine.StatusRecognizing, Value: 1.2},
		engine.Progress{Status: engine.StatusRecognizing, Value: 1},
	)
	r := NewRecognizer(h.manager)

	var got []int
	res, err := r.Recognize(context.Background(), []byte("img"), []string{"amh"}, func(p int) { got = append(got, p) })
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Text != "Selam" || res.NoTextFound {
		t.Fatalf("Recognize() = %+v", res)
	}
	if want := []int{0, 10, 50, 100}; !reflect.DeepEqual(got, want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
}

func TestRecognizeNoTextFound(t *testing.T) {
	h := newHarness(" \n\t ")
	r := NewRecognizer(h.manager)
	res, err := r.Recognize(context.Background(), []byte("img"), []string{"eng"}, nil)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !res.NoTextFound || res.Text != "" {
		t.Fatalf("Recognize() = %+v, want NoTextFound", res)
	}
}

func TestRecognizeNormalizesText(t *testing.T) {
	h := newHarness("cafe\u0301")
	r := NewRecognizer(h.manager)
	res, _ := r.Recognize(context.Background(), []byte("img"), []string{"eng"}, nil)
	if res.Text != "caf\u00e9" {
		t.Fatalf("Text = %q, want NFC form", res.Text)
	}
}

func TestRecognizeEngineFailureKeepsEngine(t *testing.T) {
	h := newHarness("")
	h.backend.err = errors.New("tesseract exploded")
	r := NewRecognizer(h.manager)

	_, err := r.Recognize(context.Background(), []byte("img"), []string{"eng"}, nil)
	if !errors.Is(err, ErrEngineFailure) {
		t.Fatalf("error = %v, want ErrEngineFailure", err)
	}

	h.backend.err = nil
	h.backend.text = "recovered"
	res, err := r.Recognize(context.Background(), []byte("img"), []string{"eng"}, nil)
	if err != nil || res.Text != "recovered" {
		t.Fatalf("Recognize() after failure = %+v, %v", res, err)
	}
	if n := h.creates.Load(); n != 1 {
		t.Fatalf("engine recreated after a recognition failure (%d creates)", n)
	}
}

func TestRecognizeCreateFailure(t *testing.T) {
	m := engine.NewManager(func(context.Context) (engine.Backend, error) {
		return nil, errors.New("no tesseract")
	})
	r := NewRecognizer(m)
	if _, err := r.Recognize(context.Background(), []byte("img"), []string{"eng"}, nil); !errors.Is(err, ErrEngineFailure) {
		t.Fatalf("error = %v, want ErrEngineFailure", err)
	}
}

func TestConcurrentRecognitionsDoNotOverlap(t *testing.T) {
	h := newHarness("text", engine.Progress{Status: engine.StatusRecognizing, Value: 1})
	r := NewRecognizer(h.manager)

	langSets := [][]string{{"eng"}, {"amh"}, {"eng", "tir"}, {"eng"}, {"orm"}}
	var wg sync.WaitGroup
	for _, langs := range langSets {
		wg.Add(1)
		go func(langs []string) {
			defer wg.Done()
			if _, err := r.Recognize(context.Background(), []byte("img"), langs, nil); err != nil {
				t.Errorf("Recognize(%v) error = %v", langs, err)
			}
		}(langs)
	}
	wg.Wait()

	if h.backend.overlap.Load() {
		t.Fatalf("recognitions overlapped")
	}
	if n := h.backend.calls.Load(); n != int32(len(langSets)) {
		t.Fatalf("backend recognized %d times, want %d", n, len(langSets))
	}
	if n := h.creates.Load(); n != 1 {
		t.Fatalf("engine created %d times, want 1", n)
	}
}

func TestRecognizeWaitCancelled(t *testing.T) {
	h := newHarness("text")
	r := NewRecognizer(h.manager)
	// Occupy the queue.
	if err := r.queue.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("queue acquire: %v", err)
	}
	defer r.queue.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Recognize(ctx, []byte("img"), []string{"eng"}, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
}
