package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEngine counts lifecycle calls and records whether any two backend
// calls ever overlapped.
type fakeEngine struct {
	creates    atomic.Int32
	loads      atomic.Int32
	terminates atomic.Int32
	inFlight   atomic.Int32
	overlapped atomic.Bool

	mu         sync.Mutex
	loadedSets [][]string

	// createGate, when set, blocks creation until closed.
	createGate chan struct{}
	created    chan struct{}
	createErr  error
	loadErr    error
}

func (f *fakeEngine) enter() {
	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
}

func (f *fakeEngine) leave() { f.inFlight.Add(-1) }

func (f *fakeEngine) factory(ctx context.Context) (Backend, error) {
	f.enter()
	defer f.leave()
	f.creates.Add(1)
	if f.created != nil {
		f.created <- struct{}{}
	}
	if f.createGate != nil {
		<-f.createGate
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &fakeBackend{f: f}, nil
}

type fakeBackend struct{ f *fakeEngine }

func (b *fakeBackend) LoadLanguages(_ context.Context, langs []string) error {
	b.f.enter()
	defer b.f.leave()
	b.f.loads.Add(1)
	b.f.mu.Lock()
	b.f.loadedSets = append(b.f.loadedSets, append([]string(nil), langs...))
	b.f.mu.Unlock()
	time.Sleep(time.Millisecond)
	return b.f.loadErr
}

func (b *fakeBackend) Recognize(_ context.Context, image []byte, progress func(Progress)) (string, error) {
	b.f.enter()
	defer b.f.leave()
	return string(image), nil
}

func (b *fakeBackend) Terminate() error {
	b.f.terminates.Add(1)
	return nil
}

func TestConcurrentAcquireCoalesces(t *testing.T) {
	f := &fakeEngine{createGate: make(chan struct{}), created: make(chan struct{}, 1)}
	m := NewManager(f.factory)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Acquire(ctx, []string{"eng", "amh"})
		}(i)
	}
	<-f.created
	if got := m.State(); got != Initializing {
		t.Errorf("State() during creation = %v, want initializing", got)
	}
	close(f.createGate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Acquire #%d error = %v", i, err)
		}
	}
	if n := f.creates.Load(); n != 1 {
		t.Errorf("engine created %d times, want 1", n)
	}
	if n := f.loads.Load(); n != 1 {
		t.Errorf("languages loaded %d times, want 1", n)
	}
	if m.State() != Ready {
		t.Errorf("State() = %v, want ready", m.State())
	}
}

func TestAcquireDifferentSetsNeverOverlap(t *testing.T) {
	f := &fakeEngine{}
	m := NewManager(f.factory)
	ctx := context.Background()

	sets := [][]string{{"eng"}, {"amh"}, {"tir", "eng"}, {"eng"}}
	var wg sync.WaitGroup
	for _, langs := range sets {
		wg.Add(1)
		go func(langs []string) {
			defer wg.Done()
			h, err := m.Acquire(ctx, langs)
			if err != nil {
				t.Errorf("Acquire(%v) error = %v", langs, err)
				return
			}
			_, _ = h.Recognize(ctx, []byte("x"), nil)
		}(langs)
	}
	wg.Wait()

	if f.overlapped.Load() {
		t.Fatalf("engine calls overlapped")
	}
	if n := f.creates.Load(); n != 1 {
		t.Fatalf("engine created %d times, want 1", n)
	}
}

func TestAcquireReusesLoadedSet(t *testing.T) {
	f := &fakeEngine{}
	m := NewManager(f.factory)
	ctx := context.Background()

	h1, err := m.Acquire(ctx, []string{"eng", "amh"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := m.Acquire(ctx, []string{"amh", "eng", "amh"}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if n := f.loads.Load(); n != 1 {
		t.Fatalf("same set loaded %d times", n)
	}
	if got := h1.Languages(); !reflect.DeepEqual(got, []string{"amh", "eng"}) {
		t.Fatalf("Languages() = %v", got)
	}
}

func TestAcquireNoLanguages(t *testing.T) {
	f := &fakeEngine{}
	m := NewManager(f.factory)
	if _, err := m.Acquire(context.Background(), []string{" ", ""}); !errors.Is(err, ErrNoLanguages) {
		t.Fatalf("error = %v, want ErrNoLanguages", err)
	}
	if f.creates.Load() != 0 {
		t.Fatalf("engine created for an empty request")
	}
}

func TestHandleLanguagesChanged(t *testing.T) {
	f := &fakeEngine{}
	m := NewManager(f.factory)
	ctx := context.Background()
	h, _ := m.Acquire(ctx, []string{"eng"})
	if _, err := m.Acquire(ctx, []string{"amh"}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := h.Recognize(ctx, []byte("x"), nil); !errors.Is(err, ErrLanguagesChanged) {
		t.Fatalf("error = %v, want ErrLanguagesChanged", err)
	}
}

func TestTerminate(t *testing.T) {
	f := &fakeEngine{}
	m := NewManager(f.factory)
	ctx := context.Background()

	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate() without engine error = %v", err)
	}
	h, err := m.Acquire(ctx, []string{"eng"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := m.Terminate(); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if err := m.Terminate(); err != nil {
		t.Fatalf("second Terminate() error = %v", err)
	}
	if n := f.terminates.Load(); n != 1 {
		t.Fatalf("backend terminated %d times, want 1", n)
	}
	if m.State() != Terminated {
		t.Fatalf("State() = %v, want terminated", m.State())
	}
	if _, err := h.Recognize(ctx, []byte("x"), nil); !errors.Is(err, ErrTerminated) {
		t.Fatalf("stale handle error = %v, want ErrTerminated", err)
	}

	if _, err := m.Acquire(ctx, []string{"eng"}); err != nil {
		t.Fatalf("Acquire() after Terminate error = %v", err)
	}
	if n := f.creates.Load(); n != 2 {
		t.Fatalf("engine created %d times, want 2", n)
	}
}

func TestAcquireFactoryFailure(t *testing.T) {
	f := &fakeEngine{createErr: errors.New("no engine")}
	m := NewManager(f.factory)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, []string{"eng"}); err == nil {
		t.Fatalf("Acquire() succeeded with a failing factory")
	}
	if m.State() != Uninitialized {
		t.Fatalf("State() = %v, want uninitialized", m.State())
	}
	f.createErr = nil
	if _, err := m.Acquire(ctx, []string{"eng"}); err != nil {
		t.Fatalf("retry Acquire() error = %v", err)
	}
}

func TestAcquireLoadFailureKeepsEngine(t *testing.T) {
	f := &fakeEngine{loadErr: errors.New("missing traineddata")}
	m := NewManager(f.factory)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, []string{"xyz"}); err == nil {
		t.Fatalf("Acquire() succeeded with a failing load")
	}
	if got := m.State(); got != Uninitialized {
		t.Fatalf("State() after failed load = %v, want uninitialized", got)
	}
	f.loadErr = nil
	h, err := m.Acquire(ctx, []string{"eng"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if n := f.creates.Load(); n != 1 {
		t.Fatalf("engine recreated after a load failure (%d creates)", n)
	}
	if got := m.State(); got != Ready {
		t.Fatalf("State() after retry = %v, want ready", got)
	}

	// A failed switch to another set leaves nothing loaded.
	f.loadErr = errors.New("missing traineddata")
	if _, err := m.Acquire(ctx, []string{"xyz"}); err == nil {
		t.Fatalf("Acquire() succeeded with a failing load")
	}
	if got := m.State(); got != Uninitialized {
		t.Fatalf("State() after failed switch = %v, want uninitialized", got)
	}
	if _, err := h.Recognize(ctx, []byte("img"), nil); !errors.Is(err, ErrLanguagesChanged) {
		t.Fatalf("Recognize() with stale handle error = %v, want ErrLanguagesChanged", err)
	}
}

func TestAcquireCallerCancellation(t *testing.T) {
	f := &fakeEngine{createGate: make(chan struct{}), created: make(chan struct{}, 1)}
	m := NewManager(f.factory)

	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), []string{"eng"})
		done <- err
	}()
	<-f.created

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Acquire(ctx, []string{"eng"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled Acquire() error = %v", err)
	}

	close(f.createGate)
	if err := <-done; err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if n := f.creates.Load(); n != 1 {
		t.Fatalf("engine created %d times, want 1", n)
	}
}
