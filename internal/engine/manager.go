package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoLanguages is returned by Acquire for an empty language set.
	ErrNoLanguages = errors.New("no recognition languages requested")
	// ErrTerminated is returned by a Handle whose engine has been terminated.
	ErrTerminated = errors.New("engine terminated")
	// ErrLanguagesChanged is returned by a Handle whose language set was
	// replaced by a later acquisition.
	ErrLanguagesChanged = errors.New("engine languages changed")
)

// State is the lifecycle state of the shared engine. Ready always means a
// language set is loaded. A failed creation or language load leaves the
// manager Uninitialized; an engine that was already created is kept and the
// next Acquire only reloads languages into it.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	LoadingLanguages
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case LoadingLanguages:
		return "loading-languages"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// prepareKey is the single-flight key shared by every initialization and
// language load, so at most one of them is in flight at any time.
const prepareKey = "engine"

// Manager owns the process-wide engine. Concurrent Acquire calls coalesce
// onto one outstanding initialization or language load; callers that need a
// different language set wait for it and then issue their own.
type Manager struct {
	factory Factory
	group   singleflight.Group

	// engineMu serializes every call into the backend.
	engineMu sync.Mutex

	mu      sync.Mutex
	state   State
	backend Backend
	loaded  string
	gen     uint64
}

// NewManager returns a Manager that creates its engine with factory on the
// first acquisition.
func NewManager(factory Factory) *Manager {
	return &Manager{factory: factory}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle is a reference to the engine, valid for the language set it was
// acquired for until the engine is terminated or reloaded.
type Handle struct {
	m     *Manager
	key   string
	langs []string
	gen   uint64
}

// Languages returns the language set the handle was acquired for.
func (h *Handle) Languages() []string { return append([]string(nil), h.langs...) }

// Recognize runs recognition on image. It fails with ErrTerminated or
// ErrLanguagesChanged when the engine no longer matches the handle.
func (h *Handle) Recognize(ctx context.Context, image []byte, progress func(Progress)) (string, error) {
	h.m.engineMu.Lock()
	defer h.m.engineMu.Unlock()

	h.m.mu.Lock()
	backend, gen, loaded, state := h.m.backend, h.m.gen, h.m.loaded, h.m.state
	h.m.mu.Unlock()
	switch {
	case gen != h.gen || backend == nil || state == Terminated:
		return "", ErrTerminated
	case loaded != h.key:
		return "", ErrLanguagesChanged
	}
	return backend.Recognize(ctx, image, progress)
}

// Acquire returns a handle once the engine is Ready with langs loaded. It
// never starts a second initialization or load while one is in flight. The
// shared operation is detached from ctx so one caller giving up does not
// fail the others; ctx only bounds how long this caller waits.
func (m *Manager) Acquire(ctx context.Context, langs []string) (*Handle, error) {
	langs, key := normalizeLanguages(langs)
	if key == "" {
		return nil, ErrNoLanguages
	}
	opCtx := context.WithoutCancel(ctx)
	for {
		if h, ok := m.readyHandle(key, langs); ok {
			return h, nil
		}
		ch := m.group.DoChan(prepareKey, func() (interface{}, error) {
			return key, m.prepare(opCtx, langs, key)
		})
		select {
		case res := <-ch:
			// A flight shared with another caller may have prepared a
			// different language set; only its own failure ends the loop.
			if res.Err != nil {
				if prepared, _ := res.Val.(string); prepared == key {
					return nil, res.Err
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) readyHandle(key string, langs []string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Ready || m.backend == nil || m.loaded != key {
		return nil, false
	}
	return &Handle{m: m, key: key, langs: langs, gen: m.gen}, true
}

// prepare drives the engine to Ready with langs loaded. It runs inside the
// single flight, so only one prepare executes at a time.
func (m *Manager) prepare(ctx context.Context, langs []string, key string) error {
	m.engineMu.Lock()
	defer m.engineMu.Unlock()

	m.mu.Lock()
	if m.state == Ready && m.backend != nil && m.loaded == key {
		m.mu.Unlock()
		return nil
	}
	backend := m.backend
	if backend == nil {
		m.state = Initializing
		m.mu.Unlock()

		slog.Info("Creating recognition engine.")
		b, err := m.factory(ctx)
		m.mu.Lock()
		if err != nil {
			m.state = Uninitialized
			m.mu.Unlock()
			slog.Error("Failed to create recognition engine.", "error", err)
			return fmt.Errorf("create engine: %w", err)
		}
		m.backend, m.loaded = b, ""
		backend = b
	}
	m.state = LoadingLanguages
	m.mu.Unlock()

	slog.Info("Loading recognition languages.", "languages", key)
	err := backend.LoadLanguages(ctx, langs)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state, m.loaded = Uninitialized, ""
		slog.Error("Failed to load recognition languages.", "languages", key, "error", err)
		return fmt.Errorf("load languages %s: %w", key, err)
	}
	m.state, m.loaded = Ready, key
	return nil
}

// Terminate releases the engine and returns the manager to its initial
// state; the next Acquire creates a new engine. It waits for any in-flight
// initialization, load or recognition, and is a no-op without an engine.
func (m *Manager) Terminate() error {
	m.engineMu.Lock()
	defer m.engineMu.Unlock()

	m.mu.Lock()
	backend := m.backend
	m.backend, m.loaded = nil, ""
	m.state = Terminated
	m.gen++
	m.mu.Unlock()

	if backend == nil {
		return nil
	}
	slog.Info("Terminating recognition engine.")
	if err := backend.Terminate(); err != nil {
		return fmt.Errorf("terminate engine: %w", err)
	}
	return nil
}

// normalizeLanguages dedupes and sorts langs; the set's identity is the
// "+"-joined key, the same form Tesseract uses for multi-language models.
func normalizeLanguages(langs []string) ([]string, string) {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		l = strings.TrimSpace(l)
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return out, strings.Join(out, "+")
}
