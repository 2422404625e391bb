// Package engine owns the single shared recognition engine: it creates the
// engine lazily, loads recognition languages into it, and tears it down.
package engine

import "context"

// StatusRecognizing tags progress events emitted while text is recognized.
// Engines may emit other tags (loading, initializing) which carry no
// recognition progress.
const StatusRecognizing = "recognizing text"

// Progress is one event from the engine's progress channel. Value is a
// fraction in [0,1].
type Progress struct {
	Status string
	Value  float64
}

// Backend is an engine instance. Calls are never overlapped by the Manager.
type Backend interface {
	// LoadLanguages makes langs the active recognition languages and returns
	// once the engine confirms they are usable.
	LoadLanguages(ctx context.Context, langs []string) error
	// Recognize returns the text in image. progress may be nil.
	Recognize(ctx context.Context, image []byte, progress func(Progress)) (string, error)
	// Terminate releases the engine.
	Terminate() error
}

// Factory creates a Backend. It is the expensive step the Manager performs
// at most once per engine lifetime.
type Factory func(ctx context.Context) (Backend, error)
