package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/canning1295/RealTimeTranslate/pkg/provider/synth"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/transcribe"
	"github.com/canning1295/RealTimeTranslate/pkg/provider/translate"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pipeline stage. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transcribe map[string]func(ProviderEntry) (transcribe.Client, error)
	translate  map[string]func(ProviderEntry) (translate.Client, error)
	synthesize map[string]func(ProviderEntry) (synth.Client, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		transcribe: make(map[string]func(ProviderEntry) (transcribe.Client, error)),
		translate:  make(map[string]func(ProviderEntry) (translate.Client, error)),
		synthesize: make(map[string]func(ProviderEntry) (synth.Client, error)),
	}
}

// RegisterTranscribe registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterTranscribe(name string, factory func(ProviderEntry) (transcribe.Client, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcribe[name] = factory
}

// RegisterTranslate registers a translation provider factory under name.
func (r *Registry) RegisterTranslate(name string, factory func(ProviderEntry) (translate.Client, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translate[name] = factory
}

// RegisterSynthesize registers a synthesis provider factory under name.
func (r *Registry) RegisterSynthesize(name string, factory func(ProviderEntry) (synth.Client, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesize[name] = factory
}

// CreateTranscribe instantiates a transcription client using the factory
// registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateTranscribe(entry ProviderEntry) (transcribe.Client, error) {
	r.mu.RLock()
	factory, ok := r.transcribe[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcribe/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTranslate instantiates a translation client using the factory
// registered under entry.Name.
func (r *Registry) CreateTranslate(entry ProviderEntry) (translate.Client, error) {
	r.mu.RLock()
	factory, ok := r.translate[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translate/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSynthesize instantiates a synthesis client using the factory
// registered under entry.Name.
func (r *Registry) CreateSynthesize(entry ProviderEntry) (synth.Client, error) {
	r.mu.RLock()
	factory, ok := r.synthesize[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synthesize/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
