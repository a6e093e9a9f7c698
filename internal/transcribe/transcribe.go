// Package transcribe converts audio bytes to text using a selectable
// backend, with a single-level fallback to the default backend.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Provider selects a transcription backend.
type Provider string

const (
	ProviderWhisper Provider = "whisper"
	ProviderGemini  Provider = "gemini"
)

// Backend converts audio bytes to text.
type Backend interface {
	Transcribe(ctx context.Context, data []byte, fileName string) (string, error)
}

// Adapter routes transcription requests to the requested backend. When the
// non-default backend fails, the adapter retries once using the default
// backend before giving up. This is a single fallback, not a retry loop.
type Adapter struct {
	backends        map[Provider]Backend
	defaultProvider Provider
}

func NewAdapter() *Adapter {
	return &Adapter{
		backends:        make(map[Provider]Backend),
		defaultProvider: ProviderWhisper,
	}
}

// Register adds a backend for a provider.
func (a *Adapter) Register(p Provider, b Backend) {
	a.backends[p] = b
}

// Transcribe converts audio to text using the requested provider.
func (a *Adapter) Transcribe(ctx context.Context, data []byte, fileName string, provider Provider) (string, error) {
	if len(data) == 0 {
		return "", errors.New("audio data is empty")
	}
	if provider == "" {
		provider = a.defaultProvider
	}

	backend, ok := a.backends[provider]
	if !ok {
		provider = a.defaultProvider
		backend, ok = a.backends[provider]
		if !ok {
			return "", fmt.Errorf("no transcription backend configured")
		}
	}

	text, err := backend.Transcribe(ctx, data, fileName)
	if err == nil {
		return text, nil
	}

	if provider == a.defaultProvider {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	fallback, ok := a.backends[a.defaultProvider]
	if !ok {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	log.Printf("Transcription via %s failed (%v), falling back to %s", provider, err, a.defaultProvider)

	text, ferr := fallback.Transcribe(ctx, data, fileName)
	if ferr != nil {
		return "", fmt.Errorf("transcription failed on %s (%v) and fallback %s: %w", provider, err, a.defaultProvider, ferr)
	}
	return text, nil
}
