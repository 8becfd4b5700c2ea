// Package gateway provides a uniform interface over an external generative-AI
// provider: audio transcription, text embedding, and answer generation.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Gateway exposes the three provider capabilities the pipeline depends on.
// Implementations own retry policy and error normalization; callers only see
// the error taxonomy below.
type Gateway interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

var (
	ErrTranscription = errors.New("transcription failed")
	ErrEmbedding     = errors.New("embedding failed")
	ErrGeneration    = errors.New("generation failed")
)

// ProviderError wraps a provider failure with its capability and a
// transient-vs-permanent classification. errors.Is matches the capability
// sentinel; errors.As reaches the classification.
type ProviderError struct {
	Kind      error
	Transient bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return e.Kind.Error()
}

func (e *ProviderError) Is(target error) bool { return target == e.Kind }

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is a provider failure that was classified
// as transient (and therefore already retried before surfacing).
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
