package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultMaxAttempts   = 3
	defaultRetryInterval = 500 * time.Millisecond
)

var errEmptyOutput = errors.New("provider returned empty output")

// Options configures the OpenAI-backed gateway.
type Options struct {
	APIKey  string
	BaseURL string

	ChatModel          string
	EmbeddingModel     string
	TranscriptionModel string

	// Dimension, when positive, is validated against every embedding the
	// provider returns.
	Dimension int
}

// OpenAI implements Gateway against the OpenAI API: Whisper for
// transcription, the embeddings endpoint, and chat completions for
// generation. Construct once and share across requests; the client keeps no
// per-call state.
type OpenAI struct {
	client        *openai.Client
	chatModel     string
	embedModel    string
	whisperModel  string
	dimension     int
	maxAttempts   int
	retryInterval time.Duration
}

func NewOpenAI(opts Options) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	embedModel := opts.EmbeddingModel
	if embedModel == "" {
		embedModel = string(openai.SmallEmbedding3)
	}
	whisperModel := opts.TranscriptionModel
	if whisperModel == "" {
		whisperModel = openai.Whisper1
	}

	return &OpenAI{
		client:        openai.NewClientWithConfig(cfg),
		chatModel:     chatModel,
		embedModel:    embedModel,
		whisperModel:  whisperModel,
		dimension:     opts.Dimension,
		maxAttempts:   defaultMaxAttempts,
		retryInterval: defaultRetryInterval,
	}
}

func (g *OpenAI) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", &ProviderError{Kind: ErrTranscription, Cause: errors.New("empty audio payload")}
	}

	var text string
	err := retryTransient(ctx, g.maxAttempts, g.retryInterval, func() error {
		resp, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    g.whisperModel,
			Reader:   bytes.NewReader(audio),
			FilePath: audioFileName(mimeType),
		})
		if err != nil {
			return fmt.Errorf("create transcription: %w", err)
		}
		if strings.TrimSpace(resp.Text) == "" {
			return errEmptyOutput
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", &ProviderError{Kind: ErrTranscription, Transient: classifyTransient(err), Cause: err}
	}
	return text, nil
}

func (g *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ProviderError{Kind: ErrEmbedding, Cause: errors.New("empty input text")}
	}

	var vector []float32
	err := retryTransient(ctx, g.maxAttempts, g.retryInterval, func() error {
		resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(g.embedModel),
			Input: []string{text},
		})
		if err != nil {
			return fmt.Errorf("create embedding: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return errEmptyOutput
		}
		if g.dimension > 0 && len(resp.Data[0].Embedding) != g.dimension {
			return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", g.dimension, len(resp.Data[0].Embedding))
		}
		vector = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, &ProviderError{Kind: ErrEmbedding, Transient: classifyTransient(err), Cause: err}
	}
	return vector, nil
}

func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := retryTransient(ctx, g.maxAttempts, g.retryInterval, func() error {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return fmt.Errorf("create chat completion: %w", err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return errEmptyOutput
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", &ProviderError{Kind: ErrGeneration, Transient: classifyTransient(err), Cause: err}
	}
	return answer, nil
}

var _ Gateway = (*OpenAI)(nil)

// retryTransient runs op up to maxAttempts times with exponential backoff,
// retrying only errors classified as transient. Context cancellation aborts
// the wait and surfaces the context error.
func retryTransient(ctx context.Context, maxAttempts int, interval time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = interval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if classifyTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// classifyTransient decides whether a provider failure is worth retrying.
// Rate limiting and server-side errors are transient, as are transport
// failures with no HTTP status. Validation and auth errors, cancellation,
// and empty provider output are permanent.
func classifyTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errEmptyOutput) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	// No HTTP response at all: network-level failure.
	return true
}

// audioFileName maps an upload MIME type to a file name whose extension the
// transcription endpoint recognizes.
func audioFileName(mimeType string) string {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	switch base {
	case "audio/mpeg", "audio/mp3":
		return "lecture.mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "lecture.wav"
	case "audio/ogg", "application/ogg":
		return "lecture.ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "lecture.m4a"
	case "audio/flac", "audio/x-flac":
		return "lecture.flac"
	default:
		// Browser recorders send audio/webm; treat it as the default.
		return "lecture.webm"
	}
}
