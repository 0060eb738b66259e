package caption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoAPIKey is returned when no OpenAI key is configured.
var ErrNoAPIKey = errors.New("openai api key not configured")

// Transcriber converts an audio or video file into SubRip text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// WhisperTranscriber calls the OpenAI transcription endpoint with
// whisper-1 and SRT output.
type WhisperTranscriber struct {
	client   *openai.Client
	language string
	logger   *slog.Logger
}

// NewWhisperTranscriber builds a transcriber. baseURL overrides the API
// endpoint when non-empty.
func NewWhisperTranscriber(apiKey, baseURL, language string, logger *slog.Logger) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &WhisperTranscriber{
		client:   openai.NewClientWithConfig(cfg),
		language: language,
		logger:   logger,
	}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Format:   openai.AudioResponseFormatSRT,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}

	w.logger.Info("transcription completed",
		"file", filepath.Base(path),
		"bytes", len(resp.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp.Text, nil
}
