package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperBackend transcribes audio through the OpenAI Whisper API.
type WhisperBackend struct {
	client *openai.Client
	model  string
}

func NewWhisperBackend(apiKey string) (*WhisperBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	return &WhisperBackend{
		client: openai.NewClient(apiKey),
		model:  openai.Whisper1,
	}, nil
}

func (w *WhisperBackend) Transcribe(ctx context.Context, data []byte, fileName string) (string, error) {
	if fileName == "" {
		fileName = "audio.ogg"
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: fileName,
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
