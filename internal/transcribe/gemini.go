package transcribe

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

const geminiFallbackMime = "audio/ogg"

// GeminiBackend transcribes audio through the Gemini API. The audio mime
// type is inferred from the file extension; unrecognized extensions use a
// fixed fallback type.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: "gemini-2.0-flash"}, nil
}

func (g *GeminiBackend) Transcribe(ctx context.Context, data []byte, fileName string) (string, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: MimeFromExtension(fileName), Data: data}},
			{Text: "Transcribe this audio verbatim. Respond with only the transcription text."},
		},
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini transcription returned no text")
	}
	return text, nil
}

// MimeFromExtension maps an audio file extension to its mime type.
func MimeFromExtension(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	case ".ogg", ".oga", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return geminiFallbackMime
	}
}
