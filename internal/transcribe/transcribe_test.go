package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	text  string
	err   error
	calls int
}

func (f *fakeBackend) Transcribe(ctx context.Context, data []byte, fileName string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestTranscribeUsesRequestedProvider(t *testing.T) {
	whisper := &fakeBackend{text: "from whisper"}
	gemini := &fakeBackend{text: "from gemini"}

	a := NewAdapter()
	a.Register(ProviderWhisper, whisper)
	a.Register(ProviderGemini, gemini)

	text, err := a.Transcribe(context.Background(), []byte("audio"), "a.ogg", ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, "from gemini", text)
	assert.Zero(t, whisper.calls)
}

func TestTranscribeEmptyProviderUsesDefault(t *testing.T) {
	whisper := &fakeBackend{text: "from whisper"}

	a := NewAdapter()
	a.Register(ProviderWhisper, whisper)

	text, err := a.Transcribe(context.Background(), []byte("audio"), "a.ogg", "")
	require.NoError(t, err)
	assert.Equal(t, "from whisper", text)
}

func TestTranscribeFallsBackOnce(t *testing.T) {
	whisper := &fakeBackend{text: "from whisper"}
	gemini := &fakeBackend{err: errors.New("quota exceeded")}

	a := NewAdapter()
	a.Register(ProviderWhisper, whisper)
	a.Register(ProviderGemini, gemini)

	text, err := a.Transcribe(context.Background(), []byte("audio"), "a.ogg", ProviderGemini)
	require.NoError(t, err)
	assert.Equal(t, "from whisper", text)
	assert.Equal(t, 1, gemini.calls)
	assert.Equal(t, 1, whisper.calls)
}

func TestTranscribeDefaultFailureDoesNotLoop(t *testing.T) {
	whisper := &fakeBackend{err: errors.New("whisper down")}
	gemini := &fakeBackend{text: "from gemini"}

	a := NewAdapter()
	a.Register(ProviderWhisper, whisper)
	a.Register(ProviderGemini, gemini)

	// The default failing must not fall back sideways to another backend.
	_, err := a.Transcribe(context.Background(), []byte("audio"), "a.ogg", ProviderWhisper)
	require.Error(t, err)
	assert.Equal(t, 1, whisper.calls)
	assert.Zero(t, gemini.calls)
}

func TestTranscribeBothFail(t *testing.T) {
	whisper := &fakeBackend{err: errors.New("whisper down")}
	gemini := &fakeBackend{err: errors.New("gemini down")}

	a := NewAdapter()
	a.Register(ProviderWhisper, whisper)
	a.Register(ProviderGemini, gemini)

	_, err := a.Transcribe(context.Background(), []byte("audio"), "a.ogg", ProviderGemini)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini down")
	assert.Contains(t, err.Error(), "whisper down")
}

func TestTranscribeEmptyAudio(t *testing.T) {
	a := NewAdapter()
	a.Register(ProviderWhisper, &fakeBackend{text: "never"})

	_, err := a.Transcribe(context.Background(), nil, "a.ogg", ProviderWhisper)
	assert.Error(t, err)
}

func TestTranscribeNoBackends(t *testing.T) {
	a := NewAdapter()
	_, err := a.Transcribe(context.Background(), []byte("audio"), "a.ogg", ProviderWhisper)
	assert.Error(t, err)
}
