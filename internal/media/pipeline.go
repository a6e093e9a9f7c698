// Package media downloads provider-hosted media, transforms it, and uploads
// it to durable object storage.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"channel-relay/internal/storage"
)

// FetchOutcome classifies a provider media download so callers can tell a
// legitimate absence from a transient failure.
type FetchOutcome int

const (
	FetchOK FetchOutcome = iota
	FetchMissing
	FetchFailed
)

// Fetch is the typed result of a provider media download.
type Fetch struct {
	Outcome  FetchOutcome
	Data     []byte
	MimeType string
	Err      error
}

const defaultGraphBase = "https://graph.facebook.com/v19.0"

// maxMediaBytes bounds a provider media download (WhatsApp caps media at
// 100MB; we stop well before that).
const maxMediaBytes = 64 << 20

// Pipeline moves media from provider hosting into the object store.
type Pipeline struct {
	httpClient *http.Client
	store      storage.ObjectStore
	graphBase  string
}

func NewPipeline(store storage.ObjectStore) *Pipeline {
	return &Pipeline{
		httpClient: &http.Client{},
		store:      store,
		graphBase:  defaultGraphBase,
	}
}

// SetGraphBase overrides the Graph API base URL. Used by tests.
func (p *Pipeline) SetGraphBase(base string) {
	p.graphBase = base
}

// Download fetches provider-hosted media by id using the channel's access
// token. Failures are reported through the outcome, never as a Go error:
// the enclosing webhook handler skips the media and still acknowledges the
// event to avoid provider redelivery storms.
func (p *Pipeline) Download(ctx context.Context, mediaID, accessToken string) Fetch {
	// Resolve the media object to its short-lived download URL first.
	body, status, err := p.get(ctx, fmt.Sprintf("%s/%s", p.graphBase, mediaID), accessToken)
	if err != nil {
		return Fetch{Outcome: FetchFailed, Err: err}
	}
	if status == http.StatusNotFound {
		return Fetch{Outcome: FetchMissing, Err: fmt.Errorf("media %s not found", mediaID)}
	}
	if status >= 400 {
		return Fetch{Outcome: FetchFailed, Err: fmt.Errorf("media lookup failed: HTTP %d", status)}
	}

	var obj struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return Fetch{Outcome: FetchFailed, Err: fmt.Errorf("decode media object: %w", err)}
	}
	if obj.URL == "" {
		return Fetch{Outcome: FetchMissing, Err: fmt.Errorf("media %s has no download url", mediaID)}
	}

	data, status, err := p.get(ctx, obj.URL, accessToken)
	if err != nil {
		return Fetch{Outcome: FetchFailed, Err: err}
	}
	if status >= 400 {
		return Fetch{Outcome: FetchFailed, Err: fmt.Errorf("media download failed: HTTP %d", status)}
	}

	return Fetch{Outcome: FetchOK, Data: data, MimeType: obj.MimeType}
}

func (p *Pipeline) get(ctx context.Context, url, accessToken string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// StoreImage recompresses an image to a web-friendly JPEG bounded at the
// max width and uploads it. Encoder errors propagate; compression is
// CPU-bound and not failure-prone, so there is no retry.
func (p *Pipeline) StoreImage(ctx context.Context, data []byte, name string) (string, error) {
	compressed, err := CompressImage(data)
	if err != nil {
		return "", err
	}
	return p.store.Upload(ctx, compressed, jpegName(name), "image/jpeg")
}

// StoreRaw uploads media bytes unmodified (documents, original audio).
func (p *Pipeline) StoreRaw(ctx context.Context, data []byte, name, contentType string) (string, error) {
	return p.store.Upload(ctx, data, name, contentType)
}
