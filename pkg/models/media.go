package models

// UploadResponse is returned by the media upload endpoint.
type UploadResponse struct {
	URL           string `json:"url"`
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size"`
	Type          string `json:"type"`
	ExtractedText string `json:"extractedText,omitempty"`
	Description   string `json:"description,omitempty"`
	Tags          string `json:"tags,omitempty"`
	AltText       string `json:"altText,omitempty"`
	Prompt        string `json:"prompt,omitempty"`
}
