package api

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"channel-relay/internal/media"
	"channel-relay/internal/storage"
	wire "channel-relay/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/ledongthuc/pdf"
)

// MaxUploadBytes caps dashboard uploads at 10MB.
const MaxUploadBytes = 10 << 20

// UploadHandler accepts dashboard media uploads, recompresses images,
// extracts text from PDFs, and stores the result in object storage.
type UploadHandler struct {
	Store storage.ObjectStore
}

func NewUploadHandler(store storage.ObjectStore) *UploadHandler {
	return &UploadHandler{Store: store}
}

func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		// Older dashboard builds send the part as "image".
		file, header, err = c.Request.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
			return
		}
	}
	defer file.Close()

	if header.Size > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10MB limit"})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	if len(data) > MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10MB limit"})
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	resp := wire.UploadResponse{
		FileName:    header.Filename,
		MimeType:    mimeType,
		Size:        int64(len(data)),
		Description: c.PostForm("description"),
		Tags:        c.PostForm("tags"),
		AltText:     c.PostForm("altText"),
		Prompt:      c.PostForm("prompt"),
	}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		resp.Type = "image"
		compressed, err := media.CompressImage(data)
		if err != nil {
			log.Printf("Image compression failed for %s, storing original: %v", header.Filename, err)
		} else {
			data = compressed
			mimeType = "image/jpeg"
			resp.MimeType = mimeType
			resp.Size = int64(len(data))
			ext := filepath.Ext(resp.FileName)
			resp.FileName = strings.TrimSuffix(resp.FileName, ext) + ".jpg"
		}

	case mimeType == "application/pdf":
		resp.Type = "document"
		text, err := extractPDFText(data)
		if err != nil {
			log.Printf("PDF text extraction failed for %s: %v", header.Filename, err)
		} else {
			resp.ExtractedText = text
		}

	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fmt.Sprintf("unsupported content type %s", mimeType)})
		return
	}

	url, err := h.Store.Upload(c.Request.Context(), data, resp.FileName, mimeType)
	if err != nil {
		log.Printf("Upload to storage failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage upload failed"})
		return
	}
	resp.URL = url

	c.JSON(http.StatusOK, resp)
}

// extractPDFText concatenates the plain text of every page. Scanned PDFs
// yield empty text, which the response just omits.
func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
