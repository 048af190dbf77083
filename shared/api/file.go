package api

import (
	"time"

	"github.com/parley-dev/parley/shared/domain"
)

type FileResponse struct {
	FileId     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	MimeType   string    `json:"mime_type"`
	Purpose    string    `json:"purpose"`
	Width      *int      `json:"width,omitempty"`
	Height     *int      `json:"height,omitempty"`
	HasPreview bool      `json:"has_preview"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ImageProxyPath is the public path serving image content by external handle.
func ImageProxyPath(fileId domain.FileId) string {
	return "/v1/files/openai/" + fileId
}

func NewFileResponse(f domain.FileRecord) FileResponse {
	resp := FileResponse{
		FileId:     f.FileId,
		Filename:   f.OriginalName,
		SizeBytes:  f.SizeBytes,
		MimeType:   f.MimeType,
		Purpose:    string(f.Purpose),
		Width:      f.Width,
		Height:     f.Height,
		HasPreview: f.Preview != "",
		CreatedAt:  f.CreatedAt,
	}
	if f.IsImage() {
		resp.URL = ImageProxyPath(f.FileId)
	}
	return resp
}

// FilesByPurposeResponse maps purpose to {file_id: filename}.
type FilesByPurposeResponse map[string]map[string]string
