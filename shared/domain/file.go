package domain

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// FilePurpose is decided once at upload and never changes afterwards.
type FilePurpose string

const (
	PurposeVision         FilePurpose = "vision"
	PurposeCodeExecution  FilePurpose = "code_execution"
	PurposeDocumentSearch FilePurpose = "document_search"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

func (p FilePurpose) Valid() bool {
	switch p {
	case PurposeVision, PurposeCodeExecution, PurposeDocumentSearch:
		return true
	}
	return false
}

// ExternalPurpose is the purpose string the hosted service expects on upload.
func (p FilePurpose) ExternalPurpose() string {
	if p == PurposeVision {
		return "vision"
	}
	return "assistants"
}

// InferPurpose picks explicit purpose first, then MIME type, then file extension.
func InferPurpose(explicit FilePurpose, mimeType, filename string) FilePurpose {
	if explicit.Valid() {
		return explicit
	}
	if strings.HasPrefix(mimeType, "image/") {
		return PurposeVision
	}
	if imageExtensions[strings.ToLower(filepath.Ext(filename))] {
		return PurposeVision
	}
	return PurposeCodeExecution
}

type FileRecord struct {
	FileId       FileId
	OriginalName string
	SizeBytes    int64
	MimeType     string
	Purpose      FilePurpose
	OwnerId      UserId
	Width        *int
	Height       *int
	// base64 data URL thumbnail, empty for non-images
	Preview   string
	CreatedAt time.Time
}

// IsImage reports whether the file is inlined into messages as an image block.
func (f FileRecord) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/") || f.Purpose == PurposeVision
}

type FileUpload struct {
	Owner       UserId
	Filename    string
	MimeType    string
	SizeBytes   int64
	Purpose     FilePurpose
	AssistantId *AssistantId
	Width       *int
	Height      *int
	Data        []byte
}

// ToolResources is the purpose partition of a file set.
type ToolResources struct {
	CodeExecution  []FileId
	Vision         []FileId
	DocumentSearch []FileId
}

// FileResolver looks up an owner's files by id. Records keep the order of ids
// with duplicates dropped, ids that are unknown or foreign come back as missing.
type FileResolver interface {
	FilesByIds(ctx context.Context, owner UserId, ids []FileId) ([]FileRecord, []FileId, error)
}
