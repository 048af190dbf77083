package validation

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/parley-dev/parley/shared/config"
	_ "golang.org/x/image/webp"
)

// UploadInfo describes an accepted upload before it is sent anywhere.
type UploadInfo struct {
	MimeType string
	IsImage  bool
	Width    *int
	Height   *int
}

func BuildAllowedMimeMap(groups ...[]string) map[string]bool {
	allowedMimes := make(map[string]bool)
	for _, group := range groups {
		for _, m := range group {
			allowedMimes[m] = true
		}
	}
	return allowedMimes
}

func DetectMimeType(fileHeader *multipart.FileHeader) (string, error) {
	mimeType := fileHeader.Header.Get("Content-Type")

	// If no Content-Type or it's generic, detect from extension
	if mimeType == "" || mimeType == "application/octet-stream" {
		if detected := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); detected != "" {
			mimeType = detected
		}
	}
	// drop parameters such as "; charset=utf-8"
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}

	if mimeType == "" {
		return "", fmt.Errorf("could not detect MIME type for file: %s", fileHeader.Filename)
	}

	return mimeType, nil
}

// ValidateUpload checks the MIME type against the allow lists and the size against
// the per kind limit (images and documents have separate limits).
func ValidateUpload(fileHeader *multipart.FileHeader, file io.ReadSeeker, cfg config.Files) (UploadInfo, error) {
	mimeType, err := DetectMimeType(fileHeader)
	if err != nil {
		return UploadInfo{}, fmt.Errorf("%w: %s", ErrInvalidMimeType, err.Error())
	}

	imageMimes := BuildAllowedMimeMap(cfg.AllowedImageMimeTypes)
	documentMimes := BuildAllowedMimeMap(cfg.AllowedDocumentMimeTypes)

	info := UploadInfo{MimeType: mimeType}
	switch {
	case imageMimes[mimeType]:
		info.IsImage = true
		if fileHeader.Size > cfg.MaxImageSize {
			return UploadInfo{}, fmt.Errorf("%w: image exceeds the limit of %.0f MB", ErrFileTooLarge, FormatSizeMB(cfg.MaxImageSize))
		}
		info.Width, info.Height = ExtractImageDimensions(file, mimeType)
	case documentMimes[mimeType]:
		if fileHeader.Size > cfg.MaxDocumentSize {
			return UploadInfo{}, fmt.Errorf("%w: document exceeds the limit of %.0f MB", ErrFileTooLarge, FormatSizeMB(cfg.MaxDocumentSize))
		}
	default:
		return UploadInfo{}, fmt.Errorf("%w: %s (file: %s)", ErrInvalidMimeType, mimeType, fileHeader.Filename)
	}

	return info, nil
}

func ExtractImageDimensions(file io.ReadSeeker, mimeType string) (*int, *int) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, nil
	}
	defer file.Seek(0, io.SeekStart)

	img, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, nil
	}

	width, height := img.Width, img.Height
	return &width, &height
}
