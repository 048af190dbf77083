package validation

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/parley-dev/parley/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func header(name, contentType string, size int64) *multipart.FileHeader {
	h := textproto.MIMEHeader{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &multipart.FileHeader{Filename: name, Header: h, Size: size}
}

var filesCfg = config.Files{
	MaxImageSize:             1 << 20,
	MaxDocumentSize:          2 << 20,
	AllowedImageMimeTypes:    []string{"image/png", "image/jpeg"},
	AllowedDocumentMimeTypes: []string{"text/csv", "text/plain"},
}

func TestDetectMimeType(t *testing.T) {
	tests := []struct {
		name     string
		header   *multipart.FileHeader
		expected string
		wantErr  bool
	}{
		{"explicit header", header("a.bin", "image/png", 1), "image/png", false},
		{"header with params", header("a.txt", "text/plain; charset=utf-8", 1), "text/plain", false},
		{"octet stream falls back to extension", header("shot.jpg", "application/octet-stream", 1), "image/jpeg", false},
		{"extension params stripped", header("page.html", "", 1), "text/html", false},
		{"no header", header("photo.png", "", 1), "image/png", false},
		{"unknown", header("blob", "", 1), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectMimeType(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateUpload(t *testing.T) {
	t.Run("image with dimensions", func(t *testing.T) {
		data := pngBytes(t, 3, 2)
		info, err := ValidateUpload(header("p.png", "image/png", int64(len(data))), bytes.NewReader(data), filesCfg)
		require.NoError(t, err)
		assert.True(t, info.IsImage)
		require.NotNil(t, info.Width)
		assert.Equal(t, 3, *info.Width)
		assert.Equal(t, 2, *info.Height)
	})

	t.Run("reader is rewound", func(t *testing.T) {
		data := pngBytes(t, 1, 1)
		r := bytes.NewReader(data)
		_, err := ValidateUpload(header("p.png", "image/png", int64(len(data))), r, filesCfg)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), int64(r.Len()))
	})

	t.Run("document", func(t *testing.T) {
		info, err := ValidateUpload(header("d.csv", "text/csv", 10), bytes.NewReader([]byte("a,b")), filesCfg)
		require.NoError(t, err)
		assert.False(t, info.IsImage)
		assert.Nil(t, info.Width)
	})

	t.Run("image over limit", func(t *testing.T) {
		_, err := ValidateUpload(header("p.png", "image/png", 2<<20), bytes.NewReader(nil), filesCfg)
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("document uses its own limit", func(t *testing.T) {
		_, err := ValidateUpload(header("d.csv", "text/csv", 3<<19), bytes.NewReader(nil), filesCfg)
		assert.NoError(t, err)
		_, err = ValidateUpload(header("d.csv", "text/csv", 3<<20), bytes.NewReader(nil), filesCfg)
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("disallowed mime", func(t *testing.T) {
		_, err := ValidateUpload(header("x.exe", "application/x-msdownload", 1), bytes.NewReader(nil), filesCfg)
		assert.ErrorIs(t, err, ErrInvalidMimeType)
	})
}
