package validation

import (
	"fmt"
	"net/http"
)

// ValidateAndParseMultipart validates request size and parses the multipart form.
// The body is wrapped in MaxBytesReader, so at most maxSize bytes are read no
// matter what the client sends. Once the limit is hit the server stops reading
// and closes the connection; browsers report that as a connection reset rather
// than a 413, which is why clients should check file sizes before uploading.
// Content-Length is not checked up front: browsers have started the upload by
// the time the request arrives.
func ValidateAndParseMultipart(r *http.Request, w http.ResponseWriter, maxSize int64) error {
	// MaxBytesReader stops reading when the limit is exceeded
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	// ParseMultipartForm surfaces the MaxBytesReader error when the limit is hit
	if err := r.ParseMultipartForm(maxSize); err != nil {
		return fmt.Errorf("%w: failed to parse multipart form", ErrPayloadTooLarge)
	}

	return nil
}

// CalculateMaxRequestSize returns the largest accepted request for a file of
// maxFileSize bytes. bufferSize (1 MiB for uploads) covers the purpose and
// assistant_id fields plus multipart boundaries.
func CalculateMaxRequestSize(maxFileSize int64, bufferSize int64) int64 {
	return maxFileSize + bufferSize
}

// FormatSizeMB converts bytes to megabytes for error messages.
func FormatSizeMB(bytes int64) float64 {
	return float64(bytes) / (1024 * 1024)
}
