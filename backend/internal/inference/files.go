package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// UploadFile sends data as multipart form. purpose is "vision" or "assistants".
func (c *Client) UploadFile(ctx context.Context, filename, purpose string, data io.Reader) (File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", purpose); err != nil {
		return File{}, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return File{}, err
	}
	if _, err := io.Copy(part, data); err != nil {
		return File{}, fmt.Errorf("upload_file: failed to buffer file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return File{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", &buf, mw.FormDataContentType())
	if err != nil {
		return File{}, err
	}
	resp, err := c.send(req, "upload_file")
	if err != nil {
		return File{}, err
	}
	defer resp.Body.Close()

	var out File
	if err := decodeJSON(resp.Body, &out); err != nil {
		return File{}, fmt.Errorf("upload_file: %w", err)
	}
	return out, nil
}

func (c *Client) GetFile(ctx context.Context, id string) (File, error) {
	var out File
	err := c.doJSON(ctx, "get_file", http.MethodGet, "/files/"+url.PathEscape(id), nil, &out)
	return out, err
}

// FileContent streams raw bytes of a stored file. The caller closes the body.
func (c *Client) FileContent(ctx context.Context, id string) (io.ReadCloser, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/content", nil, "")
	if err != nil {
		return nil, "", err
	}
	resp, err := c.send(req, "file_content")
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	err := c.doJSON(ctx, "delete_file", http.MethodDelete, "/files/"+url.PathEscape(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
