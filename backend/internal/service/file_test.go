package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"testing"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFiles(f *fixture) *Files {
	return NewFiles(f.store, f.client, f.reconciler, f.reaper, config.Files{ThumbnailSize: 32})
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("image gets vision purpose and a preview", func(t *testing.T) {
		f := newFixture()
		svc := newTestFiles(f)
		data := testPNG(t)

		rec, err := svc.Upload(ctx, domain.FileUpload{Owner: owner, Filename: "cat.png", MimeType: "image/png", SizeBytes: int64(len(data)), Data: data})
		require.NoError(t, err)

		assert.Equal(t, domain.PurposeVision, rec.Purpose)
		assert.Equal(t, []string{"vision"}, f.client.uploadedPurpose)
		assert.Contains(t, rec.Preview, "data:image/")

		stored, err := f.store.File(ctx, owner, rec.FileId)
		require.NoError(t, err)
		assert.Equal(t, "cat.png", stored.OriginalName)
	})

	t.Run("undecodable image still uploads without preview", func(t *testing.T) {
		f := newFixture()
		rec, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "broken.png", MimeType: "image/png", Data: []byte("nope")})
		require.NoError(t, err)
		assert.Empty(t, rec.Preview)
	})

	t.Run("document defaults to code execution", func(t *testing.T) {
		f := newFixture()
		rec, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "data.csv", MimeType: "text/csv", Data: []byte("a,b")})
		require.NoError(t, err)
		assert.Equal(t, domain.PurposeCodeExecution, rec.Purpose)
		assert.Equal(t, []string{"assistants"}, f.client.uploadedPurpose)
	})

	t.Run("explicit purpose wins", func(t *testing.T) {
		f := newFixture()
		rec, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "notes.pdf", MimeType: "application/pdf", Purpose: domain.PurposeDocumentSearch, Data: []byte("%PDF")})
		require.NoError(t, err)
		assert.Equal(t, domain.PurposeDocumentSearch, rec.Purpose)
	})

	t.Run("rejected upload registers nothing", func(t *testing.T) {
		f := newFixture()
		f.client.uploadFileFunc = func(filename, purpose string, data []byte) (inference.File, error) {
			return inference.File{}, externalFailure(http.StatusBadRequest)
		}
		_, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "x.csv", Data: []byte("x")})
		require.Error(t, err)
		assert.Equal(t, internal_errors.KindExternalRejection, internal_errors.KindOf(err))
		files, _ := f.store.ListFiles(ctx, owner)
		assert.Empty(t, files)
	})

	t.Run("failed registration releases the external file", func(t *testing.T) {
		f := newFixture()
		f.store.saveFileFunc = func(domain.FileRecord) error { return errors.New("db down") }
		_, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "x.csv", Data: []byte("x")})
		require.Error(t, err)
		assert.Equal(t, []string{"file:file_1"}, f.client.deletedHandles())
	})

	t.Run("attaches to an assistant when asked", func(t *testing.T) {
		f := newFixture()
		a := f.store.addAssistant(domain.Assistant{OwnerId: owner, ExternalHandle: "asst_a"})
		rec, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "x.csv", Data: []byte("x"), AssistantId: &a.Id})
		require.NoError(t, err)

		assert.Equal(t, []domain.FileId{rec.FileId}, f.store.assistantSnapshot(a.Id).FileIds)
		assert.Equal(t, [][]string{{rec.FileId}}, f.client.declarations("asst_a"))
	})

	t.Run("attach failure does not fail the upload", func(t *testing.T) {
		f := newFixture()
		a := f.store.addAssistant(domain.Assistant{OwnerId: owner, ExternalHandle: "asst_a"})
		f.client.declareFunc = func(string, []string) error { return externalFailure(http.StatusBadRequest) }

		rec, err := newTestFiles(f).Upload(ctx, domain.FileUpload{Owner: owner, Filename: "x.csv", Data: []byte("x"), AssistantId: &a.Id})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.FileId)
		assert.Empty(t, f.store.assistantSnapshot(a.Id).FileIds)
	})
}

func TestByPurpose(t *testing.T) {
	f := newFixture()
	f.store.addFile(owner, "v1", domain.PurposeVision, "image/png")
	f.store.addFile(owner, "c1", domain.PurposeCodeExecution, "text/csv")
	f.store.addFile(99, "other", domain.PurposeDocumentSearch, "application/pdf")

	grouped, err := newTestFiles(f).ByPurpose(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, map[domain.FilePurpose]map[domain.FileId]string{
		domain.PurposeVision:         {"v1": "v1.bin"},
		domain.PurposeCodeExecution:  {"c1": "c1.bin"},
		domain.PurposeDocumentSearch: {},
	}, grouped)
}

func TestPublicImage(t *testing.T) {
	ctx := context.Background()

	t.Run("registered image uses the stored mime type", func(t *testing.T) {
		f := newFixture()
		f.store.addFile(owner, "img", domain.PurposeVision, "image/webp")
		body, mime, err := newTestFiles(f).PublicImage(ctx, "img")
		require.NoError(t, err)
		defer body.Close()
		assert.Equal(t, "image/webp", mime)
		data, _ := io.ReadAll(body)
		assert.Equal(t, "content of img", string(data))
	})

	t.Run("registered document is not served", func(t *testing.T) {
		f := newFixture()
		f.store.addFile(owner, "doc", domain.PurposeCodeExecution, "text/csv")
		_, _, err := newTestFiles(f).PublicImage(ctx, "doc")
		assert.True(t, internal_errors.IsNotFound(err))
	})

	t.Run("generated image is proxied from the hosted service", func(t *testing.T) {
		f := newFixture()
		f.client.fileContentFunc = func(id string) (io.ReadCloser, string, error) {
			return io.NopCloser(bytes.NewReader([]byte("png"))), "image/png", nil
		}
		body, mime, err := newTestFiles(f).PublicImage(ctx, "file_gen")
		require.NoError(t, err)
		body.Close()
		assert.Equal(t, "image/png", mime)
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		f := newFixture()
		f.client.fileContentFunc = func(id string) (io.ReadCloser, string, error) {
			return nil, "", externalFailure(http.StatusNotFound)
		}
		_, _, err := newTestFiles(f).PublicImage(ctx, "file_gone")
		require.Error(t, err)
		assert.True(t, internal_errors.IsNotFound(err))
	})
}

func TestContent_Ownership(t *testing.T) {
	f := newFixture()
	f.store.addFile(99, "theirs", domain.PurposeCodeExecution, "text/csv")
	_, _, err := newTestFiles(f).Content(context.Background(), owner, "theirs")
	assert.True(t, internal_errors.IsNotFound(err))
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := newTestFiles(f)
	data := testPNG(t)
	rec, err := svc.Upload(ctx, domain.FileUpload{Owner: owner, Filename: "cat.png", MimeType: "image/png", Data: data})
	require.NoError(t, err)

	thumb, mime, err := svc.Preview(ctx, owner, rec.FileId)
	require.NoError(t, err)
	assert.NotEmpty(t, thumb)
	assert.Contains(t, mime, "image/")

	f.store.addFile(owner, "doc", domain.PurposeCodeExecution, "text/csv")
	_, _, err = svc.Preview(ctx, owner, "doc")
	assert.True(t, internal_errors.IsNotFound(err))
}

func TestFileDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("detaches from referencing assistants and releases", func(t *testing.T) {
		f := newFixture()
		svc := newTestFiles(f)
		f.store.addFile(owner, "c1", domain.PurposeCodeExecution, "text/csv")
		f.store.addFile(owner, "c2", domain.PurposeCodeExecution, "text/csv")
		a := f.store.addAssistant(domain.Assistant{OwnerId: owner, ExternalHandle: "asst_a"})
		b := f.store.addAssistant(domain.Assistant{OwnerId: owner, ExternalHandle: "asst_b"})
		_, err := f.reconciler.AttachFiles(ctx, owner, a.Id, []domain.FileId{"c1", "c2"})
		require.NoError(t, err)
		_, err = f.reconciler.AttachFiles(ctx, owner, b.Id, []domain.FileId{"c1"})
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, owner, "c1"))

		assert.Equal(t, []domain.FileId{"c2"}, f.store.assistantSnapshot(a.Id).FileIds)
		assert.Empty(t, f.store.assistantSnapshot(b.Id).FileIds)
		assert.Equal(t, []string{"c2"}, f.client.declarations("asst_a")[1])
		assert.Equal(t, []string{}, f.client.declarations("asst_b")[1])
		assert.Equal(t, []string{"file:c1"}, f.client.deletedHandles())
		_, err = f.store.File(ctx, owner, "c1")
		assert.True(t, internal_errors.IsNotFound(err))
	})

	t.Run("external delete failure is queued, not returned", func(t *testing.T) {
		f := newFixture()
		f.store.addFile(owner, "c1", domain.PurposeCodeExecution, "text/csv")
		f.client.deleteFunc = func(domain.HandleKind, string) error { return errors.New("timeout") }

		require.NoError(t, newTestFiles(f).Delete(ctx, owner, "c1"))
		assert.Equal(t, []string{"file:c1"}, f.store.queuedOrphans())
	})

	t.Run("foreign file", func(t *testing.T) {
		f := newFixture()
		f.store.addFile(99, "c1", domain.PurposeCodeExecution, "text/csv")
		err := newTestFiles(f).Delete(ctx, owner, "c1")
		assert.True(t, internal_errors.IsNotFound(err))
		assert.Empty(t, f.client.deletedHandles())
	})
}
