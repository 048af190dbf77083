package service

import (
	"bytes"
	"context"
	"io"

	"github.com/parley-dev/parley/backend/internal/inference"
	"github.com/parley-dev/parley/backend/internal/service/utils"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
)

type FileService interface {
	Upload(ctx context.Context, upload domain.FileUpload) (domain.FileRecord, error)
	Get(ctx context.Context, owner domain.UserId, id domain.FileId) (domain.FileRecord, error)
	List(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error)
	ByPurpose(ctx context.Context, owner domain.UserId) (map[domain.FilePurpose]map[domain.FileId]string, error)
	Content(ctx context.Context, owner domain.UserId, id domain.FileId) (io.ReadCloser, string, error)
	PublicImage(ctx context.Context, id domain.FileId) (io.ReadCloser, string, error)
	Preview(ctx context.Context, owner domain.UserId, id domain.FileId) ([]byte, string, error)
	Delete(ctx context.Context, owner domain.UserId, id domain.FileId) error
}

type FileStorage interface {
	FileResolver
	SaveFile(ctx context.Context, f domain.FileRecord) error
	File(ctx context.Context, owner domain.UserId, id domain.FileId) (domain.FileRecord, error)
	FileByHandle(ctx context.Context, id domain.FileId) (domain.FileRecord, error)
	ListFiles(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error)
	DeleteFile(ctx context.Context, owner domain.UserId, id domain.FileId) error
	AssistantsReferencingFile(ctx context.Context, owner domain.UserId, id domain.FileId) ([]domain.AssistantId, error)
}

type FileClient interface {
	UploadFile(ctx context.Context, filename, purpose string, data io.Reader) (inference.File, error)
	FileContent(ctx context.Context, id string) (io.ReadCloser, string, error)
}

type Files struct {
	storage    FileStorage
	client     FileClient
	reconciler *Reconciler
	reaper     *Reaper
	cfg        config.Files
}

func NewFiles(storage FileStorage, client FileClient, reconciler *Reconciler, reaper *Reaper, cfg config.Files) *Files {
	return &Files{storage: storage, client: client, reconciler: reconciler, reaper: reaper, cfg: cfg}
}

// Upload stores the bytes with the hosted service and registers the file.
// Attaching to an assistant is best effort, the upload succeeds regardless.
func (s *Files) Upload(ctx context.Context, up domain.FileUpload) (domain.FileRecord, error) {
	purpose := domain.InferPurpose(up.Purpose, up.MimeType, up.Filename)

	ext, err := s.client.UploadFile(ctx, up.Filename, purpose.ExternalPurpose(), bytes.NewReader(up.Data))
	if err != nil {
		return domain.FileRecord{}, externalError("file upload", err)
	}

	rec := domain.FileRecord{
		FileId:       ext.ID,
		OriginalName: up.Filename,
		SizeBytes:    up.SizeBytes,
		MimeType:     up.MimeType,
		Purpose:      purpose,
		OwnerId:      up.Owner,
		Width:        up.Width,
		Height:       up.Height,
	}
	if rec.IsImage() {
		preview, err := utils.MakeThumbnail(up.Data, up.MimeType, s.cfg.ThumbnailSize)
		if err != nil {
			logger.Log.Warn("thumbnail generation failed", "file_id", ext.ID, "error", err)
		} else {
			rec.Preview = preview
		}
	}

	if err := s.storage.SaveFile(ctx, rec); err != nil {
		s.reaper.Release(ctx, domain.HandleFile, ext.ID)
		return domain.FileRecord{}, err
	}

	if up.AssistantId != nil {
		if _, err := s.reconciler.AttachFiles(ctx, up.Owner, *up.AssistantId, []domain.FileId{rec.FileId}); err != nil {
			logger.Log.Warn("failed to attach uploaded file", "file_id", rec.FileId, "assistant_id", *up.AssistantId, "error", err)
		}
	}

	logger.Log.Info("file uploaded", "file_id", rec.FileId, "purpose", purpose, "size", rec.SizeBytes, "user_id", up.Owner)
	return rec, nil
}

func (s *Files) Get(ctx context.Context, owner domain.UserId, id domain.FileId) (domain.FileRecord, error) {
	return s.storage.File(ctx, owner, id)
}

func (s *Files) List(ctx context.Context, owner domain.UserId) ([]domain.FileRecord, error) {
	return s.storage.ListFiles(ctx, owner)
}

// ByPurpose groups the owner's files as purpose -> {file_id: name}. Every
// purpose is present, possibly empty.
func (s *Files) ByPurpose(ctx context.Context, owner domain.UserId) (map[domain.FilePurpose]map[domain.FileId]string, error) {
	files, err := s.storage.ListFiles(ctx, owner)
	if err != nil {
		return nil, err
	}
	grouped := map[domain.FilePurpose]map[domain.FileId]string{
		domain.PurposeVision:         {},
		domain.PurposeCodeExecution:  {},
		domain.PurposeDocumentSearch: {},
	}
	for _, f := range files {
		if group, ok := grouped[f.Purpose]; ok {
			group[f.FileId] = f.OriginalName
		}
	}
	return grouped, nil
}

// Content streams the bytes of an owned file. The caller closes the reader.
func (s *Files) Content(ctx context.Context, owner domain.UserId, id domain.FileId) (io.ReadCloser, string, error) {
	rec, err := s.storage.File(ctx, owner, id)
	if err != nil {
		return nil, "", err
	}
	return s.content(ctx, rec)
}

// PublicImage serves images by external handle without a session, the handle
// acts as the capability. Generated images that were never registered locally
// are served too.
func (s *Files) PublicImage(ctx context.Context, id domain.FileId) (io.ReadCloser, string, error) {
	rec, err := s.storage.FileByHandle(ctx, id)
	switch {
	case err == nil:
		if !rec.IsImage() {
			return nil, "", internal_errors.NotFound("Image not found")
		}
		return s.content(ctx, rec)
	case internal_errors.IsNotFound(err):
		body, mime, err := s.client.FileContent(ctx, id)
		if err != nil {
			if inference.IsNotFound(err) {
				return nil, "", internal_errors.NotFound("Image not found")
			}
			return nil, "", externalError("file content", err)
		}
		return body, mime, nil
	default:
		return nil, "", err
	}
}

func (s *Files) content(ctx context.Context, rec domain.FileRecord) (io.ReadCloser, string, error) {
	body, _, err := s.client.FileContent(ctx, rec.FileId)
	if err != nil {
		return nil, "", externalError("file content", err)
	}
	return body, rec.MimeType, nil
}

func (s *Files) Preview(ctx context.Context, owner domain.UserId, id domain.FileId) ([]byte, string, error) {
	rec, err := s.storage.File(ctx, owner, id)
	if err != nil {
		return nil, "", err
	}
	if rec.Preview == "" {
		return nil, "", internal_errors.NotFound("Preview not available")
	}
	data, mime, err := utils.DecodeDataURL(rec.Preview)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

// Delete detaches the file from every assistant that references it, then
// removes the record and releases the external file. Detach failures do not
// block the deletion, the repair job converges those assistants later.
func (s *Files) Delete(ctx context.Context, owner domain.UserId, id domain.FileId) error {
	if _, err := s.storage.File(ctx, owner, id); err != nil {
		return err
	}
	refs, err := s.storage.AssistantsReferencingFile(ctx, owner, id)
	if err != nil {
		return err
	}
	for _, assistantId := range refs {
		if _, err := s.reconciler.DetachFile(ctx, owner, assistantId, id); err != nil {
			logger.Log.Warn("failed to detach deleted file", "file_id", id, "assistant_id", assistantId, "error", err)
		}
	}

	if err := s.storage.DeleteFile(ctx, owner, id); err != nil {
		return err
	}
	s.reaper.Release(ctx, domain.HandleFile, id)
	return nil
}
