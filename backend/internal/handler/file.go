package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/parley-dev/parley/shared/api"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
	"github.com/parley-dev/parley/shared/utils"
	"github.com/parley-dev/parley/shared/validation"
)

// multipart overhead and form fields on top of the largest allowed file
const uploadBuffer = 1 << 20

func (h *Handler) maxUploadSize() int64 {
	files := h.cfg.Public.Files
	return validation.CalculateMaxRequestSize(max(files.MaxImageSize, files.MaxDocumentSize), uploadBuffer)
}

// uploadError maps validation sentinels onto client errors.
func uploadError(err error) error {
	switch {
	case errors.Is(err, validation.ErrPayloadTooLarge), errors.Is(err, validation.ErrFileTooLarge):
		return &internal_errors.ErrorWithStatusCode{Message: err.Error(), StatusCode: http.StatusRequestEntityTooLarge}
	case errors.Is(err, validation.ErrInvalidMimeType):
		return &internal_errors.ErrorWithStatusCode{Message: err.Error(), StatusCode: http.StatusUnsupportedMediaType, Kind: internal_errors.KindInvalidRequest}
	}
	return internal_errors.BadRequest(err.Error())
}

// UploadFile accepts multipart fields file, purpose (optional) and assistant_id (optional).
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	if err := validation.ValidateAndParseMultipart(r, w, h.maxUploadSize()); err != nil {
		utils.WriteErrorAndStatusCode(w, uploadError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteErrorAndStatusCode(w, internal_errors.BadRequest("file field is required"))
		return
	}
	defer file.Close()

	info, err := validation.ValidateUpload(header, file, h.cfg.Public.Files)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, uploadError(err))
		return
	}

	purpose := domain.FilePurpose(r.FormValue("purpose"))
	if purpose != "" && !purpose.Valid() {
		utils.WriteErrorAndStatusCode(w, internal_errors.BadRequest("purpose must be one of vision, code_execution, document_search"))
		return
	}

	var assistantId *domain.AssistantId
	if raw := r.FormValue("assistant_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			utils.WriteErrorAndStatusCode(w, internal_errors.BadRequest("invalid assistant_id"))
			return
		}
		assistantId = &id
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Log.Error("failed to read upload", "filename", header.Filename, "error", err)
		utils.WriteErrorAndStatusCode(w, internal_errors.BadRequest("failed to read uploaded file"))
		return
	}

	rec, err := h.files.Upload(r.Context(), domain.FileUpload{
		Owner:       user.Id,
		Filename:    header.Filename,
		MimeType:    info.MimeType,
		SizeBytes:   int64(len(data)),
		Purpose:     purpose,
		AssistantId: assistantId,
		Width:       info.Width,
		Height:      info.Height,
		Data:        data,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, api.NewFileResponse(rec))
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	files, err := h.files.List(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	resp := make([]api.FileResponse, len(files))
	for i, f := range files {
		resp[i] = api.NewFileResponse(f)
	}
	writeJSON(w, resp)
}

func (h *Handler) FilesByPurpose(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	grouped, err := h.files.ByPurpose(r.Context(), user.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	resp := make(api.FilesByPurposeResponse, len(grouped))
	for purpose, files := range grouped {
		resp[string(purpose)] = files
	}
	writeJSON(w, resp)
}

func (h *Handler) FileContent(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	body, mimeType, err := h.files.Content(r.Context(), user.Id, chi.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Cache-Control", "private, max-age=3600")
	streamBody(w, body, mimeType)
}

func (h *Handler) FilePreview(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	thumb, mimeType, err := h.files.Preview(r.Context(), user.Id, chi.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Write(thumb)
}

// PublicImage serves images by external handle without a session, knowing the handle is the capability.
func (h *Handler) PublicImage(w http.ResponseWriter, r *http.Request) {
	body, mimeType, err := h.files.PublicImage(r.Context(), chi.URLParam(r, "fileId"))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	streamBody(w, body, mimeType)
}

func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	if err := h.files.Delete(r.Context(), user.Id, chi.URLParam(r, "fileId")); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func streamBody(w http.ResponseWriter, body io.Reader, mimeType string) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, body); err != nil {
		logger.Log.Warn("file proxy interrupted", "error", err)
	}
}
