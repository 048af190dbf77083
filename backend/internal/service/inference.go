package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/parley-dev/parley/backend/internal/inference"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
)

// Inference is the hosted service as seen by the services, *inference.Client satisfies it.
type Inference interface {
	CreateAssistant(ctx context.Context, params inference.AssistantParams) (inference.Assistant, error)
	UpdateAssistant(ctx context.Context, id string, params inference.AssistantParams) (inference.Assistant, error)
	DeclareCodeExecutionFiles(ctx context.Context, id string, fileIDs []string) error
	DeleteAssistant(ctx context.Context, id string) error

	CreateThread(ctx context.Context, seed []inference.NewMessage) (inference.Thread, error)
	DeleteThread(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, threadID string, msg inference.NewMessage) (inference.Message, error)
	ListMessages(ctx context.Context, threadID, runID string, limit int) ([]inference.Message, error)

	CreateRun(ctx context.Context, threadID string, params inference.RunParams) (inference.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (inference.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	ListRunSteps(ctx context.Context, threadID, runID string) ([]inference.RunStep, error)
	StreamRun(ctx context.Context, threadID string, params inference.RunParams, handle func(inference.StreamEvent) error) (inference.Run, error)

	UploadFile(ctx context.Context, filename, purpose string, data io.Reader) (inference.File, error)
	FileContent(ctx context.Context, id string) (io.ReadCloser, string, error)
	DeleteFile(ctx context.Context, id string) error
}

// externalError converts an inference failure into the client facing taxonomy.
func externalError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *inference.APIError
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		// our credentials are not the user's problem
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			logger.Log.Error("inference service refused credentials", "op", op, "error", err)
			status = http.StatusBadGateway
		}
		return &internal_errors.ErrorWithStatusCode{
			Message:    fmt.Sprintf("Inference service rejected %s (status %d): %s", op, apiErr.StatusCode, apiErr.Message),
			StatusCode: status,
			Kind:       internal_errors.KindExternalRejection,
		}
	case errors.Is(err, inference.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Log.Warn("inference service unavailable", "op", op, "error", err)
		return &internal_errors.ErrorWithStatusCode{
			Message:    "Inference service is unavailable, try again later",
			StatusCode: http.StatusServiceUnavailable,
			Kind:       internal_errors.KindUnavailable,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
