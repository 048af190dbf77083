package utils

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteErrorAndStatusCode writes {"kind","message"} with the status carried by err.
// Errors without a status are reported as 500 with a generic message.
func WriteErrorAndStatusCode(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := errorPayload{Kind: errors.KindInternal, Message: "Internal error"}

	if e, ok := errors.As(err); ok {
		status = e.StatusCode
		payload = errorPayload{Kind: e.ErrorKind(), Message: e.Message}
	} else {
		logger.Log.Error("unhandled error", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func DecodeValidate(r io.ReadCloser, body any) error {
	if err := json.NewDecoder(r).Decode(body); err != nil {
		logger.Log.Debug("invalid json body", "error", err)
		return &errors.ErrorWithStatusCode{Message: "Body is invalid json", StatusCode: 400}
	}
	if err := validate.Struct(body); err != nil {
		logger.Log.Debug("body validation failed", "error", err)
		return &errors.ErrorWithStatusCode{Message: "Required fields missing", StatusCode: 400}
	}
	return nil
}

func Decode(r io.ReadCloser, body any) error {
	if err := json.NewDecoder(r).Decode(body); err != nil {
		logger.Log.Debug("invalid json body", "error", err)
		return &errors.ErrorWithStatusCode{Message: "Body is invalid json", StatusCode: 400}
	}
	return nil
}
