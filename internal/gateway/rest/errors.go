package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/syntrixbase/msgstore/internal/core/msgid"
	"github.com/syntrixbase/msgstore/internal/core/priority"
	"github.com/syntrixbase/msgstore/internal/engine"
	"github.com/syntrixbase/msgstore/internal/wire"
)

// Error codes not produced by the wire decoder or the priority index
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeInvalidUUID      = "INVALID_UUID"
	ErrCodeUploadAborted    = "UPLOAD_ABORTED"
	ErrCodeExportInProgress = "EXPORT_IN_PROGRESS"
	ErrCodeExportFailed     = "EXPORT_FAILED"
	ErrCodeHalted           = "HALTED"
	ErrCodeRequestTooLarge  = "REQUEST_TOO_LARGE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// ErrBadRequest marks a request that could not be decoded.
var ErrBadRequest = errors.New("bad request")

// StatusClientClosed is logged when the client went away mid-request.
const StatusClientClosed = 499

// Classify maps an engine error to an HTTP status, an error code and a
// client-facing message.
func Classify(err error) (status int, code, message string) {
	var decodeErr *wire.DecodeError
	var exportErr *engine.ExportError
	var tooLarge *http.MaxBytesError
	var validationErrs ValidationErrors

	switch {
	case errors.As(err, &decodeErr):
		if decodeErr.Code == wire.CodeFileStorageNotConfigured {
			return http.StatusForbidden, string(decodeErr.Code), "File storage is not configured"
		}
		return http.StatusBadRequest, string(decodeErr.Code), decodeErr.Error()
	case errors.As(err, &validationErrs), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, msgid.ErrInvalidID):
		return http.StatusBadRequest, ErrCodeInvalidUUID, err.Error()
	case priority.IsConflict(err):
		return http.StatusConflict, priority.Code(err), err.Error()
	case errors.Is(err, engine.ErrUploadAborted):
		return http.StatusBadRequest, ErrCodeUploadAborted, err.Error()
	case errors.Is(err, engine.ErrExportInProgress):
		return http.StatusConflict, ErrCodeExportInProgress, "An export is already running"
	case errors.Is(err, engine.ErrHalted):
		return http.StatusServiceUnavailable, ErrCodeHalted, "Store halted after a fatal storage error"
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "Request body too large"
	case errors.Is(err, context.Canceled):
		return StatusClientClosed, ErrCodeInternalError, "Request canceled"
	case errors.As(err, &exportErr) && !engine.IsFatal(err):
		return http.StatusInternalServerError, ErrCodeExportFailed, exportErr.Error()
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "Internal server error"
	}
}

// writeServiceError writes the response for an engine error. Fatal errors
// were already handed to the halt hook by the engine; they are logged here
// with request context only.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, message := Classify(err)
	switch {
	case status == StatusClientClosed:
		w.WriteHeader(status)
		return
	case status >= 500:
		h.logger.Error(op+" failed", "error", err, "fatal", engine.IsFatal(err), "request_id", requestID(r))
	default:
		h.logger.Info(op+" rejected", "code", code, "request_id", requestID(r))
	}
	writeError(w, status, code, message)
}
