package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
)

const messageSuccess = "Success"

type envelope struct {
	Data       any    `json:"data"`
	Meta       any    `json:"meta,omitempty"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	Message    string `json:"message"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data, meta any) {
	writeJSON(w, status, envelope{
		Data:       data,
		Meta:       meta,
		StatusCode: status,
		Message:    messageSuccess,
		Timestamp:  timestamp(),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{
		StatusCode: status,
		Timestamp:  timestamp(),
		Path:       r.URL.Path,
		Message:    msg,
	})
}

// statusFor maps an application error category to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrInvalidArgument),
		errors.Is(err, application.ErrInsufficientStock),
		errors.Is(err, application.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	writeStatusError(w, r, statusFor(err), err)
}

func writeStatusError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logctx.FromOr(r.Context(), nil).Error("http_request_failed",
			observability.F("status", status),
			observability.F("error", err),
		)
		if status == http.StatusInternalServerError {
			msg = "Internal server error"
		}
	}
	spanFromRequest(r).RecordError(err)
	writeError(w, r, status, msg)
}

// decodeJSON reads a single JSON object of at most limit bytes and rejects
// unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", application.ErrInvalidArgument, tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", application.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: %w", application.ErrInvalidArgument, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single object", application.ErrInvalidArgument)
	}
	return nil
}
