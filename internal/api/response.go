package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bbernstein/sofie-playout-go/internal/services/playout"
)

// ClientResponse is the body of every action response.
type ClientResponse struct {
	Success bool         `json:"success"`
	Result  any          `json:"result,omitempty"`
	Error   *ClientError `json:"error,omitempty"`
}

// ClientError describes why an action failed.
type ClientError struct {
	Code    int    `json:"code"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) respond(w http.ResponseWriter, result any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, ClientResponse{Success: true, Result: result})
		return
	}
	body := &ClientError{Code: http.StatusInternalServerError, Key: "internal_error", Message: "Internal error"}
	if ce, ok := playout.AsClientError(err); ok {
		body = &ClientError{Code: ce.Code, Key: ce.Key, Message: ce.Message}
	} else if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		body = &ClientError{Code: http.StatusServiceUnavailable, Key: "timeout", Message: "The operation did not complete in time"}
	} else {
		h.log.Error("request failed", "error", err)
	}
	writeJSON(w, body.Code, ClientResponse{Success: false, Error: body})
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return playout.Rejectf(playout.ErrInvalidPayload, "Invalid request body: %v", err)
}

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
