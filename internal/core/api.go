package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

// Error codes carried by API error responses.
const (
	CodeBadRequest    = "bad_request"
	CodeConfig        = "config"
	CodeSessionActive = "session_active"
	CodeNoValidURIs   = "no_valid_uris"
	CodeEngineInit    = "engine_init"
	CodeInternal      = "internal"
)

// SubmitRequest is the body of POST /batch.
type SubmitRequest struct {
	URIs []string `json:"uris"`
	Dir  string   `json:"dir"`
}

// APIError is the JSON body of every non-2xx API response.
type APIError struct {
	Status  int                 `json:"-"`
	Code    string              `json:"code"`
	Message string              `json:"error"`
	Field   string              `json:"field,omitempty"`
	Reason  string              `json:"reason,omitempty"`
	Result  *types.SubmitResult `json:"result,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

// Unwrap maps the code back to the sentinel it was produced from so that
// callers can use errors.Is on both transports.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeSessionActive:
		return ErrSessionActive
	case CodeNoValidURIs:
		return ErrNoValidURIs
	}
	return nil
}

// NewAPIError classifies err for an HTTP response.
func NewAPIError(err error) *APIError {
	var (
		cfgErr  *types.ConfigError
		initErr *types.EngineInitError
	)
	switch {
	case errors.As(err, &cfgErr):
		return &APIError{Status: http.StatusBadRequest, Code: CodeConfig, Message: err.Error(),
			Field: cfgErr.Field, Reason: cfgErr.Reason}
	case errors.Is(err, ErrSessionActive):
		return &APIError{Status: http.StatusConflict, Code: CodeSessionActive, Message: err.Error()}
	case errors.Is(err, ErrNoValidURIs):
		return &APIError{Status: http.StatusUnprocessableEntity, Code: CodeNoValidURIs, Message: err.Error()}
	case errors.As(err, &initErr):
		return &APIError{Status: http.StatusInternalServerError, Code: CodeEngineInit, Message: err.Error()}
	}
	return &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
}

// asTyped turns an API error into the error the local service would have
// returned where the type carries information.
func (e *APIError) asTyped() error {
	switch e.Code {
	case CodeConfig:
		return &types.ConfigError{Field: e.Field, Reason: e.Reason}
	case CodeEngineInit:
		return &types.EngineInitError{Err: errors.New(e.Message)}
	}
	return e
}
