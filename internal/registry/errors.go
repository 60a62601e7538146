package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/biblio-sync/internal/httpclient"
)

// ErrorKind classifies registry failures by how the scheduler must react to them
type ErrorKind string

const (
	// KindConfiguration is missing credentials or endpoints; aborts the tick
	KindConfiguration ErrorKind = "configuration"

	// KindRender is an article that cannot be rendered; not retried until it changes
	KindRender ErrorKind = "render"

	// KindAuth is rejected credentials; aborts the tick
	KindAuth ErrorKind = "auth"

	// KindValidation is a payload rejected by the registry; retried after the retry delay
	KindValidation ErrorKind = "validation"

	// KindTransient is a network failure, timeout or server error; retried after the retry delay
	KindTransient ErrorKind = "transient"

	// KindConflict means the entry must be deleted and created again
	KindConflict ErrorKind = "conflict"

	// KindUnsupported is an operation the registry does not offer
	KindUnsupported ErrorKind = "unsupported"
)

// Error is a classified registry failure
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

// Error returns the error message
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ConfigurationError reports missing or invalid target configuration
func ConfigurationError(format string, args ...any) *Error {
	return NewError(KindConfiguration, fmt.Sprintf(format, args...), nil)
}

// UnsupportedError reports an operation the registry does not offer
func UnsupportedError(registry, operation string) *Error {
	return NewError(KindUnsupported, fmt.Sprintf("%s does not support %s", registry, operation), nil)
}

// KindOf returns the kind of err, or KindTransient for unclassified errors
func KindOf(err error) ErrorKind {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr.Kind
	}
	return KindTransient
}

// IsGlobal reports whether err must abort the whole tick
func IsGlobal(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindConfiguration:
		return true
	default:
		return false
	}
}

// RenderError reports an article that lacks a mandatory field
type RenderError struct {
	Field   string
	Message string
}

// Error returns the error message
func (e *RenderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cannot render metadata: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("cannot render metadata: missing mandatory field %s", e.Field)
}

// NewRenderError wraps a renderer failure as a KindRender registry error
func NewRenderError(err error) *Error {
	return NewError(KindRender, err.Error(), err)
}

// TransportError classifies an error returned by the HTTP client
func TransportError(err error) *Error {
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return NewError(KindTransient, "registry temporarily unavailable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransient, "request timed out", err)
	}
	return NewError(KindTransient, err.Error(), err)
}

// ClassifyResponse maps a non-2xx response to a registry error, or returns nil
func ClassifyResponse(resp *httpclient.Response, url string) *Error {
	if resp.IsSuccess() {
		return nil
	}

	message := strings.TrimSpace(string(resp.Body))
	if len(message) > 512 {
		message = message[:512]
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	kind := KindTransient
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = KindValidation
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		kind = KindTransient
	default:
		if resp.StatusCode < http.StatusInternalServerError {
			kind = KindValidation
		}
	}

	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: resp.StatusCode,
		Err:        httpclient.NewHTTPError(resp.StatusCode, url, http.StatusText(resp.StatusCode)),
	}
}

// ClassifyRenderError converts a renderer failure into a registry error.
// Errors that are already classified keep their kind.
func ClassifyRenderError(err error) *Error {
	var regErr *Error
	if errors.As(err, &regErr) {
		return regErr
	}
	return NewRenderError(err)
}
