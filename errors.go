package scribe

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Kind is the closed set of failure categories the service reports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindRateLimited
	KindNotFound
	KindUnauthorized
	KindCodeExpired
	KindTokenExpired
)

// Error carries a failure kind plus a user-facing message. Handlers return
// these and the centralized responder serializes them; anything that is not
// an *Error is reported as an internal error with a generic message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// E builds an *Error for the given kind.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Status maps a failure kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindCodeExpired, KindTokenExpired:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors shared between the stores and the responder.
var (
	// ErrMalformedID is returned by stores when a supplied record id cannot
	// be decoded for the backend (e.g. a bad hex ObjectID).
	ErrMalformedID = E(KindValidation, "Resource not found. Invalid id.")

	// ErrDuplicateEmail is returned by stores on a unique email violation.
	ErrDuplicateEmail = E(KindConflict, "Email is already registered.")

	ErrUserNotFound = E(KindNotFound, "User not found.")
	ErrNoteNotFound = E(KindNotFound, "Note not found.")
)

// Classify rewrites well-known failure shapes into the stable taxonomy.
// Unrecognized errors default to an internal error so that nothing leaky
// reaches the client.
func Classify(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return E(KindUnauthorized, "Session has expired. Please login again.")
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrSignatureInvalid),
		errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return E(KindUnauthorized, "Session is invalid. Please login again.")
	}
	return E(KindInternal, "Internal Server Error")
}

// ErrorResponder funnels every handler failure into one JSON shape.
type ErrorResponder struct {
	Logger *zap.Logger

	// Development controls whether stack traces are included in responses.
	Development bool
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Respond writes err to w using the stable taxonomy. The original error is
// logged; the client only ever sees the rewritten message.
func (er *ErrorResponder) Respond(w http.ResponseWriter, r *http.Request, err error) {
	appErr := Classify(err)
	if appErr.Kind == KindInternal {
		er.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		er.Logger.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", appErr.Kind.Status()),
			zap.String("message", appErr.Message))
	}

	body := errorBody{Success: false, Message: appErr.Message}
	if er.Development {
		body.Stack = string(debug.Stack())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Kind.Status())
	json.NewEncoder(w).Encode(body)
}
