// Package errors defines the structured error type shared by the cache service.
//
// Errors carry a Type that callers (most notably the management API) use to
// decide whether a failure is a business condition, such as a missing key or
// an invalid TTL, or a system failure in one of the backing stores.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorType string

const (
	// Business types: the caller asked for something invalid or absent.
	ErrTypeValidation ErrorType = "validation"
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeConfig     ErrorType = "config"

	// System types: a backend or the service itself failed.
	ErrTypeConnection ErrorType = "connection"
	ErrTypeStorage    ErrorType = "storage"
	ErrTypeInternal   ErrorType = "internal"
)

// Business reports whether errors of this type are the caller's problem.
func (t ErrorType) Business() bool {
	switch t {
	case ErrTypeValidation, ErrTypeNotFound, ErrTypeConfig:
		return true
	default:
		return false
	}
}

// AppError is a typed error with an optional cause and key/value context.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error renders "type: message", then the cause and the context sorted by key.
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if e.Cause != nil {
		fmt.Fprintf(&b, ": cause=%v", e.Cause)
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
		}
		fmt.Fprintf(&b, ": context={%s}", strings.Join(pairs, ", "))
	}
	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext records key=value on e and returns e for chaining.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(t ErrorType, msg string, cause error) *AppError {
	return &AppError{Type: t, Message: msg, Cause: cause}
}

// ConnectionError reports that a backend could not be reached.
func ConnectionError(msg string, cause error) *AppError {
	return newError(ErrTypeConnection, msg, cause)
}

func ValidationError(msg string) *AppError {
	return newError(ErrTypeValidation, msg, nil)
}

func ConfigError(msg string) *AppError {
	return newError(ErrTypeConfig, msg, nil)
}

// NotFoundError reports "<resource> not found".
func NotFoundError(resource string) *AppError {
	return newError(ErrTypeNotFound, resource+" not found", nil)
}

// StorageError wraps a failure of the persistence store or the shared store.
func StorageError(msg string, cause error) *AppError {
	return newError(ErrTypeStorage, msg, cause)
}

func InternalError(msg string, cause error) *AppError {
	return newError(ErrTypeInternal, msg, cause)
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// IsType reports whether the first AppError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == errType
}

// GetType returns the type of err's AppError, ErrTypeInternal for any other
// error and "" for nil.
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrTypeInternal
}

// IsBusiness reports whether err describes a caller mistake or a logical miss
// rather than a backend failure.
func IsBusiness(err error) bool {
	return GetType(err).Business()
}
