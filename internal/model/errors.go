package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the canonical code carried by every ProviderError.
type ErrorKind string

const (
	KindConfig          ErrorKind = "CONFIG_INVALID"
	KindAuth            ErrorKind = "MISTRAL_AUTH"
	KindRateLimit       ErrorKind = "MISTRAL_RATE_LIMIT"
	KindServer          ErrorKind = "MISTRAL_SERVER"
	KindUnclassified    ErrorKind = "MISTRAL_API_ERROR"
	KindSchema          ErrorKind = "MISTRAL_SCHEMA"
	KindEmptyCompletion ErrorKind = "EMPTY_COMPLETION"
	KindTransport       ErrorKind = "MISTRAL_TRANSPORT"
	KindInvalidRequest  ErrorKind = "INVALID_REQUEST"
)

// Retryable reports whether a caller may reasonably try the same call again
// later. The client itself never retries.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindServer, KindTransport:
		return true
	default:
		return false
	}
}

type ProviderError struct {
	Code       ErrorKind
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError builds a ProviderError whose Retryable flag follows the kind.
func NewError(kind ErrorKind, message string) *ProviderError {
	return &ProviderError{Code: kind, Message: message, Retryable: kind.Retryable()}
}

// Errorf is NewError with fmt formatting.
func Errorf(kind ErrorKind, format string, args ...interface{}) *ProviderError {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WrapError attaches cause to a new ProviderError of the given kind.
func WrapError(kind ErrorKind, message string, cause error) *ProviderError {
	pe := NewError(kind, message)
	pe.Cause = cause
	return pe
}

// KindOf returns the code of the first ProviderError in err's chain, or ""
// when there is none.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) && pe != nil {
		return pe.Code
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
