package domain

import (
	"errors"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindNotFound           ErrorKind = "not_found"
	KindExpired            ErrorKind = "expired"
	KindNoResponse         ErrorKind = "no_response"
	KindServer             ErrorKind = "server_error"
	KindMissingToken       ErrorKind = "missing_token"
	KindValidation         ErrorKind = "validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrExpired            = errors.New("expired")
	ErrNoResponse         = errors.New("no response")
	ErrServer             = errors.New("server error")
	ErrMissingToken       = errors.New("missing token")
	ErrValidation         = errors.New("validation")
)

var kindErrors = map[ErrorKind]error{
	KindInvalidCredentials: ErrInvalidCredentials,
	KindNotFound:           ErrNotFound,
	KindExpired:            ErrExpired,
	KindNoResponse:         ErrNoResponse,
	KindServer:             ErrServer,
	KindMissingToken:       ErrMissingToken,
	KindValidation:         ErrValidation,
}

// AuthError is what the auth flow hands to the presentation layer: a class
// from the taxonomy plus a message fit for the inline banner.
type AuthError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *AuthError) Unwrap() []error {
	errs := []error{kindErrors[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func NewError(kind ErrorKind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

func Validation(message string) *AuthError {
	return &AuthError{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

// Classify maps a non-2xx backend status onto the taxonomy. message is the
// server-provided text, if any.
func Classify(status int, message string) *AuthError {
	e := &AuthError{Status: status, Message: strings.TrimSpace(message)}
	switch status {
	case http.StatusUnauthorized:
		e.Kind = KindInvalidCredentials
	case http.StatusNotFound:
		e.Kind = KindNotFound
	case http.StatusGone:
		e.Kind = KindExpired
	default:
		e.Kind = KindServer
	}
	return e
}

// KindOf returns the taxonomy class of err, KindServer for anything foreign.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for kind, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindServer
}
