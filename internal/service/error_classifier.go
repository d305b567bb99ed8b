package service

import (
	"errors"
	"net/http"

	"chat-client/internal/authapi"
)

// ErrorKind es la taxonomia estable de fallos que ve la capa de presentacion.
type ErrorKind int

const (
	KindNetworkUnreachable ErrorKind = iota + 1
	KindInvalidInput
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindServerError
	KindUnknownRemoteError
	KindUnauthenticated
	KindSessionExpired
	KindRefreshFailed
	KindInvalidCredentialChange
)

var kindNames = map[ErrorKind]string{
	KindNetworkUnreachable:      "network_unreachable",
	KindInvalidInput:            "invalid_input",
	KindUnauthorized:            "unauthorized",
	KindForbidden:               "forbidden",
	KindNotFound:                "not_found",
	KindRateLimited:             "rate_limited",
	KindServerError:             "server_error",
	KindUnknownRemoteError:      "unknown_remote_error",
	KindUnauthenticated:         "unauthenticated",
	KindSessionExpired:          "session_expired",
	KindRefreshFailed:           "refresh_failed",
	KindInvalidCredentialChange: "invalid_credential_change",
}

var defaultMessages = map[ErrorKind]string{
	KindNetworkUnreachable:      "cannot reach server.",
	KindInvalidInput:            "please check your input.",
	KindUnauthorized:            "authentication failed.",
	KindForbidden:               "access denied.",
	KindNotFound:                "the requested resource was not found.",
	KindRateLimited:             "too many requests. please try again later.",
	KindServerError:             "server error. please try again later.",
	KindUnknownRemoteError:      "an error occurred while processing the request.",
	KindUnauthenticated:         "no authentication information.",
	KindSessionExpired:          "session expired. please log in again.",
	KindRefreshFailed:           "token refresh failed.",
	KindInvalidCredentialChange: "current password does not match.",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// DefaultMessage devuelve el texto fijo de cada tipo.
func (k ErrorKind) DefaultMessage() string {
	return defaultMessages[k]
}

// ClassifiedError es un fallo normalizado con mensaje listo para mostrar.
type ClassifiedError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ClassifiedError) Error() string {
	return e.Message
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Is compara por tipo, asi errors.Is(err, ErrSessionExpired) funciona con
// cualquier mensaje.
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNetworkUnreachable      = sentinel(KindNetworkUnreachable)
	ErrInvalidInput            = sentinel(KindInvalidInput)
	ErrUnauthorized            = sentinel(KindUnauthorized)
	ErrForbidden               = sentinel(KindForbidden)
	ErrNotFound                = sentinel(KindNotFound)
	ErrRateLimited             = sentinel(KindRateLimited)
	ErrServerError             = sentinel(KindServerError)
	ErrUnknownRemoteError      = sentinel(KindUnknownRemoteError)
	ErrUnauthenticated         = sentinel(KindUnauthenticated)
	ErrSessionExpired          = sentinel(KindSessionExpired)
	ErrRefreshFailed           = sentinel(KindRefreshFailed)
	ErrInvalidCredentialChange = sentinel(KindInvalidCredentialChange)
)

func sentinel(kind ErrorKind) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Message: kind.DefaultMessage()}
}

func newClassified(kind ErrorKind, message string, cause error) *ClassifiedError {
	if message == "" {
		message = kind.DefaultMessage()
	}
	return &ClassifiedError{Kind: kind, Message: message, Err: cause}
}

// Classify etiqueta el resultado fallido de una llamada remota. No recupera
// nada: es una funcion pura.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	var netErr *authapi.NetworkError
	if errors.As(err, &netErr) {
		return newClassified(KindNetworkUnreachable, "", err)
	}

	var statusErr *authapi.StatusError
	if !errors.As(err, &statusErr) {
		// Sin respuesta del servidor (request no construido, contexto cancelado).
		return newClassified(KindNetworkUnreachable, "", err)
	}

	return newClassified(kindForStatus(statusErr.StatusCode), statusErr.Message, err)
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindInvalidInput
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindServerError
	default:
		return KindUnknownRemoteError
	}
}

// KindOf devuelve el tipo de un error clasificado, o cero si no lo es.
func KindOf(err error) ErrorKind {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return 0
}
