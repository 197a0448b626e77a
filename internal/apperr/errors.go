// Package apperr définit la taxonomie d'erreurs métier et sa correspondance HTTP.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classe une erreur métier.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Conflict
	Forbidden
	Unauthorized
	OutOfStock
	DomainState
	Signature
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Forbidden:
		return "forbidden"
	case Unauthorized:
		return "unauthorized"
	case OutOfStock:
		return "out_of_stock"
	case DomainState:
		return "domain_state"
	case Signature:
		return "signature"
	default:
		return "internal"
	}
}

// Error porte le type, le message renvoyé au client et la cause interne éventuelle.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attache une cause à une erreur typée.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Invalid(msg string) *Error { return New(Validation, msg) }
func Missing(msg string) *Error { return New(NotFound, msg) }
func Duplicate(msg string) *Error { return New(Conflict, msg) }
func Denied(msg string) *Error { return New(Forbidden, msg) }
func Unauthenticated(msg string) *Error { return New(Unauthorized, msg) }

// Internalf enveloppe une erreur technique; le message client reste générique.
func Internalf(err error, format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: "erreur interne", Err: fmt.Errorf(format+": %w", append(args, err)...)}
}

// KindOf renvoie le type de l'erreur, Internal pour toute erreur non typée.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is rapporte si err est une erreur métier du type donné.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Message renvoie le message destiné au client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "erreur interne"
}

// Status convertit une erreur en code HTTP.
func Status(err error) int {
	switch KindOf(err) {
	case Validation, DomainState, Signature:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict, OutOfStock:
		return http.StatusConflict
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
