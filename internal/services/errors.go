package services

import (
	"errors"
	"net/http"
)

// Sentinel errors for the balance, billing and settlement paths. Handlers
// map them to HTTP status codes with StatusForError; services wrap them
// with context via fmt.Errorf("...: %w", err).
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidOperation    = errors.New("invalid operation")
	ErrInvalidInterval     = errors.New("end instant precedes start instant")
	ErrPaymentFailed       = errors.New("payment declined")
	ErrPaymentTimeout      = errors.New("payment gateway timeout")

	// ErrConsistency signals a logic defect (post-repair drift, failed
	// settlement replacement). It must abort the run and alert, never be
	// swallowed or auto-corrected past one repair attempt.
	ErrConsistency = errors.New("consistency violation")
)

// StatusForError translates a service error into an HTTP status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrInvalidInterval):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrPaymentFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrPaymentTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
