package service

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidToken         = errors.New("invalid ticket token")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrEventNotFound        = errors.New("event not found")
	ErrSoldOut              = errors.New("event is sold out")
	ErrStoreFailure         = errors.New("ticket store unavailable")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrOrderMismatch        = errors.New("payment order does not match ticket")
	ErrGatewayNotConfigured = errors.New("payment gateway secret not configured")
	ErrConfirmationInFlight = errors.New("payment confirmation already in progress")
)
