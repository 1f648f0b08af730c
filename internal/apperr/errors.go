// Package apperr holds the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindPayment
	KindProvider
)

// Error carries a stable machine code, a message safe to show users and an optional internal cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that a sentinel and a detailed copy of it compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// StatusCode maps the kind onto an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayment:
		return http.StatusPaymentRequired
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// With returns a copy of e with a user-facing message override.
func (e *Error) With(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// From extracts an *Error from err, falling back to an internal error that hides the cause.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.Wrap(err)
}

var (
	ErrInternal       = New(KindInternal, "internal_error", "something went wrong, please try again")
	ErrInvalidRequest = New(KindValidation, "invalid_request", "invalid request")
	ErrUnauthorized   = New(KindUnauthorized, "unauthorized", "please log in to continue")
	ErrForbidden      = New(KindForbidden, "forbidden", "you are not allowed to perform this action")

	ErrInvalidQuantity    = New(KindValidation, "invalid_quantity", "quantity must be greater than zero")
	ErrInsufficientStock  = New(KindConflict, "insufficient_stock", "not enough tickets left for this ticket type")
	ErrTicketTypeNotFound = New(KindNotFound, "ticket_type_not_found", "ticket type not found for this event")
	ErrTicketTypeSold     = New(KindConflict, "ticket_type_sold", "tickets of this type have already been sold")
	ErrTicketNotFound     = New(KindNotFound, "ticket_not_found", "ticket not found")
	ErrTicketNotPending   = New(KindConflict, "ticket_not_pending", "only pending tickets can be cancelled")
	ErrInvalidQRCode      = New(KindValidation, "invalid_qr_code", "the QR code is not valid")

	ErrEventNotFound = New(KindNotFound, "event_not_found", "event not found")
	ErrEventHasSales = New(KindConflict, "event_has_sales", "the event cannot be deleted because tickets have been sold")

	ErrPaymentNotCompleted = New(KindPayment, "payment_not_completed", "the payment has not been completed")
	ErrCheckoutClosed      = New(KindConflict, "checkout_closed", "this checkout session can no longer be cancelled")
	ErrPaymentProvider     = New(KindProvider, "payment_provider_error", "the payment provider is unavailable, please try again")
	ErrInvalidSession      = New(KindValidation, "invalid_checkout_session", "invalid checkout session")

	ErrUserNotFound        = New(KindNotFound, "user_not_found", "user not found")
	ErrInvalidCredentials  = New(KindUnauthorized, "invalid_credentials", "invalid email or password")
	ErrAccountExists       = New(KindConflict, "account_exists", "an account with this email or username already exists")
	ErrRequestNotAllowed   = New(KindForbidden, "organizer_request_not_allowed", "only regular users can request organizer access")
	ErrRequestPending      = New(KindConflict, "organizer_request_pending", "an organizer request is already pending")
	ErrNoPendingRequest    = New(KindConflict, "no_pending_request", "there is no pending organizer request for this user")
	ErrInvalidPhone        = New(KindValidation, "invalid_phone", "the phone number must contain at least 8 digits")
	ErrInvalidIdentityType = New(KindValidation, "invalid_identity_type", "identity document type must be CNI, Passeport or Permis")
	ErrMissingDocuments    = New(KindValidation, "missing_identity_documents", "both sides of the identity document are required")

	ErrFileTooLarge     = New(KindValidation, "file_too_large", "the uploaded file is too large")
	ErrFileTypeInvalid  = New(KindValidation, "file_type_not_allowed", "the uploaded file type is not allowed")
	ErrDocumentNotFound = New(KindNotFound, "document_not_found", "identity document not found")
)
