package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Handlers and services use these constants instead of literal strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationVariant      ErrorCode = "validation_invalid_variant"
	ErrCodeValidationCoupon       ErrorCode = "validation_invalid_coupon"
	ErrCodeValidationReference    ErrorCode = "validation_missing_payment_reference"
	ErrCodeValidationProvider     ErrorCode = "validation_payment_provider_disabled"

	// Auth (401)
	ErrCodeAuthTokenMissing       ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid       ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired       ErrorCode = "auth_token_expired"
	ErrCodeAuthInvalidCreds       ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthSignatureInvalid   ErrorCode = "auth_signature_invalid"
	ErrCodeAuthWebhookSecretUnset ErrorCode = "auth_webhook_secret_missing"

	// Permission (403)
	ErrCodePermissionAdmin ErrorCode = "permission_admin_required"

	// Not Found (404)
	ErrCodeNotFoundOrder   ErrorCode = "not_found_order"
	ErrCodeNotFoundProduct ErrorCode = "not_found_product"
	ErrCodeNotFoundVariant ErrorCode = "not_found_variant"

	// Conflict (409)
	ErrCodeConflictRefunded   ErrorCode = "conflict_order_refunded"
	ErrCodeConflictTransition ErrorCode = "conflict_transition_rejected"

	// Payment
	ErrCodePaymentPending  ErrorCode = "payment_pending"
	ErrCodePaymentDeclined ErrorCode = "payment_declined"

	// Unavailable (503)
	ErrCodeMaintenance        ErrorCode = "unavailable_maintenance_mode"
	ErrCodeProductUnavailable ErrorCode = "unavailable_product_down"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeInternalKeyAllocation ErrorCode = "internal_key_allocation_failed"
	ErrCodeUpstreamStripe        ErrorCode = "upstream_stripe_unavailable"
	ErrCodeUpstreamCardSetup     ErrorCode = "upstream_cardsetup_unavailable"
	ErrCodeUpstreamKeySource     ErrorCode = "upstream_key_source_failed"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
)

// ErrTransitionRejected is returned by the order repository when a conditional
// status update matched no row because the order left the allowed states.
var ErrTransitionRejected = errors.New("order status transition rejected")

// ErrKeyValueTaken is returned by the key repository when the license key
// value itself is already issued, as opposed to the order already having a key.
var ErrKeyValueTaken = errors.New("license key value already issued")

// HTTPStatus maps an ErrorCode to its HTTP status code.
// Unrecognized codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case s == string(ErrCodePaymentPending):
		return http.StatusAccepted
	case s == string(ErrCodePaymentDeclined):
		return http.StatusPaymentRequired
	case strings.HasPrefix(s, "unavailable_"):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Handlers translate it into
// the JSON error envelope using Code.HTTPStatus().
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{Code: e.Code, Message: e.Message, Err: e.Err, Details: merged}
}

// NewAppError creates an AppError with an optional underlying cause.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails creates an AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

// CodeOf extracts the ErrorCode from an error chain, or "" when the chain holds
// no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
