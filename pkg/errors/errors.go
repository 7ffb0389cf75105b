// Package errors defines the coded-error taxonomy used across the framework.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents error codes used throughout the framework
type ErrorCode string

const (
	UnrecognizedRequestErrorCode ErrorCode = "slackcore_unrecognized_request_error"
	MalformedBodyErrorCode       ErrorCode = "slackcore_malformed_body_error"

	InvalidSignatureErrorCode        ErrorCode = "slackcore_invalid_signature_error"
	RequestExpiredErrorCode          ErrorCode = "slackcore_request_expired_error"
	MissingSignatureHeadersErrorCode ErrorCode = "slackcore_missing_signature_headers_error"

	NoInstallationFoundErrorCode ErrorCode = "slackcore_no_installation_found_error"

	NoHandlerFoundErrorCode ErrorCode = "slackcore_no_handler_found_error"

	OAuthStateErrorCode        ErrorCode = "slackcore_oauth_state_error"
	OAuthExchangeErrorCode     ErrorCode = "slackcore_oauth_exchange_error"
	OAuthAccessDeniedErrorCode ErrorCode = "slackcore_oauth_access_denied_error"

	UnknownError ErrorCode = "slackcore_unknown_error"
)

// CodedError represents an error with a specific error code
type CodedError interface {
	error
	Code() ErrorCode
	Original() error
	Originals() []error
}

// BaseError implements CodedError interface
type BaseError struct {
	code      ErrorCode
	message   string
	original  error
	originals []error
}

func (e *BaseError) Error() string {
	return e.message
}

func (e *BaseError) Code() ErrorCode {
	return e.code
}

func (e *BaseError) Original() error {
	return e.original
}

func (e *BaseError) Originals() []error {
	return e.originals
}

func (e *BaseError) Unwrap() error {
	return e.original
}

// NewBaseError creates a new BaseError
func NewBaseError(code ErrorCode, message string) *BaseError {
	return &BaseError{
		code:    code,
		message: message,
	}
}

// NewBaseErrorWithOriginal creates a new BaseError with an original error
func NewBaseErrorWithOriginal(code ErrorCode, message string, original error) *BaseError {
	return &BaseError{
		code:     code,
		message:  message,
		original: original,
	}
}

// IsCodedError checks if an error implements CodedError
func IsCodedError(err error) bool {
	var codedErr CodedError
	return errors.As(err, &codedErr)
}

// AsCodedError converts an error to a CodedError, wrapping unknown errors
func AsCodedError(err error) CodedError {
	var codedErr CodedError
	if errors.As(err, &codedErr) {
		return codedErr
	}
	return NewBaseErrorWithOriginal(UnknownError, err.Error(), err)
}

// HasCode reports whether err is (or wraps) a CodedError carrying code.
func HasCode(err error, code ErrorCode) bool {
	var codedErr CodedError
	if errors.As(err, &codedErr) {
		return codedErr.Code() == code
	}
	return false
}

// UnrecognizedRequestError is returned by the RequestParser when none of the
// classification rules match.
type UnrecognizedRequestError struct {
	*BaseError
}

func NewUnrecognizedRequestError(message string) *UnrecognizedRequestError {
	return &UnrecognizedRequestError{BaseError: NewBaseError(UnrecognizedRequestErrorCode, message)}
}

// MalformedBodyError signals a body that claimed a content-type the parser
// could not decode (invalid JSON, invalid form encoding).
type MalformedBodyError struct {
	*BaseError
}

func NewMalformedBodyError(message string, original error) *MalformedBodyError {
	return &MalformedBodyError{BaseError: NewBaseErrorWithOriginal(MalformedBodyErrorCode, message, original)}
}

// InvalidSignatureError is returned when the computed HMAC does not match the
// signature header.
type InvalidSignatureError struct {
	*BaseError
}

func NewInvalidSignatureError(message string) *InvalidSignatureError {
	return &InvalidSignatureError{BaseError: NewBaseError(InvalidSignatureErrorCode, message)}
}

// RequestExpiredError is returned when the request timestamp is outside the
// replay window.
type RequestExpiredError struct {
	*BaseError
}

func NewRequestExpiredError(message string) *RequestExpiredError {
	return &RequestExpiredError{BaseError: NewBaseError(RequestExpiredErrorCode, message)}
}

// MissingSignatureHeadersError is returned when the timestamp or signature
// header is absent.
type MissingSignatureHeadersError struct {
	*BaseError
}

func NewMissingSignatureHeadersError(message string) *MissingSignatureHeadersError {
	return &MissingSignatureHeadersError{BaseError: NewBaseError(MissingSignatureHeadersErrorCode, message)}
}

// NoInstallationFoundError is returned by MultiTeamsAuthorization when the
// InstallationStore has no matching record.
type NoInstallationFoundError struct {
	*BaseError
}

func NewNoInstallationFoundError(message string) *NoInstallationFoundError {
	return &NoInstallationFoundError{BaseError: NewBaseError(NoInstallationFoundErrorCode, message)}
}

// NoHandlerFoundError is returned by the Dispatcher when the HandlerRegistry
// has no match for the selection key.
type NoHandlerFoundError struct {
	*BaseError
	Key string
}

func NewNoHandlerFoundError(key string) *NoHandlerFoundError {
	return &NoHandlerFoundError{
		BaseError: NewBaseError(NoHandlerFoundErrorCode, fmt.Sprintf("no handler found for key %q", key)),
		Key:       key,
	}
}

// OAuthStateError represents a missing, expired, unknown, or already-consumed
// install-state token.
type OAuthStateError struct {
	*BaseError
}

func NewOAuthStateError(message string) *OAuthStateError {
	return &OAuthStateError{BaseError: NewBaseError(OAuthStateErrorCode, message)}
}

// OAuthExchangeError wraps a transport-level failure while exchanging the
// authorization code for tokens; an API-level `ok:false` answer is an
// OAuthAccessDeniedError instead.
type OAuthExchangeError struct {
	*BaseError
}

func NewOAuthExchangeError(message string, original error) *OAuthExchangeError {
	return &OAuthExchangeError{BaseError: NewBaseErrorWithOriginal(OAuthExchangeErrorCode, message, original)}
}

// OAuthAccessDeniedError represents an `ok:false` response from Slack's
// oauth.access / oauth.v2.access endpoints.
type OAuthAccessDeniedError struct {
	*BaseError
}

func NewOAuthAccessDeniedError(message string) *OAuthAccessDeniedError {
	return &OAuthAccessDeniedError{BaseError: NewBaseError(OAuthAccessDeniedErrorCode, message)}
}

// HTTPStatus maps a coded error to the status code its category implies.
// Unknown/uncoded errors map to 500: an uncaught handler error should
// propagate to the HTTP adapter as an internal server error.
func HTTPStatus(err error) int {
	var codedErr CodedError
	if !errors.As(err, &codedErr) {
		return http.StatusInternalServerError
	}
	switch codedErr.Code() {
	case UnrecognizedRequestErrorCode, MalformedBodyErrorCode:
		return http.StatusBadRequest
	case InvalidSignatureErrorCode, RequestExpiredErrorCode, MissingSignatureHeadersErrorCode,
		NoInstallationFoundErrorCode:
		return http.StatusUnauthorized
	case NoHandlerFoundErrorCode:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
