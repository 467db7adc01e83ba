package domain

import (
	"encoding/json"
	"net/http"
)

// Error represents the standard error response format. Stop mirrors the
// allocation driver's stop-flag: true means the retry loop must not retry.
type Error struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter int         `json:"retry_after,omitempty"`
	Stop       bool        `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// Error codes following ERR_SNAKE_CASE convention
const (
	ErrInvalidRequest       = "ERR_INVALID_REQUEST"
	ErrUnauthorized         = "ERR_UNAUTHORIZED"
	ErrForbidden            = "ERR_FORBIDDEN"
	ErrNotFound             = "ERR_NOT_FOUND"
	ErrCIDROverlap          = "ERR_CIDR_OVERLAP"
	ErrCIDRInvalid          = "ERR_CIDR_INVALID"
	ErrIdempotencyConflict  = "ERR_IDEMPOTENCY_CONFLICT"
	ErrInternalServer       = "ERR_INTERNAL_SERVER"
	ErrNotImplemented       = "ERR_NOT_IMPLEMENTED"
	ErrInvalidAddress       = "ERR_INVALID_ADDRESS"
	ErrInvalidParams        = "ERR_INVALID_PARAMS"
	ErrDuplicateParam       = "ERR_DUPLICATE_PARAM"
	ErrIPInUse              = "ERR_IP_IN_USE"
	ErrIPUsedBy             = "ERR_IP_USED_BY"
	ErrSubnetFull           = "ERR_SUBNET_FULL"
	ErrPoolFull             = "ERR_POOL_FULL"
	ErrNoFreeMAC            = "ERR_NO_FREE_MAC"
	ErrMACDuplicate         = "ERR_MAC_DUPLICATE"
	ErrVersionConflict      = "ERR_VERSION_CONFLICT"
	ErrUniqueConflict       = "ERR_UNIQUE_CONFLICT"
	ErrTransient            = "ERR_TRANSIENT"
	ErrRateLimited          = "ERR_RATE_LIMITED"
)

// NewError creates a new domain error
func NewError(code, message string, details interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewStopError creates a non-retryable domain error (the allocation driver's stop-flag).
func NewStopError(code, message string, details interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details, Stop: true}
}

// ToHTTPStatus maps domain error codes to HTTP status codes
func (e *Error) ToHTTPStatus() int {
	switch e.Code {
	case ErrInvalidRequest, ErrCIDRInvalid, ErrInvalidAddress, ErrInvalidParams:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrCIDROverlap, ErrIdempotencyConflict, ErrDuplicateParam, ErrIPInUse, ErrIPUsedBy,
		ErrSubnetFull, ErrPoolFull, ErrNoFreeMAC, ErrMACDuplicate:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts error to JSON response
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}