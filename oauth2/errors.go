package oauth2

import "fmt"

// ErrorCode is a standard OAuth2 / OIDC protocol error code, returned to the
// client either as a JSON error body or as redirect parameters.
type ErrorCode string

const (
	ErrInvalidRequest         ErrorCode = "invalid_request"
	ErrInvalidClient          ErrorCode = "invalid_client"
	ErrInvalidGrant           ErrorCode = "invalid_grant"
	ErrInvalidScope           ErrorCode = "invalid_scope"
	ErrUnauthorizedClient     ErrorCode = "unauthorized_client"
	ErrUnsupportedGrantType   ErrorCode = "unsupported_grant_type"
	ErrUnsupportedResponse    ErrorCode = "unsupported_response_type"
	ErrAccessDenied           ErrorCode = "access_denied"
	ErrLoginRequired          ErrorCode = "login_required"
	ErrConsentRequired        ErrorCode = "consent_required"
	ErrInteractionRequired    ErrorCode = "interaction_required"
	ErrSlowDown               ErrorCode = "slow_down"
	ErrAuthorizationPending   ErrorCode = "authorization_pending"
	ErrExpiredToken           ErrorCode = "expired_token"
	ErrTemporarilyUnavailable ErrorCode = "temporarily_unavailable"
	ErrServerError            ErrorCode = "server_error"
)

// Error is the tagged protocol error result. Expected validation failures are
// returned as *Error values rather than raised; only unrecoverable faults use
// plain wrapped errors.
//
// Redirectable distinguishes errors that may be delivered back to the client's
// redirect URI from those that must be rendered on a local error page because
// the client or redirect URI itself could not be trusted.
type Error struct {
	Code         ErrorCode
	Description  string
	Redirectable bool
	State        string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates a non-redirectable (page) protocol error.
func NewError(code ErrorCode, description string) *Error {
	return &Error{Code: code, Description: description}
}

// NewRedirectableError creates a protocol error that is safe to return to the
// client's validated redirect URI.
func NewRedirectableError(code ErrorCode, description, state string) *Error {
	return &Error{Code: code, Description: description, Redirectable: true, State: state}
}

// ErrorResponse is the JSON error body of the token, introspection and device
// authorization endpoints (RFC 6749 §5.2).
type ErrorResponse struct {
	Error            ErrorCode `json:"error"`
	ErrorDescription string    `json:"error_description,omitempty"`
}

// AsErrorResponse converts a protocol error to its wire representation.
func (e *Error) AsErrorResponse() ErrorResponse {
	return ErrorResponse{Error: e.Code, ErrorDescription: e.Description}
}
