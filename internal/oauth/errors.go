package oauth

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgoauth "github.com/giantswarm/deskauth/pkg/oauth"
)

// Code identifies a member of the authentication error taxonomy.
type Code string

const (
	// CodeLoginRequired means no usable access token is held. It is a signal to
	// start a login, not an application failure.
	CodeLoginRequired Code = "login_required"

	CodeLoginRequestFailed           Code = "login_request_failed"
	CodeLoginResponseFailed          Code = "login_response_failed"
	CodeInvalidLoginResponseState    Code = "invalid_login_response_state"
	CodeAuthorizationCodeGrantFailed Code = "authorization_code_grant_failed"
	CodeTokenRenewalError            Code = "token_renewal_error"
	CodeLogoutRequestFailed          Code = "logout_request_failed"
	CodeIPCForbidden                 Code = "ipc_forbidden"

	// CodeGeneralError is the technical fallback for anything unclassified.
	CodeGeneralError Code = "general_exception"
)

// Areas group codes by the operation that failed.
const (
	AreaLogin        = "Login"
	AreaTokenRenewal = "Token Renewal"
	AreaLogout       = "Logout"
	AreaIPC          = "IPC"
	AreaDesktopApp   = "Desktop App"
)

// maxStackFrames bounds the captured stack.
const maxStackFrames = 16

// AuthError is the single error type that crosses component boundaries.
// OAuth protocol payloads are flattened into Details before they get here.
type AuthError struct {
	Area        string
	Code        Code
	UserMessage string
	UserAction  string
	UTCTime     time.Time
	StatusCode  int
	InstanceID  string
	Details     string
	URL         string
	Stack       string

	cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString(e.UserMessage)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	fmt.Fprintf(&b, " (%s/%s)", e.Area, e.Code)
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *AuthError) Unwrap() error {
	return e.cause
}

// Is matches any *AuthError target with the same code, so callers can write
// errors.Is(err, oauth.ErrLoginRequired).
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ErrLoginRequired is a sentinel for errors.Is comparisons.
var ErrLoginRequired = &AuthError{Code: CodeLoginRequired}

// IsLoginRequired reports whether err means the user must sign in.
func IsLoginRequired(err error) bool {
	return errors.Is(err, ErrLoginRequired)
}

// CodeOf returns the taxonomy code of err, or CodeGeneralError for foreign errors.
func CodeOf(err error) Code {
	var aerr *AuthError
	if errors.As(err, &aerr) {
		return aerr.Code
	}
	return CodeGeneralError
}

func newAuthError(area string, code Code, userMessage, userAction string, cause error) *AuthError {
	e := &AuthError{
		Area:        area,
		Code:        code,
		UserMessage: userMessage,
		UserAction:  userAction,
		UTCTime:     time.Now().UTC(),
		InstanceID:  uuid.NewString(),
		Stack:       captureStack(3),
		cause:       cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}

	var perr *pkgoauth.ProtocolError
	if errors.As(cause, &perr) {
		e.StatusCode = perr.StatusCode
		e.Details = protocolDetails(perr.Code, perr.Description)
	}

	var merr *MetadataError
	if errors.As(cause, &merr) {
		e.URL = merr.URL
	}
	return e
}

// protocolDetails flattens the RFC 6749 error members into a single string.
func protocolDetails(code, description string) string {
	switch {
	case code == "" && description == "":
		return ""
	case description == "":
		return code
	case code == "":
		return description
	default:
		return code + ": " + description
	}
}

// NewLoginRequiredError returns the LoginRequired signal.
func NewLoginRequiredError() *AuthError {
	return newAuthError(AreaLogin, CodeLoginRequired,
		"No access token is available and a login is required", "Please sign in", nil)
}

// NewLoginRequestError reports a failure before or while opening the browser.
func NewLoginRequestError(cause error) *AuthError {
	return newAuthError(AreaLogin, CodeLoginRequestFailed,
		"A technical problem occurred during login processing", "Please retry the operation", cause)
}

// NewLoginResponseError maps an OAuth error carried on the login redirect.
func NewLoginResponseError(code, description string) *AuthError {
	e := newAuthError(AreaLogin, CodeLoginResponseFailed,
		"The authorization server rejected the login request", "Please retry the operation", nil)
	e.Details = protocolDetails(code, description)
	return e
}

// NewInvalidStateError reports a login response whose state does not match the request.
func NewInvalidStateError() *AuthError {
	e := newAuthError(AreaLogin, CodeInvalidLoginResponseState,
		"The login response state did not match the login request", "Please retry the operation", nil)
	e.Details = "state mismatch"
	return e
}

// NewAuthorizationCodeGrantError reports a failed code exchange.
func NewAuthorizationCodeGrantError(cause error) *AuthError {
	return newAuthError(AreaLogin, CodeAuthorizationCodeGrantFailed,
		"A technical problem occurred while completing the login", "Please retry the operation", cause)
}

// NewTokenRenewalError reports a failed refresh that is not invalid_grant.
func NewTokenRenewalError(cause error) *AuthError {
	return newAuthError(AreaTokenRenewal, CodeTokenRenewalError,
		"A technical problem occurred while renewing the access token", "Please retry the operation", cause)
}

// NewLogoutRequestError reports a failure to start a logout.
func NewLogoutRequestError(cause error) *AuthError {
	return newAuthError(AreaLogout, CodeLogoutRequestFailed,
		"A technical problem occurred during logout processing", "Please retry the operation", cause)
}

// NewIPCForbiddenError reports a request from an untrusted sender.
func NewIPCForbiddenError(details string) *AuthError {
	e := newAuthError(AreaIPC, CodeIPCForbidden,
		"The request was rejected because its sender is not trusted", "Please restart the application", nil)
	e.Details = details
	return e
}

// NewGeneralError wraps an unclassified failure.
func NewGeneralError(area string, cause error) *AuthError {
	return newAuthError(area, CodeGeneralError,
		"A technical problem was encountered", "Please retry the operation", cause)
}

// AsAuthError returns err as an *AuthError, wrapping foreign errors in the
// general technical fallback.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var aerr *AuthError
	if errors.As(err, &aerr) {
		return aerr
	}
	return NewGeneralError(AreaDesktopApp, err)
}

// ErrorData is the flat form of AuthError used across the process boundary.
type ErrorData struct {
	Area        string `json:"area"`
	Code        string `json:"code"`
	UserMessage string `json:"userMessage"`
	UserAction  string `json:"userAction,omitempty"`
	UTCTime     string `json:"utcTime"`
	StatusCode  int    `json:"statusCode,omitempty"`
	InstanceID  string `json:"instanceId"`
	Details     string `json:"details,omitempty"`
	URL         string `json:"url,omitempty"`
	Stack       string `json:"stack,omitempty"`
}

// Data flattens the error for serialization.
func (e *AuthError) Data() ErrorData {
	return ErrorData{
		Area:        e.Area,
		Code:        string(e.Code),
		UserMessage: e.UserMessage,
		UserAction:  e.UserAction,
		UTCTime:     e.UTCTime.Format(time.RFC3339Nano),
		StatusCode:  e.StatusCode,
		InstanceID:  e.InstanceID,
		Details:     e.Details,
		URL:         e.URL,
		Stack:       e.Stack,
	}
}

// FromData reconstructs an AuthError serialized with Data.
func FromData(d ErrorData) *AuthError {
	e := &AuthError{
		Area:        d.Area,
		Code:        Code(d.Code),
		UserMessage: d.UserMessage,
		UserAction:  d.UserAction,
		StatusCode:  d.StatusCode,
		InstanceID:  d.InstanceID,
		Details:     d.Details,
		URL:         d.URL,
		Stack:       d.Stack,
	}
	if t, err := time.Parse(time.RFC3339Nano, d.UTCTime); err == nil {
		e.UTCTime = t
	}
	if e.Code == "" {
		e.Code = CodeGeneralError
	}
	return e
}

// captureStack renders the caller's stack, skipping the given number of frames.
func captureStack(skip int) string {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
