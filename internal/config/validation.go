package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/giantswarm/deskauth/internal/oauth"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// addErr appends err if it is a ValidationError.
func (ve *ValidationErrors) addErr(err error) {
	if verr, ok := err.(ValidationError); ok {
		*ve = append(*ve, verr)
	}
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "is required",
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateIssuerURL checks that an issuer is an absolute https URL. Plain http
// is accepted for loopback hosts only.
func ValidateIssuerURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return ValidationError{Field: field, Value: value, Message: "must be an absolute URL"}
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return ValidationError{Field: field, Value: value, Message: "must use https"}
}

// ValidateRedirectURI checks that a redirect URI has a scheme and carries no
// fragment (RFC 6749 section 3.1.2).
func ValidateRedirectURI(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" {
		return ValidationError{Field: field, Value: value, Message: "must be an absolute URI"}
	}
	if u.Fragment != "" {
		return ValidationError{Field: field, Value: value, Message: "must not contain a fragment"}
	}
	return nil
}

// ValidateServedRedirect checks that an http(s) redirect URI points at the
// address the IPC server listens on, since that server receives the browser's
// redirect. Other schemes are delivered by the OS URL handler and pass.
func ValidateServedRedirect(field, value, ipcAddress string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	if !strings.EqualFold(u.Host, ipcAddress) {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("loopback redirect must use the IPC address %s", ipcAddress),
		}
	}
	return nil
}

// ValidateDistinctRedirect checks that value does not name the same endpoint
// as other. Scheme and host compare case-insensitively; query is ignored.
func ValidateDistinctRedirect(field, value, otherField, other string) error {
	u, err := url.Parse(value)
	if err != nil {
		return nil
	}
	o, err := url.Parse(other)
	if err != nil {
		return nil
	}
	if strings.EqualFold(u.Scheme, o.Scheme) && strings.EqualFold(u.Host, o.Host) &&
		endpointPath(u) == endpointPath(o) {
		return ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must differ from %s", otherField)}
	}
	return nil
}

func endpointPath(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return strings.TrimSuffix(p, "/")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var errs ValidationErrors

	if err := ValidateRequired("issuer", c.Issuer); err != nil {
		errs.addErr(err)
	} else {
		errs.addErr(ValidateIssuerURL("issuer", c.Issuer))
	}

	errs.addErr(ValidateRequired("clientID", c.ClientID))

	if err := ValidateRequired("redirectURI", c.RedirectURI); err != nil {
		errs.addErr(err)
	} else {
		errs.addErr(ValidateRedirectURI("redirectURI", c.RedirectURI))
	}

	// Logout waits for the browser to come back on this URI.
	if err := ValidateRequired("postLogoutRedirectURI", c.PostLogoutRedirectURI); err != nil {
		errs.addErr(err)
	} else if err := ValidateRedirectURI("postLogoutRedirectURI", c.PostLogoutRedirectURI); err != nil {
		errs.addErr(err)
	} else if c.RedirectURI != "" {
		errs.addErr(ValidateDistinctRedirect("postLogoutRedirectURI", c.PostLogoutRedirectURI, "redirectURI", c.RedirectURI))
	}

	errs.addErr(ValidateOneOf("logout.style", c.Logout.Style,
		[]string{oauth.LogoutStyleStandard, oauth.LogoutStyleCognito}))

	errs.addErr(ValidateOneOf("logLevel", strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "warning", "error"}))
	errs.addErr(ValidateOneOf("logFormat", c.LogFormat, []string{"text", "json"}))

	if c.HTTPTimeout <= 0 {
		errs.Add("httpTimeout", "must be positive", c.HTTPTimeout)
	}
	if c.MaxPendingLogins < 0 {
		errs.Add("maxPendingLogins", "must not be negative", c.MaxPendingLogins)
	}
	if _, _, err := net.SplitHostPort(c.IPC.Address); err != nil {
		errs.Add("ipc.address", "must be host:port", c.IPC.Address)
	} else {
		errs.addErr(ValidateServedRedirect("redirectURI", c.RedirectURI, c.IPC.Address))
		if c.PostLogoutRedirectURI != "" {
			errs.addErr(ValidateServedRedirect("postLogoutRedirectURI", c.PostLogoutRedirectURI, c.IPC.Address))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
