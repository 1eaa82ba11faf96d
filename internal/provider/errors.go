package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Code is a stable machine-readable failure classification. These are
// the only error kinds the gateway surfaces to callers; provider SDKs
// and raw HTTP failures are always translated into one of them.
type Code string

const (
	CodeNotConfigured        Code = "not_configured"
	CodeInvalidArgument      Code = "invalid_argument"
	CodeUpstreamError        Code = "upstream_error"
	CodeTimeout              Code = "timeout"
	CodeNoProviderConfigured Code = "no_provider_configured"
)

// Upstream subcodes distinguish "your key is wrong" from "try later".
const (
	SubcodeAuthentication = "authentication"
	SubcodePermission     = "permission"
	SubcodeRateLimit      = "rate_limit"
)

// Error wraps a classified invocation failure.
type Error struct {
	Code     Code
	Subcode  string // set for upstream errors with a known kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "provider error"
	case e.Subcode != "":
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Subcode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NotConfigured(provider, hint string) *Error {
	return &Error{
		Code:     CodeNotConfigured,
		Provider: provider,
		Message:  fmt.Sprintf("provider %s is not configured. %s", provider, hint),
	}
}

func InvalidArgument(provider, msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Provider: provider, Message: msg}
}

func Timeout(provider string, err error) *Error {
	return &Error{
		Code:     CodeTimeout,
		Provider: provider,
		Message:  fmt.Sprintf("provider %s call exceeded its deadline", provider),
		Err:      err,
	}
}

func NoProviderConfigured(category, hint string) *Error {
	return &Error{
		Code:    CodeNoProviderConfigured,
		Message: fmt.Sprintf("no %s providers configured. %s", category, hint),
	}
}

// Upstream classifies an HTTP failure status into a stable subcode.
// Unknown statuses degrade to a plain upstream error. The message must
// already be scrubbed of credentials by the calling adapter.
func Upstream(provider string, status int, msg string) *Error {
	e := &Error{
		Code:     CodeUpstreamError,
		Provider: provider,
		Message:  msg,
	}
	switch {
	case status == http.StatusUnauthorized:
		e.Subcode = SubcodeAuthentication
	case status == http.StatusForbidden:
		e.Subcode = SubcodePermission
	case status == http.StatusTooManyRequests:
		e.Subcode = SubcodeRateLimit
	}
	return e
}

// WrapTransport translates transport-level failures (timeouts, context
// deadlines, connection errors) into the taxonomy.
func WrapTransport(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(provider, err)
	}
	return &Error{
		Code:     CodeUpstreamError,
		Provider: provider,
		Message:  fmt.Sprintf("provider %s request failed", provider),
		Err:      err,
	}
}

// Classify returns the taxonomy code for any error, for the ledger's
// error_type column. Unclassified errors count as upstream failures.
func Classify(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUpstreamError
}
