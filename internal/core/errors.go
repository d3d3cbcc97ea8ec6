package core

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialMissing = errors.New("API credential is missing")
	ErrCredentialInvalid = errors.New("API credential was rejected")
	ErrNoJSONFound       = errors.New("no JSON object found in model output")
	ErrMalformedJSON     = errors.New("model output contains malformed JSON")
	ErrTransport         = errors.New("model call failed")
)

// ParseError is returned by ParseFanout. Kind is ErrNoJSONFound or
// ErrMalformedJSON.
type ParseError struct {
	Kind     error
	Raw      string
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Diagnostic is the text worth showing next to the error: the offending
// fragment for malformed JSON, the raw output otherwise.
func (e *ParseError) Diagnostic() string {
	if e.Fragment != "" {
		return e.Fragment
	}
	return e.Raw
}

// RunError is a failure of the model call itself.
type RunError struct {
	Kind error
	Raw  string
	Err  error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *RunError) Diagnostic() string {
	return e.Raw
}

// ErrorKind returns a stable identifier for err, suitable for logs, state and
// API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredentialMissing):
		return "credential_missing"
	case errors.Is(err, ErrCredentialInvalid):
		return "credential_invalid"
	case errors.Is(err, ErrNoJSONFound):
		return "no_json_found"
	case errors.Is(err, ErrMalformedJSON):
		return "malformed_json"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "error"
	}
}

// Diagnostic extracts the raw text or fragment carried by err, if any.
func Diagnostic(err error) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Diagnostic()
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Diagnostic()
	}
	return ""
}
