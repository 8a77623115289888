package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a relay failure. Each kind maps to one HTTP status family.
type Kind int

const (
	// KindConfiguration means the provider credential is missing.
	KindConfiguration Kind = iota + 1
	// KindValidation means the caller sent malformed or missing input.
	KindValidation
	// KindUpstream means the provider answered with a failure or could not be reached.
	KindUpstream
	// KindMalformedResponse means the provider answered with success but
	// without the expected payload field.
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by relays and provider adapters.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Status   int
	// Detail is passed through to the caller verbatim (raw upstream body,
	// provider message or decoded payload).
	Detail any
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status the HTTP layer should answer with.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func ConfigurationError(provider, credential string) *Error {
	return &Error{
		Kind:     KindConfiguration,
		Provider: provider,
		Message:  credential + " not configured",
		Status:   http.StatusInternalServerError,
	}
}

func ValidationError(message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// UpstreamStatusError reports a non-success HTTP status from a provider.
// The body is kept as-is so callers see exactly what the vendor said.
func UpstreamStatusError(provider string, status int, body string) *Error {
	if status < 400 {
		status = http.StatusBadGateway
	}
	return &Error{
		Kind:     KindUpstream,
		Provider: provider,
		Message:  provider + " API error",
		Status:   status,
		Detail:   body,
	}
}

// UpstreamFailure reports a provider-side failure that did not come with a
// usable HTTP status (transport errors, vendor error codes, exhausted polling).
func UpstreamFailure(provider string, status int, message string, detail any, err error) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &Error{
		Kind:     KindUpstream,
		Provider: provider,
		Message:  message,
		Status:   status,
		Detail:   detail,
		Err:      err,
	}
}

func MalformedResponseError(provider, message string, raw any) *Error {
	return &Error{
		Kind:     KindMalformedResponse,
		Provider: provider,
		Message:  message,
		Status:   http.StatusInternalServerError,
		Detail:   raw,
	}
}

// IsKind reports whether err is a relay error of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}

// classify turns anything an adapter returned into a relay error.
// Untyped errors are transport failures.
func classify(provider string, err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		if re.Provider == "" {
			re.Provider = provider
		}
		return re
	}
	return UpstreamFailure(provider, http.StatusBadGateway, "failed to reach "+provider, err.Error(), err)
}
