package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Sentinel errors shared by lookup, providers and the workflow
var (
	// Configuration errors, raised before any network call
	ErrMissingCredential = goerr.New("API credential is required")
	ErrMissingEndpoint   = goerr.New("API base URL is required")
	ErrMissingIdentifier = goerr.New("sample identifier is required")
	ErrUnknownProvider   = goerr.New("unknown AI provider")
	ErrInvalidInput      = goerr.New("invalid input")

	// Upstream errors
	ErrNotFound        = goerr.New("sample not found")
	ErrUpstream        = goerr.New("upstream service error")
	ErrSchemaViolation = goerr.New("response does not match analysis schema")
	ErrEmptyCompletion = goerr.New("model returned no text")

	ErrUnsupportedEnvironment = goerr.New("hash primitive is not available")

	// Workflow errors
	ErrSessionNotFound    = goerr.New("session not found")
	ErrAnalysisInProgress = goerr.New("analysis is already in progress")
	ErrInvalidTransition  = goerr.New("invalid workflow transition")
	ErrNoAnalysisResult   = goerr.New("no analysis result to build a rule from")
)

// Context keys for error values
const (
	StatusKey     = "status"
	MessageKey    = "message"
	ProviderKey   = "provider"
	IdentifierKey = "identifier"
	SessionIDKey  = "session_id"
	StateKey      = "state"
	ResponseKey   = "response"
	FieldKey      = "field"
)

// ErrorKind returns a stable short label for the sentinel err wraps, or
// "internal" when it wraps none of them.
func ErrorKind(err error) string {
	kinds := []struct {
		target error
		kind   string
	}{
		{ErrMissingCredential, "missing_credential"},
		{ErrMissingEndpoint, "missing_endpoint"},
		{ErrMissingIdentifier, "missing_identifier"},
		{ErrUnknownProvider, "unknown_provider"},
		{ErrInvalidInput, "invalid_input"},
		{ErrNotFound, "not_found"},
		{ErrUpstream, "upstream"},
		{ErrSchemaViolation, "schema_violation"},
		{ErrEmptyCompletion, "empty_completion"},
		{ErrUnsupportedEnvironment, "unsupported_environment"},
		{ErrSessionNotFound, "session_not_found"},
		{ErrAnalysisInProgress, "analysis_in_progress"},
		{ErrInvalidTransition, "invalid_transition"},
		{ErrNoAnalysisResult, "no_analysis_result"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return "internal"
}
