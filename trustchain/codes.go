package trustchain

import (
	stderrors "errors"
	"time"

	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/httpclient"
)

// Code classifies why a validation failed. Codes are stable strings so that callers can match on
// them and so they can ride along in API responses and metrics labels.
type Code string

const (
	// CodeUnreachable means an entity's federation endpoints could not be reached at all.
	CodeUnreachable Code = "unreachable"
	// CodeTimeout means a request to an entity's federation endpoints timed out.
	CodeTimeout Code = "timeout"
	// CodeInvalidSignature means an entity statement's signature did not verify, or the statement
	// was expired.
	CodeInvalidSignature Code = "invalid_signature"
	// CodeMissingAuthorityHints means a leaf entity configuration advertised no authority_hints,
	// so no chain can be built.
	CodeMissingAuthorityHints Code = "missing_authority_hints"
	// CodeTrustChainInvalid means a chain was walked but could not be anchored in the configured
	// trust anchor.
	CodeTrustChainInvalid Code = "trust_chain_invalid"
	// CodeMalformedStatement means a response could not be parsed as an entity statement JWT.
	CodeMalformedStatement Code = "malformed_statement"
	// CodeConfigurationError means the validator itself is misconfigured.
	CodeConfigurationError Code = "configuration_error"
)

// ValidationError describes one failure encountered during validation.
type ValidationError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Details carries failure-specific context, such as the expected and actual trust anchor.
	Details map[string]string `json:"details,omitempty"`
}

func (v ValidationError) Error() string {
	return string(v.Code) + ": " + v.Message
}

// ValidationResult is the outcome of validating an entity against a trust anchor.
type ValidationResult struct {
	// IsValid reports whether a valid trust chain was resolved from the entity to the trust
	// anchor.
	IsValid bool `json:"is_valid"`
	// Entity is the identifier of the validated entity.
	Entity entity.Identifier `json:"entity"`
	// TrustAnchor is the trust anchor the chain was anchored in, set only when IsValid.
	TrustAnchor *entity.Identifier `json:"trust_anchor,omitempty"`
	// Chain is the resolved trust chain in compact JWT form, leaf configuration first, trust
	// anchor configuration last. Set only when IsValid.
	Chain []string `json:"chain,omitempty"`
	// Errors describes why validation failed. Empty when IsValid.
	Errors []ValidationError `json:"errors,omitempty"`
	// Cached reports whether this result was served from the validation cache.
	Cached bool `json:"cached"`
	// Timestamp is when the validation was performed. For cached results this is the time of the
	// original validation, not the cache read.
	Timestamp time.Time `json:"timestamp"`
}

// classify maps an error from the discovery, fetch or verification layers to a taxonomy code.
func classify(err error) Code {
	switch {
	case stderrors.Is(err, httpclient.ErrTimeout):
		return CodeTimeout
	case stderrors.Is(err, httpclient.ErrUnreachable):
		return CodeUnreachable
	case stderrors.Is(err, entity.ErrMalformedStatement):
		return CodeMalformedStatement
	case stderrors.Is(err, entity.ErrInvalidSignature),
		stderrors.Is(err, entity.ErrStatementExpired):
		return CodeInvalidSignature
	case stderrors.Is(err, httpclient.ErrWrongContentType):
		return CodeMalformedStatement
	case stderrors.Is(err, ErrMissingAuthorityHints):
		return CodeMissingAuthorityHints
	case stderrors.Is(err, ErrNotRegistered),
		stderrors.Is(err, httpclient.ErrNotFound),
		stderrors.Is(err, ErrDepthExceeded):
		return CodeTrustChainInvalid
	default:
		return CodeTrustChainInvalid
	}
}

// newValidationError builds a ValidationError from err, classifying it against the taxonomy.
func newValidationError(err error) ValidationError {
	validationError := ValidationError{Code: classify(err), Message: err.Error()}

	var termination *TerminationError
	if stderrors.As(err, &termination) {
		validationError.Details = map[string]string{
			"expected_trust_anchor": termination.Expected.String(),
			"actual_trust_anchor":   termination.Actual.String(),
		}
	}

	return validationError
}
