package jwtauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the closed set of authentication failure kinds. Callers map each
// kind deterministically to an HTTP status via HTTPStatus.
type Kind uint8

const (
	// KindLookupFailed means no configured lookup rule produced a token.
	KindLookupFailed Kind = iota + 1

	// KindInvalidTokenHeader means the token's unprotected header is
	// malformed.
	KindInvalidTokenHeader

	// KindKeyAlgorithmUnsupported means a key's declared algorithm string
	// is unparseable.
	KindKeyAlgorithmUnsupported

	// KindRequestParsing means body parsing failed while extracting the
	// credential.
	KindRequestParsing

	// KindKeyMissingAlgorithm means the matched key lacks an algorithm
	// field.
	KindKeyMissingAlgorithm

	// KindNoMatchingKeySet means no key set or key matched the token.
	KindNoMatchingKeySet

	// KindInvalidVerificationKey means key material could not be turned
	// into a usable verification key.
	KindInvalidVerificationKey

	// KindAllKeysFailed means every candidate key failed verification.
	KindAllKeysFailed

	// KindTokenRejected is the single-key decode failure wrapped inside
	// the aggregate above.
	KindTokenRejected
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLookupFailed:
		return "lookup_failed"
	case KindInvalidTokenHeader:
		return "invalid_token_header"
	case KindKeyAlgorithmUnsupported:
		return "key_algorithm_unsupported"
	case KindRequestParsing:
		return "request_parsing"
	case KindKeyMissingAlgorithm:
		return "key_missing_algorithm"
	case KindNoMatchingKeySet:
		return "no_matching_key_set"
	case KindInvalidVerificationKey:
		return "invalid_verification_key"
	case KindAllKeysFailed:
		return "all_keys_failed"
	case KindTokenRejected:
		return "token_rejected"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the externally visible status for the kind. This
// mapping is a contract: callers depend on these exact status classes.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindLookupFailed, KindInvalidTokenHeader, KindKeyAlgorithmUnsupported, KindRequestParsing:
		return http.StatusBadRequest
	case KindKeyMissingAlgorithm, KindNoMatchingKeySet, KindInvalidVerificationKey:
		return http.StatusInternalServerError
	case KindAllKeysFailed, KindTokenRejected:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel causes for claim policy failures.
var (
	ErrInvalidIssuer   = errors.New("token issuer is not allowed")
	ErrInvalidAudience = errors.New("token audience is not allowed")
)

// Error is a structured authentication failure. Aggregate failures
// (KindAllKeysFailed) carry one child error per attempted key in Attempts.
type Error struct {
	Kind     Kind
	Attempts []*Error
	cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Kind == KindAllKeysFailed:
		msgs := make([]string, len(e.Attempts))
		for i, attempt := range e.Attempts {
			msgs[i] = attempt.Error()
		}
		return fmt.Sprintf("%s: [%s]", e.Kind, strings.Join(msgs, "; "))
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

func newAggregateError(attempts []*Error) *Error {
	return &Error{Kind: KindAllKeysFailed, Attempts: attempts}
}

// LookupReason distinguishes credential lookup failures for diagnostics.
type LookupReason uint8

const (
	// ReasonNotFound means no rule produced a value.
	ReasonNotFound LookupReason = iota + 1

	// ReasonPrefixMismatch means a present header value did not start
	// with the configured prefix.
	ReasonPrefixMismatch

	// ReasonHeaderDecode means a header value could not be decoded to a
	// usable string.
	ReasonHeaderDecode
)

// String returns the reason name.
func (r LookupReason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonPrefixMismatch:
		return "prefix_mismatch"
	case ReasonHeaderDecode:
		return "header_decode"
	default:
		return "unknown"
	}
}

// LookupError is a credential lookup failure.
type LookupError struct {
	Reason LookupReason
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	switch e.Reason {
	case ReasonPrefixMismatch:
		return "prefix does not match the found value"
	case ReasonHeaderDecode:
		return "failed to decode header value"
	default:
		return "failed to locate the value in the incoming request"
	}
}
