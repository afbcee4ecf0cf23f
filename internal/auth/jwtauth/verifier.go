package jwtauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// VerifiedToken is the outcome of a successful verification: the full
// claim set, the token header, and the original raw token. Immutable once
// produced and scoped to a single request.
type VerifiedToken struct {
	// Claims is the verified claim set, an untyped JSON-like mapping.
	Claims map[string]any

	// Header is the token header.
	Header map[string]any

	// Raw is the original raw token string, kept so the opaque token can
	// be forwarded upstream.
	Raw string
}

// verifier performs algorithm-aware signature verification and validates
// issuer/audience claims against configured policy.
type verifier struct {
	issuers   []string
	audiences []string
}

// verify attempts each key of the set in order; the first key that
// verifies successfully wins. When every key fails, the aggregate error
// carries one entry per key, in order.
func (v *verifier) verify(raw string, keySet *KeySet) (*VerifiedToken, *Error) {
	attempts := make([]*Error, 0, len(keySet.Keys))

	for i := range keySet.Keys {
		token, err := v.verifyWithKey(raw, &keySet.Keys[i])
		if err == nil {
			return token, nil
		}
		attempts = append(attempts, err)
	}

	return nil, newAggregateError(attempts)
}

// verifyWithKey verifies the token against a single key. The signing
// method is pinned to the key's declared algorithm; expiry and not-before
// follow conventional JWT semantics inside the signature library.
func (v *verifier) verifyWithKey(raw string, key *Key) (*VerifiedToken, *Error) {
	verificationKey, err := key.VerificationKey()
	if err != nil {
		// Key material that cannot be decoded is a configuration problem,
		// not attacker-controlled input.
		return nil, newError(KindInvalidVerificationKey, err)
	}

	if key.Alg == "" {
		return nil, newError(KindKeyMissingAlgorithm,
			fmt.Errorf("failed to locate algorithm in jwk"))
	}
	if jwt.GetSigningMethod(key.Alg) == nil {
		return nil, newError(KindKeyAlgorithmUnsupported,
			fmt.Errorf("jwk algorithm %q is not supported", key.Alg))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{key.Alg}),
		jwt.WithExpirationRequired(),
	)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return verificationKey, nil
	})
	if err != nil {
		return nil, newError(KindTokenRejected, err)
	}

	if err := v.validateIssuer(claims); err != nil {
		return nil, newError(KindTokenRejected, err)
	}
	if err := v.validateAudience(claims); err != nil {
		return nil, newError(KindTokenRejected, err)
	}

	return &VerifiedToken{
		Claims: map[string]any(claims),
		Header: token.Header,
		Raw:    raw,
	}, nil
}

// validateIssuer checks the iss claim against the allow-list. The check is
// skipped entirely when no allow-list is configured.
func (v *verifier) validateIssuer(claims jwt.MapClaims) error {
	if len(v.issuers) == 0 {
		return nil
	}

	iss, ok := claims["iss"].(string)
	if !ok {
		return ErrInvalidIssuer
	}
	for _, allowed := range v.issuers {
		if iss == allowed {
			return nil
		}
	}
	return ErrInvalidIssuer
}

// validateAudience checks the aud claim against the allow-list. The claim
// must be an array of strings with every entry allow-listed. Skipped
// entirely when no allow-list is configured.
func (v *verifier) validateAudience(claims jwt.MapClaims) error {
	if len(v.audiences) == 0 {
		return nil
	}

	entries, ok := claims["aud"].([]any)
	if !ok {
		return ErrInvalidAudience
	}
	for _, entry := range entries {
		aud, ok := entry.(string)
		if !ok || !contains(v.audiences, aud) {
			return ErrInvalidAudience
		}
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
