package jwtauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// tokenHeader is the unprotected header of a token, parsed without
// verifying the signature. It is used only for key selection, never for
// authorization decisions.
type tokenHeader struct {
	alg string
	kid string
}

// parseTokenHeader decodes the token's unprotected header. Only the first
// segment is inspected; a corrupt payload or signature segment is left for
// verification to reject.
func parseTokenHeader(raw string) (*tokenHeader, *Error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, newError(KindInvalidTokenHeader,
			fmt.Errorf("token must have three segments, got %d", len(parts)))
	}

	decoded, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, newError(KindInvalidTokenHeader,
			fmt.Errorf("failed to decode token header: %w", err))
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(decoded, &header); err != nil {
		return nil, newError(KindInvalidTokenHeader,
			fmt.Errorf("failed to parse token header: %w", err))
	}
	if header.Alg == "" {
		return nil, newError(KindInvalidTokenHeader, fmt.Errorf("token header missing alg"))
	}

	return &tokenHeader{alg: header.Alg, kid: header.Kid}, nil
}

// selectKeySet picks the single key set applicable to the token. Key-id
// matching is precise and preferred; algorithm matching is a fallback for
// key sets that omit key-ids. Scan order is candidate order, then key
// order within a set.
func selectKeySet(header *tokenHeader, candidates []*KeySet) (*KeySet, *Error) {
	if header.kid != "" {
		for _, ks := range candidates {
			for i := range ks.Keys {
				if ks.Keys[i].Kid == header.kid {
					return ks, nil
				}
			}
		}
	}

	for _, ks := range candidates {
		for i := range ks.Keys {
			alg := ks.Keys[i].Alg
			if alg == "" {
				continue
			}
			// An unparseable declared algorithm is a hard error for the
			// key, surfaced only when fallback matching reaches it.
			if jwt.GetSigningMethod(alg) == nil {
				return nil, newError(KindKeyAlgorithmUnsupported,
					fmt.Errorf("jwk algorithm %q is not supported", alg))
			}
			if alg == header.alg {
				return ks, nil
			}
		}
	}

	return nil, newError(KindNoMatchingKeySet,
		fmt.Errorf("token is not supported by any of the configured providers"))
}
