package jwtauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// newRSAKey generates an RSA key pair for signing test tokens.
func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// newECKey generates a P-256 key pair for signing test tokens.
func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// jwksDocument builds a JWKS JSON document from public keys. Each entry is
// (public key, kid, alg); empty kid or alg omits the member.
type jwksEntry struct {
	key any
	kid string
	alg string
}

func jwksDocument(t *testing.T, entries ...jwksEntry) []byte {
	t.Helper()

	set := jwk.NewSet()
	for _, entry := range entries {
		key, err := jwk.FromRaw(entry.key)
		require.NoError(t, err)
		if entry.kid != "" {
			require.NoError(t, key.Set(jwk.KeyIDKey, entry.kid))
		}
		if entry.alg != "" {
			require.NoError(t, key.Set(jwk.AlgorithmKey, entry.alg))
		}
		require.NoError(t, set.AddKey(key))
	}

	data, err := json.Marshal(set)
	require.NoError(t, err)
	return data
}

// parseTestKeySet parses a JWKS document, attributing it to a provider.
func parseTestKeySet(t *testing.T, data []byte, provider string) *KeySet {
	t.Helper()
	ks, err := ParseKeySet(data)
	require.NoError(t, err)
	ks.Provider = provider
	return ks
}

// signToken signs a token with the given method and key. Claims always get
// an exp one hour out unless the caller sets one.
func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims, kid string) string {
	t.Helper()

	if claims == nil {
		claims = jwt.MapClaims{}
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}

	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	raw, err := token.SignedString(key)
	require.NoError(t, err)
	return raw
}
