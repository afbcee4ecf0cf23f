package jwtauth

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// KeySet is a named collection of verification keys. A key set is owned by
// its originating provider, is immutable once retrieved, and is replaced
// wholesale on refresh.
type KeySet struct {
	// Provider is the name of the provider the set was retrieved from.
	Provider string `json:"-"`

	Keys []Key `json:"keys"`
}

// Key is a single JSON Web Key. Only the public members needed for
// signature verification are modeled.
type Key struct {
	// Kty is the key type (RSA, EC, OKP, oct).
	Kty string `json:"kty"`
	// Kid is the optional key identifier.
	Kid string `json:"kid,omitempty"`
	// Alg is the optional declared signing algorithm.
	Alg string `json:"alg,omitempty"`
	// Use is the optional intended use (sig, enc).
	Use string `json:"use,omitempty"`

	// RSA public key components.
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC and OKP public key components.
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`

	// Symmetric key material.
	K string `json:"k,omitempty"`
}

// ParseKeySet parses a JWKS document.
func ParseKeySet(data []byte) (*KeySet, error) {
	var ks KeySet
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	if len(ks.Keys) == 0 {
		return nil, errors.New("JWKS contains no keys")
	}
	return &ks, nil
}

// VerificationKey derives the Go verification key from the key material:
// *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey, or []byte for
// symmetric keys.
func (k *Key) VerificationKey() (any, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaPublicKey()
	case "EC":
		return k.ecdsaPublicKey()
	case "OKP":
		return k.ed25519PublicKey()
	case "oct":
		return k.symmetricKey()
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func (k *Key) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, errors.New("missing RSA key components")
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func (k *Key) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve %q", k.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y coordinate: %w", err)
	}
	if len(xBytes) == 0 || len(yBytes) == 0 {
		return nil, errors.New("missing EC key components")
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func (k *Key) ed25519PublicKey() (ed25519.PublicKey, error) {
	if k.Crv != "Ed25519" {
		return nil, fmt.Errorf("unsupported OKP curve %q", k.Crv)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(xBytes) != ed25519.PublicKeySize {
		return nil, errors.New("invalid Ed25519 public key length")
	}
	return ed25519.PublicKey(xBytes), nil
}

func (k *Key) symmetricKey() ([]byte, error) {
	kBytes, err := base64.RawURLEncoding.DecodeString(k.K)
	if err != nil {
		return nil, fmt.Errorf("failed to decode symmetric key: %w", err)
	}
	if len(kBytes) == 0 {
		return nil, errors.New("missing symmetric key material")
	}
	return kBytes, nil
}
