package entity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"

	"github.com/go-jose/go-jose/v4"

	"github.com/oidf-tools/fedtrust/errors"
)

// GenerateFederationKeys generates a key set suitable for signing entity statements. Hard code one
// P-256 key and one 2048 bit RSA key.
func GenerateFederationKeys() (*jose.JSONWebKeySet, error) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Errorf("failed to generate P256 key: %w", err)
	}

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Errorf("failed to generate RSA key: %w", err)
	}

	keys, err := PrivateJWKS([]any{ecKey, rsaKey})
	if err != nil {
		return nil, errors.Errorf("failed to construct federation entity JWKS: %w", err)
	}

	return &keys, nil
}

// PrivateJWKS returns a JSONWebKeySet containing the public and private portions of provided keys.
// Key IDs are the base64 encoded SHA-256 thumbprints of the keys.
func PrivateJWKS(keys []any) (jose.JSONWebKeySet, error) {
	privateJWKS := jose.JSONWebKeySet{}
	for _, key := range keys {
		jsonWebKey := jose.JSONWebKey{Key: key}

		thumbprint, err := jsonWebKey.Thumbprint(crypto.SHA256)
		if err != nil {
			return jose.JSONWebKeySet{}, errors.Errorf("failed to compute thumbprint: %w", err)
		}
		jsonWebKey.KeyID = base64.URLEncoding.EncodeToString(thumbprint)

		// Gross, but I'm not sure how else to get at the `alg` value for a JSONWebKey in go-jose
		var alg jose.SignatureAlgorithm
		switch k := key.(type) {
		case *rsa.PrivateKey:
			alg = jose.RS256
		case *ecdsa.PrivateKey:
			switch k.Curve {
			case elliptic.P256():
				alg = jose.ES256
			case elliptic.P384():
				alg = jose.ES384
			case elliptic.P521():
				alg = jose.ES512
			}
		}
		jsonWebKey.Algorithm = string(alg)

		privateJWKS.Keys = append(privateJWKS.Keys, jsonWebKey)
	}

	return privateJWKS, nil
}

// PublicJWKS returns a JSONWebKeySet containing only the public portion of jwks.
func PublicJWKS(jwks *jose.JSONWebKeySet) jose.JSONWebKeySet {
	publicJWKS := jose.JSONWebKeySet{}
	for _, jsonWebKey := range jwks.Keys {
		publicJWKS.Keys = append(publicJWKS.Keys, jsonWebKey.Public())
	}

	return publicJWKS
}
