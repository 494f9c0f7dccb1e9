package entity

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Verification failures. Expiry is folded into the same taxonomy bucket as a bad signature: in
// either case the statement's contents must not be trusted.
var (
	ErrInvalidSignature = stderrors.New("entity statement signature is invalid")
	ErrStatementExpired = stderrors.New("entity statement is expired")
)

// AllowedSignatureAlgorithms is the asymmetric algorithm allow-list for entity statements. The JWS
// header indicates what algorithm it's signed with, but jose requires us to provide a list of
// acceptable signing algorithms.
var AllowedSignatureAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512, jose.ES256, jose.ES384, jose.ES512,
}

// VerifyStatement validates that the provided token is a well formed JSON web signature whose
// payload is a well formed OpenID Federation entity statement, that the statement is not expired
// at time now, and that the JWS signature validates using one of the keys in the provided JWKS.
// If keys is nil, the token must be an entity configuration and is verified with the key set
// inside its own payload.
//
// This is the only place cryptographic trust is established: a statement returned from here is
// authoritative, anything else is untrusted input.
func VerifyStatement(token string, keys *jose.JSONWebKeySet, now time.Time) (*EntityStatement, error) {
	if _, _, err := DecodeStatement(token); err != nil {
		return nil, err
	}

	jws, err := jose.ParseSigned(token, AllowedSignatureAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWS: %v: %w", err, ErrInvalidSignature)
	}

	if len(jws.Signatures) > 1 {
		return nil, fmt.Errorf("unexpected multi-signature JWS: %w", ErrInvalidSignature)
	}

	headerType, ok := jws.Signatures[0].Header.ExtraHeaders[jose.HeaderType]
	if !ok || headerType != EntityStatementHeaderType {
		return nil, fmt.Errorf("wrong or no typ in JWS header: %w", ErrInvalidSignature)
	}

	if jws.Signatures[0].Header.KeyID == "" {
		return nil, fmt.Errorf("JWS header must contain kid: %w", ErrInvalidSignature)
	}

	if keys == nil {
		// This is an Entity *Configuration*, so to verify the signature, we have to find the
		// signature kid in the payload's JWKS, so we have to parse it untrusted.
		var untrustedEntityConfiguration EntityStatement
		if err := json.Unmarshal(jws.UnsafePayloadWithoutVerification(), &untrustedEntityConfiguration); err != nil {
			return nil, fmt.Errorf("could not unmarshal JWS payload: %v: %w", err, ErrMalformedStatement)
		}

		if !untrustedEntityConfiguration.IsSelfStatement() {
			return nil, fmt.Errorf("iss and sub MUST be identical in entity configuration: %w", ErrInvalidSignature)
		}

		keys = &untrustedEntityConfiguration.FederationEntityKeys
	}

	verificationKeys := keys.Key(jws.Signatures[0].Header.KeyID)

	if len(verificationKeys) != 1 {
		return nil, fmt.Errorf("found no or multiple keys in JWKS matching header kid: %w", ErrInvalidSignature)
	}

	entityStatementBytes, err := jws.Verify(verificationKeys[0])
	if err != nil {
		return nil, fmt.Errorf("failed to validate JWS signature: %v: %w", err, ErrInvalidSignature)
	}

	var trustedEntityStatement EntityStatement
	if err := json.Unmarshal(entityStatementBytes, &trustedEntityStatement); err != nil {
		return nil, fmt.Errorf("could not unmarshal JWS payload: %v: %w", err, ErrMalformedStatement)
	}

	if !now.Before(time.Unix(trustedEntityStatement.Expiration, 0)) {
		return nil, fmt.Errorf("statement for '%s' expired at %d: %w",
			trustedEntityStatement.Subject.String(), trustedEntityStatement.Expiration, ErrStatementExpired)
	}

	return &trustedEntityStatement, nil
}
