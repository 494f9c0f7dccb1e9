package entity

import (
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrMalformedStatement means a compact token could not be decoded as an entity statement at all:
// wrong structure, bad base64, or a payload that is not JSON. It says nothing about the signature.
var ErrMalformedStatement = stderrors.New("malformed entity statement")

// StatementHeader is the JOSE header of a compact-serialized entity statement.
type StatementHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
	KeyID     string `json:"kid"`
}

// DecodeStatement decodes a compact-serialized entity statement into its header and payload
// WITHOUT verifying the signature. Every field of the result is untrusted input until the token
// has been through VerifyStatement.
func DecodeStatement(token string) (*StatementHeader, *EntityStatement, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, fmt.Errorf("token has %d parts, want 3: %w", len(parts), ErrMalformedStatement)
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("could not decode header: %v: %w", err, ErrMalformedStatement)
	}

	var header StatementHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, fmt.Errorf("header is not valid JSON: %v: %w", err, ErrMalformedStatement)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("could not decode payload: %v: %w", err, ErrMalformedStatement)
	}

	var statement EntityStatement
	if err := json.Unmarshal(payloadBytes, &statement); err != nil {
		return nil, nil, fmt.Errorf("payload is not a valid entity statement: %v: %w", err, ErrMalformedStatement)
	}

	return &header, &statement, nil
}
