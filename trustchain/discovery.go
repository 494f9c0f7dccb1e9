package trustchain

import (
	"context"

	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/errors"
	"github.com/oidf-tools/fedtrust/httpclient"
)

// Discoverer fetches entity configurations from their well-known location.
// https://openid.net/specs/openid-federation-1_0-41.html#section-9
type Discoverer struct {
	client httpclient.Client
}

// NewDiscoverer constructs a Discoverer that fetches entity configurations using the provided
// client.
func NewDiscoverer(client httpclient.Client) Discoverer {
	return Discoverer{client: client}
}

// Discover fetches the entity configuration for the identified entity. The configuration is
// fetched from exactly {identifier}/.well-known/openid-federation, with no fallback locations.
// Returns the compact JWT and its decoded, UNVERIFIED claims; callers must verify the token
// before trusting anything in the statement.
func (d *Discoverer) Discover(ctx context.Context, identifier entity.Identifier) (string, *entity.EntityStatement, error) {
	body, err := d.client.Get(
		ctx,
		*identifier.URL.JoinPath(entity.EntityConfigurationPath),
		entity.EntityStatementContentType,
		nil,
	)
	if err != nil {
		return "", nil, errors.Errorf("failed to fetch entity configuration for '%s': %w",
			identifier.String(), err)
	}

	token := string(body)
	_, statement, err := entity.DecodeStatement(token)
	if err != nil {
		return "", nil, errors.Errorf("entity configuration for '%s' is malformed: %w",
			identifier.String(), err)
	}

	if !statement.IsSelfStatement() {
		return "", nil, errors.Errorf(
			"entity configuration for '%s' has mismatched iss '%s' and sub '%s': %w",
			identifier.String(), statement.Issuer.String(), statement.Subject.String(),
			entity.ErrMalformedStatement)
	}

	if !statement.Subject.Equals(&identifier) {
		return "", nil, errors.Errorf(
			"entity configuration for '%s' is about '%s', not the requested entity: %w",
			identifier.String(), statement.Subject.String(), entity.ErrMalformedStatement)
	}

	return token, statement, nil
}
