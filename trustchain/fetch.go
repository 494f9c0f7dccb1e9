package trustchain

import (
	"context"
	stderrors "errors"
	"net/url"

	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/errors"
	"github.com/oidf-tools/fedtrust/httpclient"
)

// ErrNotRegistered means a superior answered a fetch request with 404: it has not emitted a
// subordinate statement for the requested entity.
var ErrNotRegistered = stderrors.New("entity not registered with superior")

// Fetcher retrieves subordinate statements from federation fetch endpoints.
// https://openid.net/specs/openid-federation-1_0-41.html#section-8.1
type Fetcher struct {
	client httpclient.Client
}

// NewFetcher constructs a Fetcher that retrieves subordinate statements using the provided client.
func NewFetcher(client httpclient.Client) Fetcher {
	return Fetcher{client: client}
}

// FetchStatement asks the superior described by superiorConfiguration for its subordinate
// statement about sub. The fetch endpoint is taken from the superior's federation_entity metadata.
// Returns the compact JWT; callers must verify it against the superior's federation entity keys.
func (f *Fetcher) FetchStatement(ctx context.Context, superiorConfiguration *entity.EntityStatement, sub entity.Identifier) (string, error) {
	var federationMetadata entity.FederationEntityMetadata
	if err := superiorConfiguration.FindMetadata(entity.FederationEntity, &federationMetadata); err != nil {
		return "", errors.Errorf("superior '%s' has no federation_entity metadata: %w",
			superiorConfiguration.Subject.String(), err)
	}

	if federationMetadata.FetchEndpoint == "" {
		return "", errors.Errorf("superior '%s' does not advertise a federation fetch endpoint",
			superiorConfiguration.Subject.String())
	}

	fetchEndpoint, err := url.Parse(federationMetadata.FetchEndpoint)
	if err != nil {
		return "", errors.Errorf("superior '%s' advertises invalid fetch endpoint '%s': %w",
			superiorConfiguration.Subject.String(), federationMetadata.FetchEndpoint, err)
	}

	body, err := f.client.Get(
		ctx,
		*fetchEndpoint,
		entity.EntityStatementContentType,
		url.Values{entity.QueryParamSub: []string{sub.String()}},
	)
	if err != nil {
		if stderrors.Is(err, httpclient.ErrNotFound) {
			return "", errors.Errorf("superior '%s' has no statement for '%s': %w",
				superiorConfiguration.Subject.String(), sub.String(), ErrNotRegistered)
		}

		return "", errors.Errorf("failed to fetch statement for '%s' from '%s': %w",
			sub.String(), superiorConfiguration.Subject.String(), err)
	}

	return string(body), nil
}
