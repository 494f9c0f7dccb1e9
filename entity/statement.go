package entity

import (
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/exp/maps"
)

const (
	EntityStatementHeaderType = "entity-statement+jwt"

	// https://openid.net/specs/openid-federation-1_0-41.html#name-obtaining-federation-entity
	EntityConfigurationPath    = "/.well-known/openid-federation"
	EntityStatementContentType = "application/entity-statement+jwt"

	// Federation entity endpoints
	// https://openid.net/specs/openid-federation-1_0-41.html#section-5.1.1
	FederationFetchEndpoint = "/federation-fetch"
	FederationListEndpoint  = "/federation-list"

	// Query parameters for federation endpoints
	QueryParamSub        = "sub"
	QueryParamEntityType = "entity_type"
)

type EntityTypeIdentifier string

const (
	// Entity Type Identifiers
	// https://openid.net/specs/openid-federation-1_0-41.html#section-5.1
	FederationEntity   EntityTypeIdentifier = "federation_entity"
	OpenIDProvider     EntityTypeIdentifier = "openid_provider"
	OpenIDRelyingParty EntityTypeIdentifier = "openid_relying_party"
)

// EntityStatement is an OIDF Entity Statement
// https://openid.net/specs/openid-federation-1_0-41.html#section-3
type EntityStatement struct {
	Issuer               Identifier                           `json:"iss"`
	Subject              Identifier                           `json:"sub"`
	IssuedAt             int64                                `json:"iat"`
	Expiration           int64                                `json:"exp"`
	FederationEntityKeys jose.JSONWebKeySet                   `json:"jwks"`
	AuthorityHints       []Identifier                         `json:"authority_hints,omitempty"`
	Metadata             map[EntityTypeIdentifier]interface{} `json:"metadata,omitempty"`
	// TODO: constraints, crit, trust marks
}

// IsSelfStatement reports whether the statement is an entity configuration: a statement an entity
// issued about itself, carrying its own keys and authority hints.
func (ec *EntityStatement) IsSelfStatement() bool {
	return ec.Issuer == ec.Subject
}

// FindMetadata finds metadata for the specified entity type in the EntityStatement and decodes it
// into the provided metadata unmarshaler.
func (ec *EntityStatement) FindMetadata(entityType EntityTypeIdentifier, metadata interface{}) error {
	metadataMap, ok := ec.Metadata[entityType]
	if !ok {
		return fmt.Errorf("could not find metadata for entity %s", entityType)
	}

	// Go will deserialize each metadata into a map[string]interface{}. This is stupid and there may
	// be a nicer way to do this with generics, but we encode that back to JSON, then decode it into
	// the provided struct so we can use RTTI to give the caller a richer representation.
	jsonMetadata, err := json.Marshal(metadataMap)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return json.Unmarshal(jsonMetadata, metadata)
}

// EntityTypes returns the OpenID Federation entity types advertised by this entity statement.
func (ec *EntityStatement) EntityTypes() []EntityTypeIdentifier {
	return maps.Keys(ec.Metadata)
}

// FederationEntityMetadata is the metadata for an OpenID Federation entity
// https://openid.net/specs/openid-federation-1_0-41.html#section-5.1.1
type FederationEntityMetadata struct {
	FetchEndpoint string `json:"federation_fetch_endpoint,omitempty"`
	ListEndpoint  string `json:"federation_list_endpoint,omitempty"`
}

// OpenIDProviderMetadata describes an OpenID Provider entity. Only the fields the trust engine's
// callers care about are modeled; everything else rides along in the opaque metadata map.
type OpenIDProviderMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string   `json:"token_endpoint,omitempty"`
	JWKSURI               string   `json:"jwks_uri,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// OpenIDRelyingPartyMetadata describes an OpenID Relying Party entity.
type OpenIDRelyingPartyMetadata struct {
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	ClientRegistrationTypes []string `json:"client_registration_types,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
}
