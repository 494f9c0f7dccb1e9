package entity

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/oidf-tools/fedtrust/errors"
)

// DefaultStatementLifetime is how long entity statements signed by an Entity are valid for.
const DefaultStatementLifetime = time.Hour

// Options are options for constructing an Entity.
type Options struct {
	// OpenIDProvider configures the entity as an openid_provider. If nil, the entity does not
	// advertise that entity type.
	OpenIDProvider *OpenIDProviderMetadata
	// OpenIDRelyingParty configures the entity as an openid_relying_party. If nil, the entity does
	// not advertise that entity type.
	OpenIDRelyingParty *OpenIDRelyingPartyMetadata
	// FederationEntityKeys used for signing entity statements. The JWKs must contain private keys.
	// If nil, keys are generated.
	FederationEntityKeys *jose.JSONWebKeySet
	// StatementLifetime is how long signed entity statements are valid for. If zero,
	// DefaultStatementLifetime is used.
	StatementLifetime time.Duration
}

// Entity represents an OpenID Federation Entity. It can act as a leaf, an intermediate or a trust
// anchor depending on what subordinates and superiors it is given.
type Entity struct {
	// Identifier for the OpenID Federation Entity.
	Identifier Identifier
	// federationEntityKeys is this entity's keys
	// https://openid.net/specs/openid-federation-1_0-41.html#section-1.2-3.44
	federationEntityKeys jose.JSONWebKeySet
	// openIDProvider is the openid_provider metadata advertised by this entity, if any.
	openIDProvider *OpenIDProviderMetadata
	// openIDRelyingParty is the openid_relying_party metadata advertised by this entity, if any.
	openIDRelyingParty *OpenIDRelyingPartyMetadata
	// statementLifetime is how long signed entity statements are valid for.
	statementLifetime time.Duration
	// subordinates is this entity's federation subordinates
	subordinates map[Identifier]EntityStatement
	// superiors is the federation entities known to have emitted entity statements about this
	// entity
	superiors map[Identifier]struct{}

	// mutex protects subordinates and superiors, which are read by HTTP handlers
	mutex sync.Mutex

	// listener may be a bound port on which requests for OpenID Federation API (i.e. entity
	// configurations or other federation endpoints) are listened to
	listener net.Listener
	// done is a channel sent on when the HTTP server is torn down
	done chan struct{}
}

// New constructs a new Entity, generating keys as needed.
func New(identifier string, options Options) (*Entity, error) {
	parsedIdentifier, err := NewIdentifier(identifier)
	if err != nil {
		return nil, errors.Errorf("failed to parse identifier '%s': %w", identifier, err)
	}

	var federationEntityKeys jose.JSONWebKeySet
	if options.FederationEntityKeys == nil {
		generated, err := GenerateFederationKeys()
		if err != nil {
			return nil, err
		}
		federationEntityKeys = *generated
	} else {
		federationEntityKeys = *options.FederationEntityKeys
	}

	statementLifetime := options.StatementLifetime
	if statementLifetime == 0 {
		statementLifetime = DefaultStatementLifetime
	}

	return &Entity{
		Identifier:           parsedIdentifier,
		federationEntityKeys: federationEntityKeys,
		openIDProvider:       options.OpenIDProvider,
		openIDRelyingParty:   options.OpenIDRelyingParty,
		statementLifetime:    statementLifetime,
		subordinates:         make(map[Identifier]EntityStatement),
		superiors:            make(map[Identifier]struct{}),
	}, nil
}

// NewAndServe calls New, and then calls ServeFederationEndpoints.
func NewAndServe(identifier string, options Options) (*Entity, error) {
	entity, err := New(identifier, options)
	if err != nil {
		return nil, err
	}

	if err := entity.ServeFederationEndpoints(); err != nil {
		return nil, err
	}

	return entity, err
}

// signEntityStatement signs an entity statement using this entity's federation entity keys.
func (e *Entity) signEntityStatement(entityStatement EntityStatement) (*jose.JSONWebSignature, error) {
	payload, err := json.Marshal(entityStatement)
	if err != nil {
		return nil, errors.Errorf("failed to marshal entity statement to JSON: %w", err)
	}

	if e.federationEntityKeys.Keys[0].KeyID == "" {
		return nil, errors.Errorf("federation entity key KID should be set")
	}

	if e.federationEntityKeys.Keys[0].Algorithm == "" {
		return nil, errors.Errorf("federation entity key alg should be set")
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.SignatureAlgorithm(e.federationEntityKeys.Keys[0].Algorithm),
			Key:       e.federationEntityKeys.Keys[0].Key,
		},
		&jose.SignerOptions{
			ExtraHeaders: map[jose.HeaderKey]any{
				// "typ" required by OIDF
				jose.HeaderType: EntityStatementHeaderType,
				// "kid" required by OIDF
				"kid": e.federationEntityKeys.Keys[0].KeyID,
			},
		},
	)
	if err != nil {
		return nil, errors.Errorf("failed to construct JOSE signer: %w", err)
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, errors.Errorf("failed to sign entity statement: %w", err)
	}

	return signed, nil
}

// entityConfiguration constructs an entity configuration for this entity
func (e *Entity) entityConfiguration() EntityStatement {
	metadata := map[EntityTypeIdentifier]any{
		FederationEntity: FederationEntityMetadata{
			FetchEndpoint: e.Identifier.URL.JoinPath(FederationFetchEndpoint).String(),
			ListEndpoint:  e.Identifier.URL.JoinPath(FederationListEndpoint).String(),
		},
	}

	if e.openIDProvider != nil {
		metadata[OpenIDProvider] = *e.openIDProvider
	}

	if e.openIDRelyingParty != nil {
		metadata[OpenIDRelyingParty] = *e.openIDRelyingParty
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	superiors := []Identifier{}
	for k := range e.superiors {
		superiors = append(superiors, k)
	}

	now := time.Now()

	return EntityStatement{
		Issuer:               e.Identifier,
		Subject:              e.Identifier,
		IssuedAt:             now.Unix(),
		Expiration:           now.Add(e.statementLifetime).Unix(),
		FederationEntityKeys: PublicJWKS(&e.federationEntityKeys),
		Metadata:             metadata,
		AuthorityHints:       superiors,
	}
}

// SignedEntityConfiguration constructs and signs an Entity Configuration for this Entity
func (e *Entity) SignedEntityConfiguration() (*jose.JSONWebSignature, error) {
	return e.signEntityStatement(e.entityConfiguration())
}

// AddSubordinate makes this entity emit entity statements about the provided subordinate. If
// successful, an entity statement for the subordinate will be available from this entity's
// federation fetch and list endpoints. Callers are responsible for updating the Entity
// Configuration of the subordinate to include this entity's identifier (e.g. by using
// AddSuperior()).
//
// OpenID Federation says nothing about how subordination is established, so this works purely
// in-process: the subordinate's entity configuration is consulted directly.
func (e *Entity) AddSubordinate(subordinate *Entity) error {
	// Construct the subordinate statement from the subordinate's own configuration, swapping in
	// this entity as the issuer.
	statement := subordinate.entityConfiguration()
	statement.Issuer = e.Identifier
	now := time.Now()
	statement.IssuedAt = now.Unix()
	statement.Expiration = now.Add(e.statementLifetime).Unix()
	// authority_hints is forbidden in a subordinate statement
	statement.AuthorityHints = nil

	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.subordinates[subordinate.Identifier] = statement

	return nil
}

// AddSuperior adds the provided identifier to this entity's federation superiors, such that it will
// subsequently be included in the entity configuration's authority_hints. Callers are responsible
// for getting the designated superior to emit an appropriate entity statement for this entity.
func (e *Entity) AddSuperior(superior Identifier) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.superiors[superior] = struct{}{}
}

// GetSubordinate gets a subordinate statement for the named entity, if this entity has emitted one.
func (e *Entity) GetSubordinate(subordinate Identifier) (*EntityStatement, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	subordinateStatement, ok := e.subordinates[subordinate]
	if !ok {
		return nil, errors.Errorf("subordinate '%s' not found", subordinate.String())
	}

	return &subordinateStatement, nil
}

// ServeFederationEndpoints starts an HTTP server for this entity's federation endpoints, listening
// at whatever port appears in the entity's identifier.
func (e *Entity) ServeFederationEndpoints() error {
	var err error
	e.listener, err = net.Listen("tcp", net.JoinHostPort("", e.Identifier.URL.Port()))
	if err != nil {
		return errors.Errorf("could not start HTTP server for OIDF EC: %w", err)
	}

	e.done = make(chan struct{})

	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc(EntityConfigurationPath, func(w http.ResponseWriter, r *http.Request) {
			if err, status := e.entityConfigurationHandler(w, r); err != nil {
				http.Error(w, err.Error(), status)
			}
		})
		mux.HandleFunc(FederationFetchEndpoint, func(w http.ResponseWriter, r *http.Request) {
			if err, status := e.federationFetchHandler(w, r); err != nil {
				federationError(w, err, status)
			}
		})
		mux.HandleFunc(FederationListEndpoint, func(w http.ResponseWriter, r *http.Request) {
			if err, status := e.federationListHandler(w, r); err != nil {
				http.Error(w, err.Error(), status)
			}
		})

		httpServer := &http.Server{Handler: mux}

		// Once httpServer is shut down we don't want any lingering connections, so disable KeepAlives.
		httpServer.SetKeepAlivesEnabled(false)

		if err := httpServer.Serve(e.listener); err != nil &&
			!strings.Contains(err.Error(), "use of closed network connection") {
			log.Println(err)
		}

		e.done <- struct{}{}
	}()

	return nil
}

// CleanUp tears down the entity's HTTP server, if one was started.
func (e *Entity) CleanUp() {
	if e.listener == nil {
		return
	}

	e.listener.Close()

	<-e.done
}

// federationError writes an error response in the format required for federation endpoints.
// https://openid.net/specs/openid-federation-1_0-41.html#section-8.9
func federationError(w http.ResponseWriter, err error, status int) {
	errorCode := "invalid_request"
	if status == http.StatusNotFound {
		errorCode = "not_found"
	}

	body, marshalErr := json.Marshal(map[string]string{
		"error":             errorCode,
		"error_description": err.Error(),
	})
	if marshalErr != nil {
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func (e *Entity) entityConfigurationHandler(w http.ResponseWriter, r *http.Request) (error, int) {
	if r.Method != http.MethodGet {
		return errors.Errorf("only GET is allowed"), http.StatusMethodNotAllowed
	}

	entityConfiguration, err := e.SignedEntityConfiguration()
	if err != nil {
		return err, http.StatusInternalServerError
	}

	compact, err := entityConfiguration.CompactSerialize()
	if err != nil {
		return err, http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", EntityStatementContentType)
	// All JWSes MUST use compact serialization
	// https://openid.net/specs/openid-federation-1_0-41.html#name-requirements-notation-and-c
	if _, err := w.Write([]byte(compact)); err != nil {
		return err, http.StatusInternalServerError
	}

	return nil, http.StatusOK
}

func (e *Entity) federationFetchHandler(w http.ResponseWriter, r *http.Request) (error, int) {
	if r.Method != http.MethodGet {
		return errors.Errorf("only GET is allowed"), http.StatusMethodNotAllowed
	}

	subordinate := r.URL.Query().Get(QueryParamSub)
	if subordinate == "" {
		return errors.Errorf("sub query parameter is required"), http.StatusBadRequest
	}

	subordinateIdentifier, err := NewIdentifier(subordinate)
	if err != nil {
		return errors.Errorf("invalid subordinate '%s': %w", subordinate, err), http.StatusBadRequest
	}

	subordinateStatement, err := e.GetSubordinate(subordinateIdentifier)
	if err != nil {
		return fmt.Errorf("Entity not found in trust anchor"), http.StatusNotFound
	}
	signedSub, err := e.signEntityStatement(*subordinateStatement)
	if err != nil {
		return errors.Errorf("failed to sign subordinate statement: %w", err), http.StatusInternalServerError
	}
	compact, err := signedSub.CompactSerialize()
	if err != nil {
		return err, http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", EntityStatementContentType)
	if _, err := w.Write([]byte(compact)); err != nil {
		return err, http.StatusInternalServerError
	}

	return nil, http.StatusOK
}

func (e *Entity) federationListHandler(w http.ResponseWriter, r *http.Request) (error, int) {
	if r.Method != http.MethodGet {
		return errors.Errorf("only GET is allowed"), http.StatusMethodNotAllowed
	}

	subordinateIdentifiers := []Identifier{}
	e.mutex.Lock()
	for _, subordinate := range e.subordinates {
		if entityTypes, ok := r.URL.Query()[QueryParamEntityType]; ok {
			for _, entityType := range entityTypes {
				if slices.Contains(subordinate.EntityTypes(), EntityTypeIdentifier(entityType)) {
					subordinateIdentifiers = append(subordinateIdentifiers, subordinate.Subject)
				}
			}
		} else {
			// no entity type parameter provided, so add all identifiers
			subordinateIdentifiers = append(subordinateIdentifiers, subordinate.Subject)
		}
	}
	e.mutex.Unlock()

	jsonIdentifiers, err := json.Marshal(subordinateIdentifiers)
	if err != nil {
		return err, http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(jsonIdentifiers); err != nil {
		return err, http.StatusInternalServerError
	}

	return nil, http.StatusOK
}
