package entity

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"
)

// localIdentifier reserves a free port on the loopback interface and returns an entity identifier
// using it. The port is released before returning, so there is a small window in which something
// else could grab it.
func localIdentifier(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %s", err.Error())
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	return fmt.Sprintf("http://localhost:%d", port)
}

func mustServe(t *testing.T, options Options) *Entity {
	t.Helper()

	entity, err := NewAndServe(localIdentifier(t), options)
	if err != nil {
		t.Fatalf("failed to construct entity: %s", err.Error())
	}
	t.Cleanup(entity.CleanUp)

	return entity
}

// get fetches the given URL and returns the response body, its Content-Type and status code.
func get(t *testing.T, rawURL string) ([]byte, string, int) {
	t.Helper()

	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s failed: %s", rawURL, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %s", err.Error())
	}

	return body, resp.Header.Get("Content-Type"), resp.StatusCode
}

func TestEntityConfigurationEndpoint(t *testing.T) {
	entity := mustServe(t, Options{
		OpenIDProvider: &OpenIDProviderMetadata{Issuer: "https://op.example.com"},
	})

	body, contentType, status := get(t, entity.Identifier.URL.JoinPath(EntityConfigurationPath).String())
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}

	if contentType != EntityStatementContentType {
		t.Errorf("unexpected content type %s", contentType)
	}

	statement, err := VerifyStatement(string(body), nil, time.Now())
	if err != nil {
		t.Fatalf("failed to verify entity configuration: %s", err.Error())
	}

	if !statement.Subject.Equals(&entity.Identifier) {
		t.Errorf("entity configuration subject is %s", statement.Subject.String())
	}

	var opMetadata OpenIDProviderMetadata
	if err := statement.FindMetadata(OpenIDProvider, &opMetadata); err != nil {
		t.Fatalf("EC does not contain provider metadata: %s", err.Error())
	}

	if opMetadata.Issuer != "https://op.example.com" {
		t.Errorf("wrong issuer in provider metadata: %s", opMetadata.Issuer)
	}
}

func TestFederationFetchEndpoint(t *testing.T) {
	trustAnchor := mustServe(t, Options{})
	leaf := mustServe(t, Options{})

	if err := trustAnchor.AddSubordinate(leaf); err != nil {
		t.Fatalf("failed to subordinate leaf: %s", err.Error())
	}
	leaf.AddSuperior(trustAnchor.Identifier)

	fetchURL := trustAnchor.Identifier.URL.JoinPath(FederationFetchEndpoint)
	fetchURL.RawQuery = url.Values{QueryParamSub: []string{leaf.Identifier.String()}}.Encode()

	body, contentType, status := get(t, fetchURL.String())
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d (body: %s)", status, string(body))
	}

	if contentType != EntityStatementContentType {
		t.Errorf("unexpected content type %s", contentType)
	}

	anchorKeys := PublicJWKS(&trustAnchor.federationEntityKeys)
	statement, err := VerifyStatement(string(body), &anchorKeys, time.Now())
	if err != nil {
		t.Fatalf("failed to verify subordinate statement: %s", err.Error())
	}

	if !statement.Issuer.Equals(&trustAnchor.Identifier) || !statement.Subject.Equals(&leaf.Identifier) {
		t.Errorf("subordinate statement iss/sub wrong: %s / %s",
			statement.Issuer.String(), statement.Subject.String())
	}

	if statement.AuthorityHints != nil {
		t.Errorf("subordinate statement contains authority hints")
	}
}

func TestFederationFetchEndpointUnknownSubordinate(t *testing.T) {
	trustAnchor := mustServe(t, Options{})

	fetchURL := trustAnchor.Identifier.URL.JoinPath(FederationFetchEndpoint)
	fetchURL.RawQuery = url.Values{QueryParamSub: []string{"https://unknown.example.com"}}.Encode()

	body, contentType, status := get(t, fetchURL.String())
	if status != http.StatusNotFound {
		t.Fatalf("unexpected status %d", status)
	}

	if contentType != "application/json" {
		t.Errorf("unexpected content type %s", contentType)
	}

	var errorBody map[string]string
	if err := json.Unmarshal(body, &errorBody); err != nil {
		t.Fatalf("error response is not JSON: %s", err.Error())
	}

	if errorBody["error"] != "not_found" {
		t.Errorf("unexpected error code: %s", errorBody["error"])
	}
}

func TestFederationListEndpoint(t *testing.T) {
	trustAnchor := mustServe(t, Options{})
	provider := mustServe(t, Options{
		OpenIDProvider: &OpenIDProviderMetadata{Issuer: "https://op.example.com"},
	})
	relyingParty := mustServe(t, Options{
		OpenIDRelyingParty: &OpenIDRelyingPartyMetadata{
			RedirectURIs: []string{"https://rp.example.com/callback"},
		},
	})

	for _, subordinate := range []*Entity{provider, relyingParty} {
		if err := trustAnchor.AddSubordinate(subordinate); err != nil {
			t.Fatalf("failed to subordinate %s: %s", subordinate.Identifier.String(), err.Error())
		}
		subordinate.AddSuperior(trustAnchor.Identifier)
	}

	listURL := trustAnchor.Identifier.URL.JoinPath(FederationListEndpoint)

	body, _, status := get(t, listURL.String())
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}

	var listed []Identifier
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("list response is not JSON: %s", err.Error())
	}

	if len(listed) != 2 {
		t.Errorf("expected 2 subordinates, got %+v", listed)
	}

	// Filter by entity type
	listURL.RawQuery = url.Values{QueryParamEntityType: []string{string(OpenIDProvider)}}.Encode()
	body, _, status = get(t, listURL.String())
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}

	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("list response is not JSON: %s", err.Error())
	}

	if len(listed) != 1 || !listed[0].Equals(&provider.Identifier) {
		t.Errorf("expected only the provider, got %+v", listed)
	}
}
