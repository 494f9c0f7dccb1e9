// Package test contains an end-to-end harness that runs a complete federation, every entity a
// real HTTP server on a loopback port.
package test

import (
	"fmt"
	"net"
	"testing"

	"github.com/oidf-tools/fedtrust/entity"
)

// Federation is a running test federation: a trust anchor, a chain of intermediates beneath it,
// and an OpenID Provider and Relying Party subordinated to the deepest intermediate.
type Federation struct {
	TrustAnchor   *entity.Entity
	Intermediates []*entity.Entity
	Provider      *entity.Entity
	RelyingParty  *entity.Entity
}

// NewFederation builds and serves a federation with the given number of intermediate levels
// between the trust anchor and the leaves. All servers are torn down when the test finishes.
func NewFederation(t *testing.T, intermediateLevels int) *Federation {
	t.Helper()

	trustAnchor := serveEntity(t, entity.Options{})

	intermediates := make([]*entity.Entity, 0, intermediateLevels)
	superior := trustAnchor
	for i := 0; i < intermediateLevels; i++ {
		intermediate := serveEntity(t, entity.Options{})
		subordinate(t, superior, intermediate)
		intermediates = append(intermediates, intermediate)
		superior = intermediate
	}

	provider := serveEntity(t, entity.Options{
		OpenIDProvider: &entity.OpenIDProviderMetadata{
			Issuer:          "https://op.example.com",
			TokenEndpoint:   "https://op.example.com/token",
			ScopesSupported: []string{"openid"},
		},
	})
	subordinate(t, superior, provider)

	relyingParty := serveEntity(t, entity.Options{
		OpenIDRelyingParty: &entity.OpenIDRelyingPartyMetadata{
			RedirectURIs:            []string{"https://rp.example.com/callback"},
			ClientRegistrationTypes: []string{"automatic"},
		},
	})
	subordinate(t, superior, relyingParty)

	return &Federation{
		TrustAnchor:   trustAnchor,
		Intermediates: intermediates,
		Provider:      provider,
		RelyingParty:  relyingParty,
	}
}

// ChainLength is the expected number of statements in a trust chain from a leaf of this
// federation to its trust anchor.
func (f *Federation) ChainLength() int {
	// Leaf EC, one subordinate statement per hop, trust anchor EC
	return len(f.Intermediates) + 3
}

func serveEntity(t *testing.T, options entity.Options) *entity.Entity {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %s", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	served, err := entity.NewAndServe(fmt.Sprintf("http://localhost:%d", port), options)
	if err != nil {
		t.Fatalf("failed to serve entity: %s", err)
	}
	t.Cleanup(served.CleanUp)

	return served
}

func subordinate(t *testing.T, superior, sub *entity.Entity) {
	t.Helper()

	if err := superior.AddSubordinate(sub); err != nil {
		t.Fatalf("failed to subordinate %s to %s: %s",
			sub.Identifier.String(), superior.Identifier.String(), err)
	}
	sub.AddSuperior(superior.Identifier)
}
