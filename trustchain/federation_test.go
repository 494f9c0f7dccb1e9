package trustchain

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oidf-tools/fedtrust/entity"
)

// localIdentifier reserves a free loopback port and returns an entity identifier using it.
func localIdentifier(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	return fmt.Sprintf("http://localhost:%d", port)
}

// federation is a three-level test federation served on loopback ports.
type federation struct {
	trustAnchor  *entity.Entity
	intermediate *entity.Entity
	leaf         *entity.Entity
}

// buildFederation serves a trust anchor, an intermediate subordinated to it and a leaf
// subordinated to the intermediate. Servers are torn down when the test finishes.
func buildFederation(t *testing.T) federation {
	t.Helper()

	trustAnchor, err := entity.NewAndServe(localIdentifier(t), entity.Options{})
	require.NoError(t, err)
	t.Cleanup(trustAnchor.CleanUp)

	intermediate, err := entity.NewAndServe(localIdentifier(t), entity.Options{})
	require.NoError(t, err)
	t.Cleanup(intermediate.CleanUp)

	leaf, err := entity.NewAndServe(localIdentifier(t), entity.Options{
		OpenIDRelyingParty: &entity.OpenIDRelyingPartyMetadata{
			RedirectURIs: []string{"https://rp.example.com/callback"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(leaf.CleanUp)

	require.NoError(t, trustAnchor.AddSubordinate(intermediate))
	intermediate.AddSuperior(trustAnchor.Identifier)

	require.NoError(t, intermediate.AddSubordinate(leaf))
	leaf.AddSuperior(intermediate.Identifier)

	return federation{
		trustAnchor:  trustAnchor,
		intermediate: intermediate,
		leaf:         leaf,
	}
}
