package trustchain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/httpclient"
)

func testResolver(t *testing.T, trustAnchor entity.Identifier, options ResolverOptions) Resolver {
	t.Helper()

	return NewResolver(httpclient.New(httpclient.Options{Timeout: 5 * time.Second}), trustAnchor, options)
}

func TestResolve(t *testing.T) {
	fed := buildFederation(t)
	resolver := testResolver(t, fed.trustAnchor.Identifier, ResolverOptions{})

	chain, err := resolver.Resolve(context.Background(), fed.leaf.Identifier)
	require.NoError(t, err)

	// Leaf EC, two subordinate statements, trust anchor EC
	require.Equal(t, 4, chain.Len())

	leaf := chain.Leaf()
	assert.True(t, leaf.Statement.Subject.Equals(&fed.leaf.Identifier))
	assert.True(t, leaf.Statement.IsSelfStatement())

	anchor := chain.Anchor()
	assert.True(t, anchor.Statement.Subject.Equals(&fed.trustAnchor.Identifier))
	assert.True(t, anchor.Statement.IsSelfStatement())

	// The middle links are subordinate statements issued by each superior
	assert.True(t, chain.Links[1].Statement.Subject.Equals(&fed.leaf.Identifier))
	assert.True(t, chain.Links[1].Statement.Issuer.Equals(&fed.intermediate.Identifier))
	assert.True(t, chain.Links[2].Statement.Subject.Equals(&fed.intermediate.Identifier))
	assert.True(t, chain.Links[2].Statement.Issuer.Equals(&fed.trustAnchor.Identifier))

	for _, token := range chain.Tokens() {
		assert.NotEmpty(t, token)
	}
}

func TestResolveLeafIsTrustAnchor(t *testing.T) {
	fed := buildFederation(t)
	resolver := testResolver(t, fed.trustAnchor.Identifier, ResolverOptions{})

	chain, err := resolver.Resolve(context.Background(), fed.trustAnchor.Identifier)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.Len())
}

func TestResolveMissingAuthorityHints(t *testing.T) {
	fed := buildFederation(t)

	// An orphan entity with no superiors
	orphan, err := entity.NewAndServe(localIdentifier(t), entity.Options{})
	require.NoError(t, err)
	t.Cleanup(orphan.CleanUp)

	resolver := testResolver(t, fed.trustAnchor.Identifier, ResolverOptions{})

	_, err = resolver.Resolve(context.Background(), orphan.Identifier)
	assert.ErrorIs(t, err, ErrMissingAuthorityHints)
}

func TestResolveUntrustedAnchor(t *testing.T) {
	fed := buildFederation(t)

	// Anchor the resolver somewhere the chain will never terminate
	otherAnchor := mustIdentifier(t, "https://other-anchor.example.com")
	resolver := testResolver(t, otherAnchor, ResolverOptions{})

	_, err := resolver.Resolve(context.Background(), fed.leaf.Identifier)

	var termination *TerminationError
	require.ErrorAs(t, err, &termination)
	assert.True(t, termination.Expected.Equals(&otherAnchor))
	assert.True(t, termination.Actual.Equals(&fed.trustAnchor.Identifier))
}

func TestResolveDepthBound(t *testing.T) {
	fed := buildFederation(t)
	resolver := testResolver(t, fed.trustAnchor.Identifier, ResolverOptions{MaxDepth: 1})

	_, err := resolver.Resolve(context.Background(), fed.leaf.Identifier)
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

func TestResolveNotRegistered(t *testing.T) {
	trustAnchor, err := entity.NewAndServe(localIdentifier(t), entity.Options{})
	require.NoError(t, err)
	t.Cleanup(trustAnchor.CleanUp)

	// The leaf claims the trust anchor as its superior, but the trust anchor has never emitted a
	// statement about it.
	leaf, err := entity.NewAndServe(localIdentifier(t), entity.Options{})
	require.NoError(t, err)
	t.Cleanup(leaf.CleanUp)
	leaf.AddSuperior(trustAnchor.Identifier)

	resolver := testResolver(t, trustAnchor.Identifier, ResolverOptions{})

	_, err = resolver.Resolve(context.Background(), leaf.Identifier)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestResolveExpiredStatement(t *testing.T) {
	trustAnchor, err := entity.NewAndServe(localIdentifier(t), entity.Options{})
	require.NoError(t, err)
	t.Cleanup(trustAnchor.CleanUp)

	// The leaf signs statements that are already expired
	leaf, err := entity.NewAndServe(localIdentifier(t), entity.Options{
		StatementLifetime: -time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(leaf.CleanUp)

	require.NoError(t, trustAnchor.AddSubordinate(leaf))
	leaf.AddSuperior(trustAnchor.Identifier)

	resolver := testResolver(t, trustAnchor.Identifier, ResolverOptions{})

	_, err = resolver.Resolve(context.Background(), leaf.Identifier)
	assert.ErrorIs(t, err, entity.ErrStatementExpired)
}

func TestFirstHintOnly(t *testing.T) {
	first := mustIdentifier(t, "https://first.example.com")
	second := mustIdentifier(t, "https://second.example.com")

	selected := FirstHintOnly([]entity.Identifier{first, second})
	assert.True(t, selected.Equals(&first))
}
