package trustchain

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/errors"
	"github.com/oidf-tools/fedtrust/httpclient"
)

// DefaultMaxDepth bounds how many superiors the resolver will walk before giving up. OpenID
// Federation deployments rarely nest more than a few levels deep, so exhausting this bound almost
// always means a malformed or adversarial federation.
const DefaultMaxDepth = 10

var (
	// ErrMissingAuthorityHints means a leaf entity configuration advertised no authority_hints.
	ErrMissingAuthorityHints = stderrors.New("entity configuration has no authority_hints")
	// ErrDepthExceeded means the authority_hints walk exceeded the resolver's depth bound.
	ErrDepthExceeded = stderrors.New("trust chain depth bound exceeded")
)

// TerminationError means a chain was walked to its end but did not terminate at the configured
// trust anchor.
type TerminationError struct {
	Expected entity.Identifier
	Actual   entity.Identifier
}

func (t *TerminationError) Error() string {
	return fmt.Sprintf("trust chain terminates at '%s', not the configured trust anchor '%s'",
		t.Actual.String(), t.Expected.String())
}

// HintSelector picks which authority hint to walk when an entity advertises several. Hints is
// never empty.
type HintSelector func(hints []entity.Identifier) entity.Identifier

// FirstHintOnly walks only the first advertised authority hint. Exploring alternative hints on
// failure is deliberately not done: it makes resolution deterministic and bounds the number of
// network round trips per validation.
func FirstHintOnly(hints []entity.Identifier) entity.Identifier {
	return hints[0]
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// MaxDepth bounds the authority_hints walk. Zero means DefaultMaxDepth.
	MaxDepth int
	// SelectHint picks among multiple authority hints. Nil means FirstHintOnly.
	SelectHint HintSelector
	// Clock is the time source for statement expiry checks. Nil means the real clock.
	Clock clockwork.Clock
}

// Resolver builds trust chains by walking authority_hints from a leaf entity up to a trust anchor,
// verifying every statement along the way.
type Resolver struct {
	discoverer  Discoverer
	fetcher     Fetcher
	trustAnchor entity.Identifier
	maxDepth    int
	selectHint  HintSelector
	clock       clockwork.Clock
}

// NewResolver constructs a Resolver that anchors chains in trustAnchor.
func NewResolver(client httpclient.Client, trustAnchor entity.Identifier, options ResolverOptions) Resolver {
	maxDepth := options.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}

	selectHint := options.SelectHint
	if selectHint == nil {
		selectHint = FirstHintOnly
	}

	clock := options.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return Resolver{
		discoverer:  NewDiscoverer(client),
		fetcher:     NewFetcher(client),
		trustAnchor: trustAnchor,
		maxDepth:    maxDepth,
		selectHint:  selectHint,
		clock:       clock,
	}
}

// discoverVerified fetches an entity configuration and verifies its self-signature.
func (r *Resolver) discoverVerified(ctx context.Context, identifier entity.Identifier) (string, *entity.EntityStatement, error) {
	token, _, err := r.discoverer.Discover(ctx, identifier)
	if err != nil {
		return "", nil, err
	}

	statement, err := entity.VerifyStatement(token, nil, r.clock.Now())
	if err != nil {
		return "", nil, errors.Errorf("entity configuration for '%s' failed verification: %w",
			identifier.String(), err)
	}

	return token, statement, nil
}

// Resolve builds and verifies a trust chain from leaf to this resolver's trust anchor. The walk
// follows one authority hint per level, chosen by the configured HintSelector, and stops as soon
// as it reaches the trust anchor. An entity with no superiors that is not the trust anchor, or a
// walk deeper than the depth bound, fails resolution.
func (r *Resolver) Resolve(ctx context.Context, leaf entity.Identifier) (*TrustChain, error) {
	leafToken, leafStatement, err := r.discoverVerified(ctx, leaf)
	if err != nil {
		return nil, err
	}

	chain := &TrustChain{Links: []Link{{Token: leafToken, Statement: leafStatement}}}

	// Degenerate chain: the leaf is the trust anchor itself.
	if leaf.Equals(&r.trustAnchor) {
		return chain, nil
	}

	current := leafStatement
	for depth := 0; ; depth++ {
		hints := current.AuthorityHints
		if len(hints) == 0 {
			if depth == 0 {
				return nil, errors.Errorf("'%s': %w", leaf.String(), ErrMissingAuthorityHints)
			}

			return nil, &TerminationError{Expected: r.trustAnchor, Actual: current.Subject}
		}

		if depth >= r.maxDepth {
			return nil, errors.Errorf("gave up walking superiors of '%s' after %d levels: %w",
				leaf.String(), r.maxDepth, ErrDepthExceeded)
		}

		superior := r.selectHint(hints)

		superiorToken, superiorStatement, err := r.discoverVerified(ctx, superior)
		if err != nil {
			return nil, err
		}

		subordinateToken, err := r.fetcher.FetchStatement(ctx, superiorStatement, current.Subject)
		if err != nil {
			return nil, err
		}

		subordinateStatement, err := entity.VerifyStatement(
			subordinateToken, &superiorStatement.FederationEntityKeys, r.clock.Now())
		if err != nil {
			return nil, errors.Errorf(
				"statement for '%s' from superior '%s' failed verification: %w",
				current.Subject.String(), superior.String(), err)
		}

		if !subordinateStatement.Issuer.Equals(&superior) {
			return nil, errors.Errorf(
				"statement fetched from '%s' claims issuer '%s': %w", superior.String(),
				subordinateStatement.Issuer.String(), entity.ErrMalformedStatement)
		}

		if !subordinateStatement.Subject.Equals(&current.Subject) {
			return nil, errors.Errorf(
				"statement fetched from '%s' is about '%s', not '%s': %w", superior.String(),
				subordinateStatement.Subject.String(), current.Subject.String(),
				entity.ErrMalformedStatement)
		}

		chain.Links = append(chain.Links, Link{Token: subordinateToken, Statement: subordinateStatement})

		if superior.Equals(&r.trustAnchor) {
			chain.Links = append(chain.Links, Link{Token: superiorToken, Statement: superiorStatement})
			return chain, nil
		}

		current = superiorStatement
	}
}
