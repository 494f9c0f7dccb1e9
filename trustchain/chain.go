package trustchain

import (
	"github.com/oidf-tools/fedtrust/entity"
)

// Link is one statement in a trust chain: the compact JWT as retrieved from the wire, plus its
// verified claims.
type Link struct {
	// Token is the compact serialization of the signed entity statement.
	Token string
	// Statement is the verified claims of Token.
	Statement *entity.EntityStatement
}

// TrustChain is an ordered chain of verified entity statements. The leaf entity's configuration is
// first, followed by one subordinate statement per superior hop, and the trust anchor's entity
// configuration is last.
// https://openid.net/specs/openid-federation-1_0-41.html#section-4
type TrustChain struct {
	Links []Link
}

// Leaf returns the leaf entity's configuration.
func (c *TrustChain) Leaf() *Link {
	if len(c.Links) == 0 {
		return nil
	}

	return &c.Links[0]
}

// Anchor returns the trust anchor's entity configuration.
func (c *TrustChain) Anchor() *Link {
	if len(c.Links) == 0 {
		return nil
	}

	return &c.Links[len(c.Links)-1]
}

// Tokens returns the compact JWTs of the chain, in chain order.
func (c *TrustChain) Tokens() []string {
	tokens := make([]string, 0, len(c.Links))
	for _, link := range c.Links {
		tokens = append(tokens, link.Token)
	}

	return tokens
}

// Len returns the number of statements in the chain.
func (c *TrustChain) Len() int {
	return len(c.Links)
}
