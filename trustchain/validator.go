package trustchain

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/oidf-tools/fedtrust/entity"
	"github.com/oidf-tools/fedtrust/errors"
	"github.com/oidf-tools/fedtrust/httpclient"
	"github.com/oidf-tools/fedtrust/metrics"
)

// ValidatorOptions configures a Validator.
type ValidatorOptions struct {
	// HTTPClient is used for all federation requests. Nil means a client with default timeouts.
	HTTPClient *httpclient.Client
	// CacheTTL is how long validation results are cached. Zero means DefaultCacheTTL.
	CacheTTL time.Duration
	// MaxDepth bounds the authority_hints walk. Zero means DefaultMaxDepth.
	MaxDepth int
	// SelectHint picks among multiple authority hints. Nil means FirstHintOnly.
	SelectHint HintSelector
	// Clock is the time source for expiry checks and cache TTLs. Nil means the real clock.
	Clock clockwork.Clock
	// Logger receives per-validation logging. The zero value logs nothing.
	Logger zerolog.Logger
}

// Validator validates entities against a single configured trust anchor, caching results.
type Validator struct {
	trustAnchor entity.Identifier
	resolver    Resolver
	cache       *Cache
	clock       clockwork.Clock
	logger      zerolog.Logger
}

// NewValidator constructs a Validator anchored in trustAnchor. A trust anchor that is not a valid
// entity identifier is a configuration error.
func NewValidator(trustAnchor string, options ValidatorOptions) (*Validator, error) {
	anchorIdentifier, err := entity.NewIdentifier(trustAnchor)
	if err != nil {
		return nil, errors.Errorf("invalid trust anchor: %w", err)
	}

	clock := options.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	client := options.HTTPClient
	if client == nil {
		defaultClient := httpclient.New(httpclient.Options{})
		client = &defaultClient
	}

	return &Validator{
		trustAnchor: anchorIdentifier,
		resolver: NewResolver(*client, anchorIdentifier, ResolverOptions{
			MaxDepth:   options.MaxDepth,
			SelectHint: options.SelectHint,
			Clock:      clock,
		}),
		cache:  NewCache(options.CacheTTL, clock),
		clock:  clock,
		logger: options.Logger,
	}, nil
}

// TrustAnchor returns the trust anchor this validator anchors chains in.
func (v *Validator) TrustAnchor() entity.Identifier {
	return v.trustAnchor
}

// Cache returns the validator's result cache.
func (v *Validator) Cache() *Cache {
	return v.cache
}

// Validate checks whether a valid trust chain exists from the identified entity to the configured
// trust anchor. Results, valid or not, are cached; a cached result is returned as-is with its
// Cached flag set. Validate never returns an error: failures are reported in the result's Errors.
func (v *Validator) Validate(ctx context.Context, entityID string) ValidationResult {
	identifier, err := entity.NewIdentifier(entityID)
	if err != nil {
		// Not cached: there is no well-formed identifier to key the cache on.
		return ValidationResult{
			IsValid:   false,
			Errors:    []ValidationError{{Code: CodeMalformedStatement, Message: err.Error()}},
			Timestamp: v.clock.Now(),
		}
	}

	if cached, ok := v.cache.Get(identifier.String()); ok {
		v.logger.Debug().
			Str("entity", identifier.String()).
			Bool("is_valid", cached.IsValid).
			Msg("validation served from cache")
		return cached
	}

	start := v.clock.Now()
	result := v.validate(ctx, identifier)
	elapsed := v.clock.Now().Sub(start)

	outcome := "valid"
	if !result.IsValid {
		outcome = "invalid"
		for _, validationError := range result.Errors {
			metrics.RecordValidationError(string(validationError.Code))
		}
	}
	metrics.RecordValidation(outcome, elapsed)

	v.cache.Put(identifier.String(), result)

	event := v.logger.Info()
	if !result.IsValid {
		event = v.logger.Warn()
	}
	event.
		Str("entity", identifier.String()).
		Bool("is_valid", result.IsValid).
		Dur("elapsed", elapsed).
		Msg("validation complete")

	return result
}

func (v *Validator) validate(ctx context.Context, identifier entity.Identifier) ValidationResult {
	result := ValidationResult{
		Entity:    identifier,
		Timestamp: v.clock.Now(),
	}

	chain, err := v.resolver.Resolve(ctx, identifier)
	if err != nil {
		v.logger.Debug().
			Str("entity", identifier.String()).
			Err(err).
			Msg("trust chain resolution failed")
		result.Errors = append(result.Errors, newValidationError(err))
		return result
	}

	metrics.RecordChainLength(chain.Len())

	result.IsValid = true
	result.TrustAnchor = &v.trustAnchor
	result.Chain = chain.Tokens()

	return result
}
