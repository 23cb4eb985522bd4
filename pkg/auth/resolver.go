package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/taskflow/pkg/apperrors"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// IdentityLoader builds an identity from the database. Implementations must
// fail closed: a missing or inactive role, a missing or non-active org, and a
// non-active user are all errors.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, userID int64) (*Identity, error)
}

// Resolver turns a bearer token into an Identity, consulting the cache first
type Resolver struct {
	tokens  *TokenManager
	cache   IdentityCache
	loader  IdentityLoader
	metrics *observability.Metrics
}

// NewResolver creates a resolver. A nil cache disables caching.
func NewResolver(tokens *TokenManager, cache IdentityCache, loader IdentityLoader, metrics *observability.Metrics) *Resolver {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Resolver{
		tokens:  tokens,
		cache:   cache,
		loader:  loader,
		metrics: metrics,
	}
}

// Resolve verifies the token and returns the caller's identity.
// Every failure is reported as an Unauthorized app error.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}
	userID, err := claims.UserID()
	if err != nil || userID <= 0 {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	if identity, ok := r.cache.Get(ctx, userID); ok {
		r.metrics.RecordCacheLookup("identity", true)
		if identity.OrgID != claims.OrgID {
			return nil, apperrors.Unauthorized("token does not match organization")
		}
		return identity, nil
	}
	r.metrics.RecordCacheLookup("identity", false)

	identity, err := r.loader.LoadIdentity(ctx, userID)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Kind != apperrors.KindInternal {
			return nil, apperrors.Unauthorized("%s", appErr.Message)
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if identity.OrgID != claims.OrgID {
		return nil, apperrors.Unauthorized("token does not match organization")
	}

	if err := r.cache.Set(ctx, identity); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to cache identity")
	}

	return identity, nil
}

// Invalidator exposes the cache invalidation hooks to services
func (r *Resolver) Invalidator() Invalidator {
	return InstrumentInvalidator(r.cache, r.metrics)
}
