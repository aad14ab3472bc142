// Package resolver maps a company name to its OAuth identity and a user id to
// its scheduling configuration.
//
// Identities are cached per company through a Cache with a TTL; the token
// refresh path calls Invalidate so a refreshed token is never shadowed by a
// stale entry. Configurations are read from the store on every call.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

// Resolver resolves identities and scheduling configurations.
type Resolver struct {
	identities store.IdentityStore
	configs    store.ConfigStore
	cache      Cache
	logger     *slog.Logger
}

// New creates a Resolver. A nil cache disables identity caching.
func New(identities store.IdentityStore, configs store.ConfigStore, cache Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		identities: identities,
		configs:    configs,
		cache:      cache,
		logger:     logger,
	}
}

// ResolveIdentity returns the identity stored for company.
func (r *Resolver) ResolveIdentity(ctx context.Context, company string) (*store.Identity, error) {
	if r.cache != nil {
		if identity, ok := r.cache.Get(ctx, company); ok {
			return identity, nil
		}
	}

	identity, err := r.identities.GetIdentity(ctx, company)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("company %q not found", company)
		}
		return nil, apperr.Wrap(apperr.KindUnexpected, err, "failed to load credentials")
	}

	if r.cache != nil {
		r.cache.Set(ctx, company, identity)
	}
	r.logger.Debug("identity resolved", logging.Company(company), logging.UserID(identity.UserID))
	return identity, nil
}

// ResolveConfig returns the scheduling configuration for userID.
func (r *Resolver) ResolveConfig(ctx context.Context, userID string) (*store.SchedulingConfig, error) {
	cfg, err := r.configs.GetConfig(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("configuration for user %q not found", userID)
		}
		return nil, apperr.Wrap(apperr.KindUnexpected, err, "failed to load configuration")
	}
	return cfg, nil
}

// Invalidate drops the cached identity for company.
func (r *Resolver) Invalidate(ctx context.Context, company string) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, company)
	}
}
