package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/instrumentation"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

// TokenProvider supplies valid Google access tokens per company.
type TokenProvider interface {
	// Token returns the stored access token, refreshing it first when expired.
	Token(ctx context.Context, company string) (*oauth2.Token, error)

	// ForceRefresh refreshes the access token regardless of its expiry.
	ForceRefresh(ctx context.Context, company string) (*oauth2.Token, error)
}

// IdentityResolver resolves identities and drops cached ones.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, company string) (*store.Identity, error)
	Invalidate(ctx context.Context, company string)
}

// TokenProviderOptions configures a StoreTokenProvider.
type TokenProviderOptions struct {
	// HTTPClient is used for the token endpoint. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Now returns the current instant. Defaults to time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// StoreTokenProvider refreshes tokens with the refresh-token grant and writes
// the new access token and expiry back to the identity store.
type StoreTokenProvider struct {
	config     *oauth2.Config
	identities IdentityResolver
	tokens     store.IdentityStore
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

var _ TokenProvider = (*StoreTokenProvider)(nil)

// NewStoreTokenProvider creates a StoreTokenProvider.
func NewStoreTokenProvider(config *oauth2.Config, identities IdentityResolver, tokens store.IdentityStore, opts TokenProviderOptions) *StoreTokenProvider {
	p := &StoreTokenProvider{
		config:     config,
		identities: identities,
		tokens:     tokens,
		httpClient: opts.HTTPClient,
		now:        opts.Now,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Token implements TokenProvider.
func (p *StoreTokenProvider) Token(ctx context.Context, company string) (*oauth2.Token, error) {
	identity, err := p.identities.ResolveIdentity(ctx, company)
	if err != nil {
		return nil, err
	}
	if !identity.Expired(p.now()) {
		return &oauth2.Token{
			AccessToken:  identity.AccessToken,
			TokenType:    tokenType(identity),
			RefreshToken: identity.RefreshToken,
			Expiry:       identity.Expiry,
		}, nil
	}
	return p.refresh(ctx, identity)
}

// ForceRefresh implements TokenProvider.
func (p *StoreTokenProvider) ForceRefresh(ctx context.Context, company string) (*oauth2.Token, error) {
	identity, err := p.identities.ResolveIdentity(ctx, company)
	if err != nil {
		return nil, err
	}
	return p.refresh(ctx, identity)
}

func (p *StoreTokenProvider) refresh(ctx context.Context, identity *store.Identity) (token *oauth2.Token, err error) {
	company := identity.CompanyName
	logger := logging.WithOperation(logging.WithCompany(p.logger, company), "token_refresh")

	if identity.RefreshToken == "" {
		return nil, apperr.Unauthorized("no refresh token stored for company %q", company)
	}

	start := time.Now()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh,
		instrumentation.NewSpanAttributeBuilder().WithCompany(company).Build()...)
	defer func() {
		instrumentation.SetSpanError(span, err)
		span.End()

		status, result := instrumentation.StatusSuccess, instrumentation.OAuthResultSuccess
		if err != nil {
			status, result = instrumentation.StatusError, instrumentation.OAuthResultFailure
		}
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh, status, time.Since(start))
		p.metrics.RecordOAuthTokenRefresh(ctx, result)
	}()

	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	fresh, err := p.config.TokenSource(ctx, &oauth2.Token{
		RefreshToken: identity.RefreshToken,
		TokenType:    tokenType(identity),
	}).Token()
	if err != nil {
		logger.Warn("token refresh failed", logging.Err(err))
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, fmt.Sprintf("failed to refresh access token for company %q", company))
	}

	if fresh.Expiry.IsZero() {
		fresh.Expiry = p.now().Add(DefaultTokenLifetime * time.Second)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = identity.RefreshToken
	}

	// The new token is usable even if it could not be persisted.
	if err := p.tokens.UpdateAccessToken(ctx, company, fresh.AccessToken, fresh.Expiry); err != nil {
		logger.Warn("failed to persist refreshed token", logging.Err(err))
	}
	p.identities.Invalidate(ctx, company)

	logger.Info("access token refreshed",
		slog.String("token", logging.SanitizeToken(fresh.AccessToken)),
		slog.Time("expiry", fresh.Expiry))
	return fresh, nil
}

func tokenType(identity *store.Identity) string {
	if identity.TokenType == "" {
		return "Bearer"
	}
	return identity.TokenType
}
