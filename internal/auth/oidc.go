package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/NeverMind-orz/identity-kit/internal/identity"
)

// ErrOIDCDisabled is returned when OIDC is disabled via configuration.
var ErrOIDCDisabled = errors.New("oidc authentication is disabled")

// OIDCConfig holds OpenID Connect (OIDC) configuration for authentication.
type OIDCConfig struct {
	// Enabled indicates if OIDC authentication is enabled.
	Enabled bool
	// ProviderURL is the OIDC provider's discovery URL (e.g., "https://accounts.google.com").
	ProviderURL string
	// ClientID is the OAuth2 client identifier.
	ClientID string
	// ClientSecret is the OAuth2 client secret.
	ClientSecret string
	// RedirectURL is the OAuth2 callback URL where the provider redirects after authentication.
	RedirectURL string
	// Scopes are the OAuth2 scopes to request (default: ["openid", "profile", "email"]).
	Scopes []string
}

// OIDCProvider handles OIDC authentication.
type OIDCProvider struct {
	config   *OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// NewOIDCProvider creates a new OIDC provider.
func NewOIDCProvider(ctx context.Context, config *OIDCConfig) (*OIDCProvider, error) {
	if !config.Enabled {
		return nil, ErrOIDCDisabled
	}

	provider, err := oidc.NewProvider(ctx, config.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: config.ClientID,
	})

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	return &OIDCProvider{
		config:   config,
		provider: provider,
		verifier: verifier,
		oauth2:   oauth2Config,
	}, nil
}

// GenerateStateToken generates a random state token for CSRF protection.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

// GetAuthURL returns the OIDC authorization URL with state token.
func (p *OIDCProvider) GetAuthURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code, verifies the returned
// ID token and maps its claims onto an external principal.
func (p *OIDCProvider) HandleCallback(ctx context.Context, code string) (identity.ExternalPrincipal, error) {
	oauth2Token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return identity.ExternalPrincipal{}, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return identity.ExternalPrincipal{}, ErrNoIDToken
	}

	return p.PrincipalFromIDToken(ctx, rawIDToken)
}

// oidcClaims is the subset of standard ID token claims mapped onto a
// principal.
type oidcClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Picture           string `json:"picture"`
}

// principalFromOIDCClaims maps verified ID token claims onto an external
// principal. The provider's sub claim becomes the external id.
func principalFromOIDCClaims(claims oidcClaims) identity.ExternalPrincipal {
	return identity.ExternalPrincipal{
		Source:     identity.SourceOIDC,
		ExternalID: claims.Sub,
		Email:      claims.Email,
		Username:   claims.PreferredUsername,
		FirstName:  claims.GivenName,
		LastName:   claims.FamilyName,
		Picture:    claims.Picture,
	}
}

// PrincipalFromIDToken verifies a raw ID token and maps its claims onto an
// external principal.
func (p *OIDCProvider) PrincipalFromIDToken(ctx context.Context, rawIDToken string) (identity.ExternalPrincipal, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.ExternalPrincipal{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims oidcClaims

	if err = idToken.Claims(&claims); err != nil {
		return identity.ExternalPrincipal{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	return principalFromOIDCClaims(claims), nil
}

// RefreshToken obtains a new access token using a refresh token.
// This allows extending the provider-side session without re-authentication.
func (p *OIDCProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tokenSource := p.oauth2.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})

	token, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh provider token: %w", err)
	}

	return token, nil
}

// GetLogoutURL constructs the OIDC provider's logout URL if supported.
// It includes the ID token hint and post-logout redirect URI parameters.
// Returns an empty string if the provider doesn't support logout endpoints.
func (p *OIDCProvider) GetLogoutURL(idToken, postLogoutRedirectURI string) string {
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}

	if err := p.provider.Claims(&claims); err != nil || claims.EndSessionEndpoint == "" {
		return ""
	}

	return fmt.Sprintf("%s?id_token_hint=%s&post_logout_redirect_uri=%s",
		claims.EndSessionEndpoint,
		idToken,
		postLogoutRedirectURI,
	)
}
