package sso

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider implements OpenID Connect logins.
type OIDCProvider struct {
	config       *ProviderConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider builds an OIDC provider, running issuer discovery
// against the configured issuer URL.
func NewOIDCProvider(ctx context.Context, config *ProviderConfig) (*OIDCProvider, error) {
	if config.OIDCConfig == nil {
		return nil, fmt.Errorf("oidc config is required")
	}

	provider, err := oidc.NewProvider(ctx, config.OIDCConfig.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        config.OIDCConfig.ClientID,
		SkipIssuerCheck: config.OIDCConfig.SkipIssuerCheck,
	})

	return &OIDCProvider{
		config:   config,
		provider: provider,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     config.OIDCConfig.ClientID,
			ClientSecret: config.OIDCConfig.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.OIDCConfig.RedirectURL,
			Scopes:       config.OIDCConfig.Scopes,
		},
	}, nil
}

func (p *OIDCProvider) Type() ProviderType {
	return ProviderTypeOIDC
}

func (p *OIDCProvider) Name() string {
	return p.config.Name
}

// InitiateLogin redirects to the authorization endpoint.
func (p *OIDCProvider) InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error {
	http.Redirect(w, r, p.oauth2Config.AuthCodeURL(state), http.StatusFound)
	return nil
}

// HandleCallback exchanges the authorization code, verifies the ID
// token, and maps its claims to an SSOUser.
func (p *OIDCProvider) HandleCallback(w http.ResponseWriter, r *http.Request) (*SSOUser, error) {
	ctx := r.Context()

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response carries no id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("id_token verification failed: %w", err)
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
	}

	mapping := p.config.AttributeMapping
	user := &SSOUser{
		ProviderID: p.config.ID,
		Provider:   p.config.Name,
		ExternalID: stringClaim(claims, mapping.UserID),
		Email:      stringClaim(claims, mapping.Email),
		FullName:   stringClaim(claims, mapping.FullName),
		FirstName:  stringClaim(claims, mapping.FirstName),
		LastName:   stringClaim(claims, mapping.LastName),
		Groups:     sliceClaim(claims, mapping.Groups),
		Attributes: make(map[string]string),
	}
	for k, v := range claims {
		if s, ok := v.(string); ok {
			user.Attributes[k] = s
		}
	}

	// Some IdPs only expose email or group membership through the
	// userinfo endpoint.
	if p.config.OIDCConfig.UserinfoEndpoint != "" {
		if extra, err := p.fetchUserInfo(ctx, token); err == nil {
			if email := stringClaim(extra, "email"); email != "" && user.Email == "" {
				user.Email = email
			}
			if groups := sliceClaim(extra, mapping.Groups); len(groups) > 0 {
				user.Groups = groups
			}
			for k, v := range extra {
				if s, ok := v.(string); ok {
					if _, exists := user.Attributes[k]; !exists {
						user.Attributes[k] = s
					}
				}
			}
		}
	}

	if user.ExternalID == "" {
		user.ExternalID = idToken.Subject
	}
	if user.ExternalID == "" {
		return nil, fmt.Errorf("id_token carries no subject")
	}
	if user.Email == "" {
		return nil, fmt.Errorf("id_token carries no email")
	}

	return user, nil
}

func (p *OIDCProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (map[string]interface{}, error) {
	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := info.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Logout is a no-op for OIDC; the console session is destroyed by the
// caller and RP-initiated logout is not implemented.
func (p *OIDCProvider) Logout(w http.ResponseWriter, r *http.Request, sessionIndex string) error {
	return nil
}

// ValidateConfig checks that the OIDC settings are complete.
func (p *OIDCProvider) ValidateConfig() error {
	cfg := p.config.OIDCConfig
	if cfg == nil {
		return fmt.Errorf("oidc config is required")
	}
	if cfg.IssuerURL == "" {
		return fmt.Errorf("issuer_url is required")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if cfg.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	for _, scope := range cfg.Scopes {
		if scope == "openid" {
			return nil
		}
	}
	return fmt.Errorf("scopes must include openid")
}
