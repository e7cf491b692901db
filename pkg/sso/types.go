package sso

import (
	"time"

	"github.com/secopshq/console/pkg/rbac"
)

// ProviderType identifies the SSO protocol.
type ProviderType string

const (
	ProviderTypeSAML ProviderType = "saml"
	ProviderTypeOIDC ProviderType = "oidc"
)

// ProviderName identifies well-known identity providers with preset
// attribute mappings.
type ProviderName string

const (
	ProviderAzureAD ProviderName = "azuread"
	ProviderOkta    ProviderName = "okta"
	ProviderGoogle  ProviderName = "google"
	ProviderGeneric ProviderName = "generic"
)

// ProviderConfig is a tenant's SSO provider configuration.
type ProviderConfig struct {
	ID           int64        `json:"id"`
	TenantID     int64        `json:"tenant_id"`
	Name         string       `json:"name"`
	ProviderType ProviderType `json:"provider_type"`
	ProviderName ProviderName `json:"provider_name"`
	Enabled      bool         `json:"enabled"`

	// AutoProvision controls whether unknown users are created on
	// first login. When false, only users with an existing mapping
	// can sign in through this provider.
	AutoProvision bool `json:"auto_provision"`

	// DefaultRole is assigned when none of the user's IdP groups
	// match a group mapping. Empty means unmatched users are denied.
	DefaultRole rbac.Role `json:"default_role,omitempty"`

	SAMLConfig *SAMLConfig `json:"saml_config,omitempty"`
	OIDCConfig *OIDCConfig `json:"oidc_config,omitempty"`

	GroupMapping     []GroupMap   `json:"group_mapping,omitempty"`
	AttributeMapping AttributeMap `json:"attribute_mapping"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SAMLConfig holds SAML 2.0 service provider settings.
type SAMLConfig struct {
	EntityID     string `json:"entity_id"`
	SSOURL       string `json:"sso_url"`
	SLOUrl       string `json:"slo_url,omitempty"`
	Certificate  string `json:"certificate"`
	PrivateKey   string `json:"private_key,omitempty"`
	SignRequests bool   `json:"sign_requests"`
	NameIDFormat string `json:"name_id_format,omitempty"`
}

// OIDCConfig holds OpenID Connect client settings.
type OIDCConfig struct {
	IssuerURL        string   `json:"issuer_url"`
	ClientID         string   `json:"client_id"`
	ClientSecret     string   `json:"client_secret,omitempty"`
	RedirectURL      string   `json:"redirect_url"`
	Scopes           []string `json:"scopes"`
	UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
	SkipIssuerCheck  bool     `json:"skip_issuer_check,omitempty"`
}

// AttributeMap names the IdP attributes or claims that carry each user
// field.
type AttributeMap struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Groups    string `json:"groups,omitempty"`
}

// GroupMap maps an IdP group to a console role.
type GroupMap struct {
	Group string    `json:"group"`
	Role  rbac.Role `json:"role"`
}

// ResolveRole determines the role for a user carrying the given IdP
// groups. When several mappings match, the highest-ranked role wins.
// With no match the provider's default role applies; an empty result
// means the login must be refused.
func (c *ProviderConfig) ResolveRole(groups []string) rbac.Role {
	byGroup := make(map[string]rbac.Role, len(c.GroupMapping))
	for _, m := range c.GroupMapping {
		byGroup[m.Group] = m.Role
	}

	var resolved rbac.Role
	for _, g := range groups {
		role, ok := byGroup[g]
		if !ok || !rbac.IsValidRole(role) {
			continue
		}
		if resolved == "" || role.Rank() > resolved.Rank() {
			resolved = role
		}
	}
	if resolved == "" {
		resolved = c.DefaultRole
	}
	return resolved
}

// SSOUser is the identity asserted by an IdP after a successful
// callback.
type SSOUser struct {
	ProviderID int64             `json:"provider_id"`
	Provider   string            `json:"provider"`
	ExternalID string            `json:"external_id"`
	Email      string            `json:"email"`
	FullName   string            `json:"full_name,omitempty"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Groups     []string          `json:"groups,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DisplayName returns the best available human name.
func (u *SSOUser) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.Email
}

// UserMapping links an IdP identity to a local user account.
type UserMapping struct {
	ID          int64     `json:"id"`
	ProviderID  int64     `json:"provider_id"`
	ExternalID  string    `json:"external_id"`
	UserID      int64     `json:"user_id"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func stringClaim(claims map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func sliceClaim(claims map[string]interface{}, key string) []string {
	if key == "" {
		return nil
	}
	switch v := claims[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}
