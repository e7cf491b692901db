package sso

import (
	"context"
	"fmt"
	"net/http"
)

// Provider is one configured SSO integration. Implementations handle
// the redirect dance for their protocol and hand back a verified
// SSOUser on callback.
type Provider interface {
	Type() ProviderType
	Name() string
	InitiateLogin(w http.ResponseWriter, r *http.Request, state string) error
	HandleCallback(w http.ResponseWriter, r *http.Request) (*SSOUser, error)
	Logout(w http.ResponseWriter, r *http.Request, sessionIndex string) error
	ValidateConfig() error
}

// ProviderFactory builds Provider instances from stored configuration.
type ProviderFactory struct {
	baseURL string
}

// NewProviderFactory creates a factory. baseURL is the externally
// visible origin of the console, used for callback and metadata URLs.
func NewProviderFactory(baseURL string) *ProviderFactory {
	return &ProviderFactory{baseURL: baseURL}
}

// CreateProvider instantiates the provider for a config. OIDC
// providers perform issuer discovery, so a context is required.
func (f *ProviderFactory) CreateProvider(ctx context.Context, config *ProviderConfig) (Provider, error) {
	switch config.ProviderType {
	case ProviderTypeSAML:
		return NewSAMLProvider(config, f.baseURL)
	case ProviderTypeOIDC:
		return NewOIDCProvider(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", config.ProviderType)
	}
}

// PresetAttributeMap returns the attribute mapping convention for a
// well-known identity provider. Unknown names get the generic OIDC
// claim set.
func PresetAttributeMap(name ProviderName) AttributeMap {
	switch name {
	case ProviderAzureAD:
		return AttributeMap{
			UserID:    "oid",
			Email:     "preferred_username",
			FullName:  "name",
			FirstName: "given_name",
			LastName:  "family_name",
			Groups:    "groups",
		}
	case ProviderOkta:
		return AttributeMap{
			UserID:    "sub",
			Email:     "email",
			FullName:  "name",
			FirstName: "given_name",
			LastName:  "family_name",
			Groups:    "groups",
		}
	case ProviderGoogle:
		return AttributeMap{
			UserID:    "sub",
			Email:     "email",
			FullName:  "name",
			FirstName: "given_name",
			LastName:  "family_name",
		}
	default:
		return AttributeMap{
			UserID:    "sub",
			Email:     "email",
			FullName:  "name",
			FirstName: "given_name",
			LastName:  "family_name",
			Groups:    "groups",
		}
	}
}
