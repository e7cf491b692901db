// Package sso implements single sign-on for the console: per-tenant
// identity provider configuration (SAML 2.0 and OpenID Connect),
// just-in-time user provisioning, and minting of login sessions.
//
// Each tenant registers one or more providers. A successful callback
// yields an SSOUser, which the Provisioner maps to a local user record,
// a tenant membership with a role derived from the provider's group
// mapping, and a Redis-backed session whose claims carry a snapshot of
// the member's permissions at login time. That snapshot is provisional:
// authorization decisions defer to the live permission sync layer once
// it has loaded, and the claims only bridge the gap.
package sso
