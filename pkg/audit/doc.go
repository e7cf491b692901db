// Package audit records security-relevant events: logins, token
// lifecycle, role and grant changes, tenant administration, and SSO
// configuration changes. Events are tenant-scoped and queryable
// through the audit API, which backs the console's audit module.
//
// Writes go through the Logger interface so handlers never block on
// audit failures they cannot handle; the DB logger is the production
// sink and a no-op logger stands in when auditing is disabled.
package audit
