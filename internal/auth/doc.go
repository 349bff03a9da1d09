// Package auth turns credentials and external identity assertions into
// principals the identity layer can act on.
//
// Three providers are implemented:
//
//   - LocalVerifier checks a username and password against the user store.
//     Only active accounts with a confirmed email address may authenticate.
//     It backs the session service's login.
//
//   - OIDCProvider runs the OAuth2 authorization-code exchange against an
//     OpenID Connect provider and verifies the returned ID token. The token
//     claims are mapped onto an identity.ExternalPrincipal.
//
//   - LDAPProvider binds against an LDAP or Active Directory server as the
//     user and maps the directory entry onto an identity.ExternalPrincipal
//     the same way.
//
// None of the providers create or mutate user rows. They assert who the
// caller is; which local account that maps to, and with which roles and
// groups, is decided by identity.GetOrCreateFromPrincipal.
//
// Example usage:
//
//	// Local login, behind the session service
//	verifier := auth.NewLocalVerifier(db)
//	user, err := verifier.Verify(ctx, username, password)
//
//	// OIDC callback
//	provider, err := auth.NewOIDCProvider(ctx, &cfg.OIDC)
//	principal, err := provider.HandleCallback(ctx, code)
//	userID, err := identityService.GetOrCreateFromPrincipal(ctx, principal)
package auth
