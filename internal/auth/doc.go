// Package auth issues and verifies realm identity tokens for the HTTP
// dispatch surface.
//
// Tokens are HS256-signed JWTs. The "realm" claim names the caller group
// checked against the realm allow-lists; "tenant_id" and "sub" carry the
// optional tenant and user identity forwarded to the dispatcher. Identity is
// propagated to handlers through context.Context via WithIdentity and
// FromContext.
package auth
