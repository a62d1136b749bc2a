// Package auth exchanges credentials for a session cookie.
//
// The Gateway talks to the upstream identity endpoint. A successful login
// stores the returned bearer token in the HttpOnly session cookie; the token
// itself never reaches the browser's scripts.
//
// HTTP surface (mounted under /auth):
//
//	POST /auth/login   {username, password} -> 200 {displayName, role, tokenType}
//	POST /auth/logout                       -> 200 {ok: true}
//	GET  /auth/me                           -> 200 {authenticated: true, subject, role, exp}
//	                                           401 {authenticated: false}
//
// Upstream rejections are relayed verbatim (status and body). A 2xx reply
// that breaks the login contract, such as a missing or already expired token,
// is a 500 with a fixed message. No cookie is written on any failure path.
package auth
