package middleware // middleware provides shared request processing for handlers

// identity.go defines helpers shared across middleware files.  They read
// the subject and role claims that RequireJWT stores in the Echo context.
// Public routes never run RequireJWT, so callers there get "anon" back.

import "github.com/labstack/echo/v4"

// Context keys set by RequireJWT.
const (
	CtxSubject = "user_id" // subject ("sub") claim of the verified token
	CtxRole    = "role"    // role claim of the verified token
)

// anonymous is the subject used for rate limit and cache keys when no
// token was presented.
const anonymous = "anon"

// Subject returns the authenticated subject, or "anon" on public routes.
func Subject(c echo.Context) string {
	// The value is only present when RequireJWT ran and the token carried
	// a non-empty subject.
	if s, ok := c.Get(CtxSubject).(string); ok && s != "" {
		return s
	}
	return anonymous
}

// Role returns the role claim stored by RequireJWT, or "".
func Role(c echo.Context) string {
	// A missing or non-string value yields "" which no role set contains.
	r, _ := c.Get(CtxRole).(string)
	return r
}
