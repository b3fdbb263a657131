package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// RequireJWT validates an HS256 Bearer token issued by the hosting
// platform and stores its subject and role in the context.  Tokens are
// only ever verified here, never minted.
func RequireJWT(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Extract the token from the Authorization header.  It must
			// use the "Bearer <token>" form.
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, found := strings.CutPrefix(auth, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			// Parse and verify the signature, the algorithm and exp.
			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, keyFunc)
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			// Store the identity for downstream handlers.  A token
			// without a role claim gets "" and fails RequireRole.
			sub, _ := claims.GetSubject()
			role, _ := claims["role"].(string)
			c.Set(CtxSubject, sub)
			c.Set(CtxRole, role)
			// Otherwise call the next handler in the chain
			return next(c)
		}
	}
}
