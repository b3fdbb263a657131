package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/service"
)

// RedirectHandler serves GET /:code.
type RedirectHandler struct {
	Links *service.LinkService
	Log   *zap.Logger
}

// NewRedirectHandler panics on a nil service.
func NewRedirectHandler(links *service.LinkService, log *zap.Logger) *RedirectHandler {
	if links == nil {
		panic("nil link service passed to NewRedirectHandler")
	}
	return &RedirectHandler{Links: links, Log: nopIfNil(log)}
}

// edge geo headers, first non-empty wins
var (
	cityHeaders    = []string{"CF-IPCity", "X-Vercel-IP-City"}
	regionHeaders  = []string{"CF-Region", "X-Vercel-IP-Country-Region"}
	countryHeaders = []string{"CF-IPCountry", "X-Vercel-IP-Country"}
	postalHeaders  = []string{"CF-Postal-Code", "X-Vercel-IP-Postal-Code"}
)

func firstHeader(h http.Header, names []string) string {
	for _, n := range names {
		if v := h.Get(n); v != "" {
			// Vercel percent-encodes city names.
			if un, err := url.PathUnescape(v); err == nil {
				return un
			}
			return v
		}
	}
	return ""
}

func visitFrom(c echo.Context) service.Visit {
	h := c.Request().Header
	return service.Visit{
		IP:         c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
		City:       firstHeader(h, cityHeaders),
		Region:     firstHeader(h, regionHeaders),
		Country:    firstHeader(h, countryHeaders),
		PostalCode: firstHeader(h, postalHeaders),
	}
}

// Resolve redirects to the code's target with 302.  Misses answer 404 and
// an empty code answers 400, both in plain text.
func (h *RedirectHandler) Resolve(c echo.Context) error {
	target, err := h.Links.Resolve(c.Request().Context(), c.Param("code"), visitFrom(c))
	switch {
	case err == nil:
		c.Response().Header().Set("Cache-Control", "no-store")
		return c.Redirect(http.StatusFound, target)
	case errors.Is(err, service.ErrValidation):
		return c.String(http.StatusBadRequest, "missing short code")
	case errors.Is(err, service.ErrNotFound):
		return c.String(http.StatusNotFound, "short link not found")
	default:
		h.Log.Error("resolve failed", zap.String("code", c.Param("code")), zap.Error(err))
		return c.String(http.StatusServiceUnavailable, "temporarily unavailable, please try again")
	}
}
