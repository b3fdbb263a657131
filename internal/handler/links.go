package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/service"
)

// LinkHandler serves the admin link generator and reports.
type LinkHandler struct {
	Links *service.LinkService
	Log   *zap.Logger
}

// NewLinkHandler panics on a nil service.
func NewLinkHandler(links *service.LinkService, log *zap.Logger) *LinkHandler {
	if links == nil {
		panic("nil link service passed to NewLinkHandler")
	}
	return &LinkHandler{Links: links, Log: nopIfNil(log)}
}

type utmRequest struct {
	Source   string `json:"source"   validate:"max=255"`
	Medium   string `json:"medium"   validate:"max=255"`
	Campaign string `json:"campaign" validate:"max=255"`
	Term     string `json:"term"     validate:"max=255"`
	Content  string `json:"content"  validate:"max=255"`
}

type createLinkRequest struct {
	TargetURL string     `json:"targetUrl" validate:"required,http_url,max=2048"`
	Code      string     `json:"code"      validate:"max=256"`
	Campaign  string     `json:"campaign"  validate:"max=256"`
	UTM       utmRequest `json:"utm"`
}

type linkResponse struct {
	Code          string     `json:"code"`
	ShortURL      string     `json:"shortUrl"`
	TargetURL     string     `json:"targetUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
	ScanCount     uint64     `json:"scanCount"`
	LastScannedAt *time.Time `json:"lastScannedAt"`
}

func (h *LinkHandler) view(l *model.ShortLink) linkResponse {
	return linkResponse{
		Code:          l.Code,
		ShortURL:      h.Links.ShortURL(l.Code),
		TargetURL:     l.TargetURL,
		CreatedAt:     l.CreatedAt,
		ScanCount:     l.ScanCount,
		LastScannedAt: l.LastScannedAt,
	}
}

// Create handles POST /v1/links.
func (h *LinkHandler) Create(c echo.Context) error {
	var req createLinkRequest
	if err := bindStrict(c, &req); err != nil {
		return badRequest(c, err)
	}
	l, err := h.Links.CreateLink(c.Request().Context(), service.CreateLinkInput{
		TargetURL: req.TargetURL,
		Code:      req.Code,
		Campaign:  req.Campaign,
		UTM: service.UTM{
			Source:   req.UTM.Source,
			Medium:   req.UTM.Medium,
			Campaign: req.UTM.Campaign,
			Term:     req.UTM.Term,
			Content:  req.UTM.Content,
		},
	})
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	return c.JSON(http.StatusCreated, h.view(l))
}

// Stats handles GET /v1/links/:code.
func (h *LinkHandler) Stats(c echo.Context) error {
	l, err := h.Links.Stats(c.Request().Context(), c.Param("code"))
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	return c.JSON(http.StatusOK, h.view(l))
}

type scanView struct {
	ID         uint64    `json:"id"`
	ScannedAt  time.Time `json:"scannedAt"`
	ClientIP   string    `json:"clientIp"`
	UserAgent  string    `json:"userAgent"`
	City       string    `json:"city,omitempty"`
	Region     string    `json:"region,omitempty"`
	Country    string    `json:"country,omitempty"`
	PostalCode string    `json:"postalCode,omitempty"`
}

func parseTimeParam(c echo.Context, name string) (time.Time, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}

// Scans handles GET /v1/links/:code/scans?since=&until=&limit=.
func (h *LinkHandler) Scans(c echo.Context) error {
	since, ok := parseTimeParam(c, "since")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "reason": "invalid", "field": "since", "error": "since must be RFC3339"})
	}
	until, ok := parseTimeParam(c, "until")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "reason": "invalid", "field": "until", "error": "until must be RFC3339"})
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "reason": "invalid", "field": "limit", "error": "limit must be a number"})
		}
		limit = n
	}

	events, err := h.Links.Scans(c.Request().Context(), c.Param("code"), service.ScanQuery{Since: since, Until: until, Limit: limit})
	if err != nil {
		return writeError(c, h.Log, err, nil)
	}
	out := make([]scanView, 0, len(events))
	for _, ev := range events {
		out = append(out, scanView{
			ID: ev.ID, ScannedAt: ev.ScannedAt, ClientIP: ev.ClientIP, UserAgent: ev.UserAgent,
			City: ev.City, Region: ev.Region, Country: ev.Country, PostalCode: ev.PostalCode,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"code": c.Param("code"), "count": len(out), "scans": out})
}
