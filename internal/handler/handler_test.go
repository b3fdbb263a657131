package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campaign-links/internal/service"
)

type testServer struct {
	e        *echo.Echo
	links    *memLinks
	scans    *memScans
	booking  *memBooking
	verifier *stubVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		e:        echo.New(),
		links:    newMemLinks("spring", "https://example.com/spring?utm_source=qr"),
		scans:    &memScans{},
		booking:  newMemBooking(),
		verifier: &stubVerifier{},
	}
	ts.e.Validator = NewRequestValidator()

	links := service.NewLinkService(ts.links, ts.scans, nil, nil, nil, service.LinkOptions{PublicBaseURL: "https://go.example.org/"})
	engine := service.NewEngine(ts.booking, ts.booking, ts.verifier, nil, nil, nil, time.Second)

	rh := NewRedirectHandler(links, nil)
	lh := NewLinkHandler(links, nil)
	res := NewReservationHandler(engine, nil)

	ts.e.GET("/", rh.Resolve)
	ts.e.GET("/:code", rh.Resolve)
	ts.e.POST("/reserve", res.Reserve)
	ts.e.POST("/v1/links", lh.Create)
	ts.e.GET("/v1/links/:code", lh.Stats)
	ts.e.GET("/v1/links/:code/scans", lh.Scans)
	ts.e.POST("/v1/events/:id/slots", res.CreateSlot)
	ts.e.GET("/v1/events/:id/slots", res.ListSlots)
	ts.e.GET("/v1/slots/:id", res.GetSlot)
	ts.e.GET("/v1/slots/:id/reservations", res.ListReservations)
	return ts
}

func (ts *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
