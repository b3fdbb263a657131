package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/config"
)

// bodyRecorder tees the response body into a bounded buffer.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	limit  int
	over   bool
}

// WriteHeader records the status so only 200 responses get stored.
func (w *bodyRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Write forwards b to the client and copies it into buf until the limit
// is crossed.  Once over the limit the copy is dropped for good.
func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.over {
		if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
			w.over = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// responseCacheKey hashes the method plus the parts selected by the key
// strategy.  The default strategy includes the subject so one caller's
// admin report is never served to another.
func responseCacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", c.Path()}
	case "route_query":
		parts = []string{"route", r.URL.Path, "q", r.URL.RawQuery}
	default: // user_route_query
		parts = []string{"user", Subject(c), "route", r.URL.Path, "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(r.Method + ":" + strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// Stored layout: [4 status][4 header length][header JSON][body].
func packResponse(status int, h http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...), nil
}

// unpackResponse reverses packResponse.  ok is false for truncated or
// corrupt entries, which are treated as a miss.
func unpackResponse(b []byte) (int, http.Header, []byte, bool) {
	if len(b) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(b[0:4]))
	n := int(binary.BigEndian.Uint32(b[4:8]))
	if n < 0 || 8+n > len(b) {
		return 0, nil, nil, false
	}
	h := http.Header{}
	if n > 0 {
		if err := json.Unmarshal(b[8:8+n], &h); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, h, b[8+n:], true
}

// ResponseCache replays successful responses from Redis for the
// configured methods.  Only 200 responses that fit MaxBodyBytes are kept.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	// Disabled or no Redis: hand back a pass-through middleware.
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	methods := cfg.MethodSet()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Methods outside the configured set go straight through.
			if !methods[c.Request().Method] {
				return next(c)
			}
			key := responseCacheKey(cfg, c)
			resp := c.Response()

			// Try the cache first.  Any Redis error falls through to the
			// handler as a miss.
			if raw, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				if status, h, body, ok := unpackResponse(raw); ok {
					for k, vs := range h {
						// Let the writer compute the length again.
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vs {
							resp.Header().Add(k, v)
						}
					}
					resp.Header().Set("X-Cache", "HIT")
					resp.WriteHeader(status)
					_, err := resp.Write(body)
					return err
				}
			}

			// Miss: record the handler's output while it is streamed out.
			rec := &bodyRecorder{ResponseWriter: resp.Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			resp.Writer = rec
			resp.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			// Errors, non-200 statuses and oversized bodies are not stored.
			if rec.status != http.StatusOK || rec.over {
				return nil
			}

			// Strip X-Cache so a replay can set HIT itself.
			h := resp.Header().Clone()
			h.Del("X-Cache")
			payload, err := packResponse(rec.status, h, rec.buf.Bytes())
			if err != nil {
				return nil
			}
			// The write survives a client that hung up after the body.
			if err := rdb.Set(context.WithoutCancel(c.Request().Context()), key, payload, ttl).Err(); err != nil {
				log.Warn("response cache write failed", zap.Error(err))
			}
			return nil
		}
	}
}
