// Package verify adapts the Cloudflare Turnstile siteverify endpoint to the
// pass/fail check the reservation engine needs.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the verification service could not give
// an answer.  Callers treat it as a transient failure and fail closed.
var ErrUnavailable = errors.New("verify: turnstile unavailable")

// Turnstile verifies challenge tokens against Cloudflare.
type Turnstile struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	log        *zap.Logger
}

// NewTurnstile creates a verifier.  timeout bounds every siteverify call.
func NewTurnstile(secret, verifyURL string, timeout time.Duration, log *zap.Logger) *Turnstile {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Turnstile{
		secret:     secret,
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With(zap.String("adapter", "turnstile")),
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
	Action     string   `json:"action"`
}

// Verify reports whether token is a valid, unused challenge response.
// remoteIP is optional.  A rejected token yields (false, nil).
//
// The call is never retried: tokens are single-use, so a second attempt
// after a lost response would be rejected as a duplicate.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("verify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.log.Error("siteverify request failed", zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.log.Error("siteverify returned non-200", zap.Int("status", resp.StatusCode))
		return false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("%w: invalid json", ErrUnavailable)
	}
	if !out.Success {
		t.log.Info("turnstile token rejected", zap.Strings("error_codes", out.ErrorCodes))
		// internal-error means Cloudflare itself failed, not the token.
		for _, code := range out.ErrorCodes {
			if code == "internal-error" {
				return false, fmt.Errorf("%w: internal-error", ErrUnavailable)
			}
		}
		return false, nil
	}
	return true, nil
}
