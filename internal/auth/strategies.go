package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// staticTokenLifetime is the conservative lifetime assumed for a
// pre-provisioned token whose real expiry is unknown.
const staticTokenLifetime = 24 * time.Hour

// RefreshTokenStrategy exchanges a refresh token for a fresh access token
// against a dedicated OAuth token endpoint. The provider may rotate the
// refresh token; the rotated value is captured for the next exchange.
type RefreshTokenStrategy struct {
	Endpoint     string
	ClientID     string
	ClientSecret string

	mu           sync.Mutex
	refreshToken string

	httpClient *http.Client
	nowFunc    func() time.Time
}

// NewRefreshTokenStrategy creates a refresh-grant strategy.
func NewRefreshTokenStrategy(endpoint, clientID, clientSecret, refreshToken string) *RefreshTokenStrategy {
	return &RefreshTokenStrategy{
		Endpoint:     endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		refreshToken: refreshToken,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		nowFunc:      time.Now,
	}
}

// WithHTTPClient overrides the default http.Client.
func (s *RefreshTokenStrategy) WithHTTPClient(hc *http.Client) *RefreshTokenStrategy {
	s.httpClient = hc
	return s
}

func (s *RefreshTokenStrategy) Name() string { return "refresh_token" }

// tokenResponse is the OAuth token endpoint response body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
}

// Obtain performs the refresh-token grant.
func (s *RefreshTokenStrategy) Obtain(ctx context.Context) (Token, error) {
	s.mu.Lock()
	refresh := s.refreshToken
	s.mu.Unlock()

	if refresh == "" {
		return Token{}, eris.New("auth: no refresh token available")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {s.ClientID},
	}
	if s.ClientSecret != "" {
		form.Set("client_secret", s.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, eris.Wrap(err, "auth: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Token{}, eris.Wrap(err, "auth: token endpoint")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, eris.Wrap(err, "auth: read token response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("auth: token endpoint status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return Token{}, resilience.NewTransientError(err, resp.StatusCode)
		}
		return Token{}, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, eris.Wrap(err, "auth: decode token response")
	}
	if tr.AccessToken == "" {
		return Token{}, eris.New("auth: token endpoint returned empty access_token")
	}

	// Capture a rotated refresh token for the next exchange.
	if tr.RefreshToken != "" {
		s.mu.Lock()
		s.refreshToken = tr.RefreshToken
		s.mu.Unlock()
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	return Token{
		AccessToken: tr.AccessToken,
		ExpiresAt:   s.nowFunc().Add(lifetime),
	}, nil
}

// StaticTokenStrategy serves a pre-provisioned token as-is. Its real expiry
// is unknown, so a conservative 24h lifetime is assumed per Obtain call.
type StaticTokenStrategy struct {
	AccessToken string
	nowFunc     func() time.Time
}

// NewStaticTokenStrategy creates a static fallback strategy.
func NewStaticTokenStrategy(token string) *StaticTokenStrategy {
	return &StaticTokenStrategy{AccessToken: token, nowFunc: time.Now}
}

func (s *StaticTokenStrategy) Name() string { return "static" }

// Obtain returns the configured token.
func (s *StaticTokenStrategy) Obtain(_ context.Context) (Token, error) {
	if s.AccessToken == "" {
		return Token{}, eris.New("auth: no static token configured")
	}
	return Token{
		AccessToken: s.AccessToken,
		ExpiresAt:   s.nowFunc().Add(staticTokenLifetime),
	}, nil
}
