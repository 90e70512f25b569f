package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type OAuthBearerConfig struct {
	TokenEndpoint string `koanf:"tokenEndpoint"`
	ClientID      string `koanf:"clientId"`
	ClientSecret  string `koanf:"clientSecret"`
	Scope         string `koanf:"scope"`
}

func (c *OAuthBearerConfig) Validate() error {
	if c.TokenEndpoint == "" {
		return fmt.Errorf("OAuthBearer token endpoint is not specified")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("OAuthBearer client credentials are not specified")
	}
	return nil
}

// tokenExpiryLeeway renews tokens before they expire so that an authentication never uses a token that expires
// while the SASL handshake is in flight.
const tokenExpiryLeeway = 30 * time.Second

// tokenSource fetches access tokens with the client credentials grant. Tokens are reused until shortly before
// they expire, each new broker connection authenticates again.
type tokenSource struct {
	cfg        OAuthBearerConfig
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func newTokenSource(cfg OAuthBearerConfig, timeout time.Duration) *tokenSource {
	return &tokenSource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	res, err := s.requestToken(ctx)
	if err != nil {
		return "", err
	}

	s.token = res.AccessToken
	s.expiresAt = time.Time{}
	if res.ExpiresIn > 0 {
		s.expiresAt = s.now().Add(time.Duration(res.ExpiresIn)*time.Second - tokenExpiryLeeway)
	}

	return s.token, nil
}

func (s *tokenSource) requestToken(ctx context.Context) (tokenResponse, error) {
	form := url.Values{"grant_type": []string{"client_credentials"}}
	if s.cfg.Scope != "" {
		form.Set("scope", s.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(url.QueryEscape(s.cfg.ClientID), url.QueryEscape(s.cfg.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("token request failed with status code %d", resp.StatusCode)
	}

	var res tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return tokenResponse{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if res.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("access_token not found in token response")
	}

	return res, nil
}
