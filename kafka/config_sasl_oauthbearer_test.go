package kafka

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTokenServer(t *testing.T, requests *atomic.Int64, status int, body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Inc()

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "kconsumer", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "kafka", r.PostForm.Get("scope"))

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func testOAuthConfig(endpoint string) OAuthBearerConfig {
	return OAuthBearerConfig{
		TokenEndpoint: endpoint,
		ClientID:      "kconsumer",
		ClientSecret:  "secret",
		Scope:         "kafka",
	}
}

func TestTokenSource_CachesUntilExpiry(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := newTokenServer(t, requests, http.StatusOK, `{"access_token":"abc","token_type":"bearer","expires_in":3600}`)

	now := time.Date(2024, 2, 6, 16, 0, 0, 0, time.UTC)
	tokens := newTokenSource(testOAuthConfig(srv.URL), time.Second)
	tokens.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		token, err := tokens.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	}
	assert.Equal(t, int64(1), requests.Load())

	// Within the leeway before expiry the token is renewed
	now = now.Add(time.Hour - tokenExpiryLeeway)
	_, err := tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), requests.Load())
}

func TestTokenSource_WithoutExpiryIsNotCached(t *testing.T) {
	requests := atomic.NewInt64(0)
	srv := newTokenServer(t, requests, http.StatusOK, `{"access_token":"abc"}`)

	tokens := newTokenSource(testOAuthConfig(srv.URL), time.Second)
	for i := 0; i < 2; i++ {
		_, err := tokens.Token(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), requests.Load())
}

func TestTokenSource_Errors(t *testing.T) {
	tt := []struct {
		TestName string
		Status   int
		Body     string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_client"}`},
		{"invalid json", http.StatusOK, `not json`},
		{"no access token", http.StatusOK, `{"token_type":"bearer"}`},
	}

	for _, test := range tt {
		t.Run(test.TestName, func(t *testing.T) {
			srv := newTokenServer(t, atomic.NewInt64(0), test.Status, test.Body)

			_, err := newTokenSource(testOAuthConfig(srv.URL), time.Second).Token(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestTLSConfig_Validate(t *testing.T) {
	tt := []struct {
		TestName string
		Cfg      TLSConfig
		IsValid  bool
	}{
		{"empty", TLSConfig{Enabled: true}, true},
		{"ca file", TLSConfig{Enabled: true, CaFilepath: "/ca.pem"}, true},
		{"key twice", TLSConfig{KeyFilepath: "/key.pem", Key: "pem", Cert: "pem"}, false},
		{"mutual tls", TLSConfig{CertFilepath: "/cert.pem", Key: "pem"}, true},
		{"cert without key", TLSConfig{Cert: "pem"}, false},
		{"key without cert", TLSConfig{KeyFilepath: "/key.pem"}, false},
		{"passphrase without key", TLSConfig{Passphrase: "secret"}, false},
	}

	for _, test := range tt {
		t.Run(test.TestName, func(t *testing.T) {
			err := test.Cfg.Validate()
			if test.IsValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
