package rofex

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authenticator performs the username/password login against the broker's
// token endpoint and caches the resulting auth token. The token is a JWT;
// its expiry claim is read (without signature verification, the broker
// signed it) to know when to log in again.
type authenticator struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// tokens are refreshed this long before their claimed expiry
const tokenSlack = 5 * time.Minute

// fallback lifetime when the token carries no usable expiry claim
const tokenFallbackTTL = 12 * time.Hour

func newAuthenticator(baseURL, username, password string, httpClient *http.Client) *authenticator {
	return &authenticator{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: httpClient,
	}
}

// Token returns a valid auth token, logging in when the cached one is
// missing or close to expiry.
func (a *authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiry.Add(-tokenSlack)) {
		return a.token, nil
	}
	if err := a.login(ctx); err != nil {
		return "", err
	}
	return a.token, nil
}

func (a *authenticator) login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/getToken", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Username", a.username)
	req.Header.Set("X-Password", a.password)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broker login: status %d", resp.StatusCode)
	}

	token := resp.Header.Get("X-Auth-Token")
	if token == "" {
		return fmt.Errorf("broker login: no token in response")
	}

	a.token = token
	a.expiry = tokenExpiry(token)
	return nil
}

// tokenExpiry reads the exp claim from the broker's JWT. Signature
// verification is not needed to schedule a re-login.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil &&
		claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(tokenFallbackTTL)
}
