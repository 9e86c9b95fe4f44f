// Package salesforce talks to a Salesforce-Commerce-style org through Apex
// REST, standard sObject REST and raw SOQL. The org's schema and media model
// are inconsistently populated across environments, so the resolvers in this
// package layer fallback strategies instead of trusting any single endpoint.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured means neither credential set is present. Fatal for
	// this adapter; surfaced on first use rather than at startup.
	ErrNotConfigured = errors.New("salesforce credentials not configured")

	// ErrAuthFailed means the token endpoint rejected the exchange. Not
	// retried automatically; the caller's request fails.
	ErrAuthFailed = errors.New("salesforce token exchange failed")

	ErrNotFound = errors.New("not found")
)

// refreshMargin is the safety window before recorded expiry within which a
// request performs a blocking token acquisition first.
const refreshMargin = 60 * time.Second

const defaultTokenLifetime = 30 * time.Minute

// Config holds the org connection settings.
type Config struct {
	// LoginURL is the OAuth token endpoint base (https://login.salesforce.com).
	LoginURL string
	// BaseURL is the initially configured org base. The token response may
	// carry a different routing URL, which then takes over.
	BaseURL string
	// SiteURL is the storefront base used to build canonical product URLs.
	SiteURL string
	// APIVersion like "v60.0".
	APIVersion string

	// Connected-app identity for the signed-assertion (JWT bearer) exchange.
	ClientID   string
	PrivateKey string
	// Resource-owner credentials, used when no connected-app key is present.
	Username string
	Password string

	Timeout time.Duration
}

type accessToken struct {
	value   string
	baseURL string
	expires time.Time
}

// Client owns the bearer token lifecycle and exposes authenticated request
// helpers to the resolvers. The token is replaced wholesale on refresh, never
// mutated in place.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token *accessToken

	now func() time.Time
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v60.0"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Configured reports whether any credential set is present. Used by the
// health probe.
func (c *Client) Configured() bool {
	if c.cfg.ClientID != "" && c.cfg.PrivateKey != "" {
		return true
	}
	return c.cfg.Username != "" && c.cfg.Password != ""
}

// SiteURL returns the configured storefront base.
func (c *Client) SiteURL() string {
	return c.cfg.SiteURL
}

// ensureToken returns a valid bearer token and the current org base URL,
// acquiring a fresh token when none is held or the refresh margin has been
// reached. A reader may attach a token that is refreshed a moment later; the
// margin makes that race harmless.
func (c *Client) ensureToken(ctx context.Context) (string, string, error) {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()
	if tok != nil && c.now().Before(tok.expires.Add(-refreshMargin)) {
		return tok.value, tok.baseURL, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another request may have refreshed while we waited for the lock.
	if c.token != nil && c.now().Before(c.token.expires.Add(-refreshMargin)) {
		return c.token.value, c.token.baseURL, nil
	}

	tok, err := c.acquire(ctx)
	if err != nil {
		return "", "", err
	}
	c.token = tok
	c.logger.Info("salesforce token acquired",
		zap.String("base_url", tok.baseURL),
		zap.Time("expires", tok.expires),
	)
	return tok.value, tok.baseURL, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) acquire(ctx context.Context) (*accessToken, error) {
	form := url.Values{}
	switch {
	case c.cfg.ClientID != "" && c.cfg.PrivateKey != "":
		assertion, err := c.signAssertion()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
		form.Set("assertion", assertion)
	case c.cfg.Username != "" && c.cfg.Password != "":
		form.Set("grant_type", "password")
		form.Set("client_id", c.cfg.ClientID)
		form.Set("username", c.cfg.Username)
		form.Set("password", c.cfg.Password)
	default:
		return nil, ErrNotConfigured
	}

	endpoint := c.cfg.LoginURL + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	lifetime := defaultTokenLifetime
	if tr.ExpiresIn > 0 {
		lifetime = time.Duration(tr.ExpiresIn) * time.Second
	}
	baseURL := c.cfg.BaseURL
	if tr.InstanceURL != "" {
		baseURL = strings.TrimSuffix(tr.InstanceURL, "/")
	}

	return &accessToken{
		value:   tr.AccessToken,
		baseURL: baseURL,
		expires: c.now().Add(lifetime),
	}, nil
}

// signAssertion builds the short-lived RS256 claim for the JWT bearer flow.
func (c *Client) signAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(c.cfg.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.cfg.ClientID,
		Subject:   c.cfg.Username,
		Audience:  jwt.ClaimStrings{c.cfg.LoginURL},
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// do performs an authenticated request. path may be absolute or org-relative.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, baseURL, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = baseURL + path
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// GetJSON performs an authenticated GET and decodes the JSON response.
// Non-2xx statuses are errors; 404 maps to ErrNotFound.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// PostJSON performs an authenticated POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.do(ctx, http.MethodPost, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// Query runs a raw SOQL query through the REST query endpoint.
func (c *Client) Query(ctx context.Context, soql string, out any) error {
	path := c.restPath("/query") + "?q=" + url.QueryEscape(soql)
	return c.GetJSON(ctx, path, out)
}

// FetchBinary retrieves raw bytes from an org-relative or absolute URL using
// the authenticated client. The returned content type defaults to a generic
// binary MIME type when the header is absent.
func (c *Client) FetchBinary(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// restPath prefixes a standard REST path with the configured API version.
func (c *Client) restPath(suffix string) string {
	return "/services/data/" + c.cfg.APIVersion + suffix
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("salesforce request failed: status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// escapeSOQL escapes single quotes in a user-supplied SOQL literal.
func escapeSOQL(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`)
}
