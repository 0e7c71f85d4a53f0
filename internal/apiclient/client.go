// Package apiclient talks to a running stakeboard daemon over its HTTP API.
package apiclient

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
	"time"

	"github.com/duggee/stakeboard/internal/db"
	"github.com/duggee/stakeboard/internal/viewmodel"
)

// DefaultBaseURL is where a daemon listens with the default config.
const DefaultBaseURL = "http://127.0.0.1:9402"

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Kind    string
	Message string
	View    *viewmodel.Page
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Health is the /health response.
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	NodeID    string `json:"node_id"`
	UptimeMs  int64  `json:"uptime_ms"`
	Connected bool   `json:"connected"`
}

// Status is the /status response.
type Status struct {
	NodeID      string                 `json:"node_id"`
	UptimeMs    int64                  `json:"uptime_ms"`
	Chain       map[string]interface{} `json:"chain"`
	Snapshot    map[string]interface{} `json:"snapshot"`
	Wallet      map[string]interface{} `json:"wallet"`
	Submissions struct {
		Total int `json:"total"`
	} `json:"submissions"`
}

// Wallet is the wallet status of the daemon.
type Wallet struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// Signed is a message signed by the connected wallet.
type Signed struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Client is a small JSON client for the daemon API.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for baseURL; an empty baseURL means DefaultBaseURL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// BaseURL returns the daemon URL the client talks to.
func (c *Client) BaseURL() string { return c.base }

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	return &h, c.do(ctx, http.MethodGet, "/health", nil, &h)
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	return &s, c.do(ctx, http.MethodGet, "/status", nil, &s)
}

func (c *Client) View(ctx context.Context) (*viewmodel.Page, error) {
	var p viewmodel.Page
	return &p, c.do(ctx, http.MethodGet, "/api/view", nil, &p)
}

// Intent posts a user intent. A rejected intent returns an *APIError that
// carries the page as it stands after the rejection.
func (c *Client) Intent(ctx context.Context, in viewmodel.Intent) (*viewmodel.Page, error) {
	var p viewmodel.Page
	return &p, c.do(ctx, http.MethodPost, "/api/intents", in, &p)
}

// Intents posts intents that the daemon applies as one unit: either all are
// accepted or none is, and only the last may submit.
func (c *Client) Intents(ctx context.Context, intents ...viewmodel.Intent) (*viewmodel.Page, error) {
	if len(intents) == 0 {
		return nil, errors.New("no intents")
	}
	var p viewmodel.Page
	return &p, c.do(ctx, http.MethodPost, "/api/intents", intents, &p)
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/refresh", struct{}{}, nil)
}

func (c *Client) Submissions(ctx context.Context, limit int) ([]db.Submission, error) {
	path := "/api/submissions"
	if limit > 0 {
		path += "?" + url.Values{"limit": {fmt.Sprint(limit)}}.Encode()
	}
	var subs []db.Submission
	if err := c.do(ctx, http.MethodGet, path, nil, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (c *Client) Wallet(ctx context.Context) (*Wallet, error) {
	var w Wallet
	return &w, c.do(ctx, http.MethodGet, "/api/wallet", nil, &w)
}

func (c *Client) ImportWallet(ctx context.Context, key string) (*Wallet, error) {
	var w Wallet
	return &w, c.do(ctx, http.MethodPost, "/api/wallet/import", map[string]string{"key": key}, &w)
}

func (c *Client) GenerateWallet(ctx context.Context) (*Wallet, error) {
	var w Wallet
	return &w, c.do(ctx, http.MethodPost, "/api/wallet/generate", struct{}{}, &w)
}

func (c *Client) DisconnectWallet(ctx context.Context) (*Wallet, error) {
	var w Wallet
	return &w, c.do(ctx, http.MethodPost, "/api/wallet/disconnect", struct{}{}, &w)
}

func (c *Client) SignMessage(ctx context.Context, message string) (*Signed, error) {
	var sm Signed
	return &sm, c.do(ctx, http.MethodPost, "/api/wallet/sign", map[string]string{"message": message}, &sm)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string          `json:"error"`
			Kind  string          `json:"kind"`
			View  *viewmodel.Page `json:"view"`
		}
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
			apiErr.Kind = e.Kind
			apiErr.View = e.View
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
