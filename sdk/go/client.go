// Package sdk provides typed access to the CyberLevels HTTP and WebSocket
// API.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cyberlevels/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the CyberLevels HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Join registers a player for tracking and returns its current view.
func (c *Client) Join(ctx context.Context, userID, name string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrEmptyUserID
	}
	var u User
	err := c.post(ctx, fmt.Sprintf("/users/%s/join", url.PathEscape(userID)), url.Values{"name": {name}}, &u)
	return u, err
}

// Leave stops tracking a player, flushing its state to storage.
func (c *Client) Leave(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	return c.post(ctx, fmt.Sprintf("/users/%s/leave", url.PathEscape(userID)), nil, nil)
}

// Remove deletes a player entirely: live state, stored snapshot, and
// leaderboard standing.
func (c *Client) Remove(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, nil)
}

// GetUser fetches the current progression view for a player.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrEmptyUserID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return User{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	var u User
	if err := decodeJSON(resp, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// EarnExp grants experience through the natural gain path, subject to any
// server-side gate and multipliers. Source labels where the gain came from.
func (c *Client) EarnExp(ctx context.Context, userID, amount, source string) (Result, error) {
	return c.expOp(ctx, userID, url.Values{"op": {"earn"}, "amount": {amount}, "source": {source}})
}

// AddExp grants experience directly, bypassing gate and multipliers.
func (c *Client) AddExp(ctx context.Context, userID, amount string) (Result, error) {
	return c.expOp(ctx, userID, url.Values{"op": {"add"}, "amount": {amount}})
}

// RemoveExp takes experience away, demoting across levels when needed.
func (c *Client) RemoveExp(ctx context.Context, userID, amount string) (Result, error) {
	return c.expOp(ctx, userID, url.Values{"op": {"remove"}, "amount": {amount}})
}

// SetExp overwrites the in-level experience. With checkLevel the value is
// re-applied from zero so level crossings happen.
func (c *Client) SetExp(ctx context.Context, userID, amount string, checkLevel bool) (Result, error) {
	return c.expOp(ctx, userID, url.Values{
		"op":         {"set"},
		"amount":     {amount},
		"checkLevel": {strconv.FormatBool(checkLevel)},
	})
}

// AddLevel grants n whole levels.
func (c *Client) AddLevel(ctx context.Context, userID string, n int64) (Result, error) {
	return c.levelOp(ctx, userID, "add", n)
}

// RemoveLevel takes n whole levels away.
func (c *Client) RemoveLevel(ctx context.Context, userID string, n int64) (Result, error) {
	return c.levelOp(ctx, userID, "remove", n)
}

// SetLevel jumps the player straight to level n.
func (c *Client) SetLevel(ctx context.Context, userID string, n int64) (Result, error) {
	return c.levelOp(ctx, userID, "set", n)
}

// Leaderboard fetches the current top players.
func (c *Client) Leaderboard(ctx context.Context) ([]BoardEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/leaderboard", nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Leaderboard []BoardEntry `json:"leaderboard"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Leaderboard, nil
}

// RebuildLeaderboard asks the server for a full background rebuild.
func (c *Client) RebuildLeaderboard(ctx context.Context) error {
	return c.post(ctx, "/leaderboard/update", nil, nil)
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) expOp(ctx context.Context, userID string, q url.Values) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrEmptyUserID
	}
	var res Result
	err := c.post(ctx, fmt.Sprintf("/users/%s/exp", url.PathEscape(userID)), q, &res)
	return res, err
}

func (c *Client) levelOp(ctx context.Context, userID, op string, n int64) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrEmptyUserID
	}
	q := url.Values{"op": {op}, "n": {strconv.FormatInt(n, 10)}}
	var res Result
	err := c.post(ctx, fmt.Sprintf("/users/%s/level", url.PathEscape(userID)), q, &res)
	return res, err
}

// post issues a POST to path with query values and decodes the response into
// target when it is non-nil.
func (c *Client) post(ctx context.Context, path string, q url.Values, target any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
