package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"overseer/internal/config"
	"overseer/internal/types"
)

type Client struct {
	baseURL     string
	daemonAddr  string
	tokenPath   string
	token       string
	http        *http.Client
	startDaemon func(addr string) error
}

// New returns a client for the daemon configured in cfg. The token is read
// lazily, so a client can be built before the daemon has ever run.
func New(cfg config.CoreConfig) (*Client, error) {
	tokenPath, err := config.TokenPath()
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.DaemonBaseURL(), "/"),
		daemonAddr: cfg.DaemonAddress(),
		tokenPath:  tokenPath,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		startDaemon: StartBackgroundDaemon,
	}
	_ = c.loadToken()
	return c, nil
}

func NewWithBaseURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		startDaemon: StartBackgroundDaemon,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) WatchdogStatus(ctx context.Context) (*types.WatchdogSnapshot, error) {
	var snapshot types.WatchdogSnapshot
	if err := c.doJSON(ctx, http.MethodGet, "/v1/watchdog", nil, true, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Nudges lists journaled nudges, newest first. An empty sessionID lists all
// sessions; a non-positive limit uses the daemon default.
func (c *Client) Nudges(ctx context.Context, sessionID string, limit int) ([]*types.NudgeRecord, error) {
	query := url.Values{}
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		query.Set("session", sessionID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/nudges"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp NudgesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &resp); err != nil {
		return nil, err
	}
	return resp.Nudges, nil
}

// EnsureDaemon starts a background daemon when none answers on the
// configured address and waits for it to become healthy.
func (c *Client) EnsureDaemon(ctx context.Context) error {
	if resp, err := c.Health(ctx); err == nil && resp.OK {
		return nil
	}
	if err := c.startDaemon(c.daemonAddr); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	deadline := time.Now().Add(4 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := c.Health(ctx)
		if err == nil && resp.OK {
			_ = c.loadToken()
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(150 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("daemon not healthy after start")
	}
	return lastErr
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, requireAuth bool, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth {
		if err := c.ensureToken(); err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpClient := c.http
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ensureToken() error {
	if strings.TrimSpace(c.token) == "" {
		if err := c.loadToken(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.token) == "" {
		return errors.New("token not found; is the daemon running?")
	}
	return nil
}

func (c *Client) loadToken() error {
	if c.tokenPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.token = ""
			return nil
		}
		return err
	}
	c.token = strings.TrimSpace(string(data))
	return nil
}

func decodeAPIError(resp *http.Response) error {
	type errorPayload struct {
		Error string `json:"error"`
	}
	var payload errorPayload
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}
