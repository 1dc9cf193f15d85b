// Package opencode is a small client for the OpenCode server HTTP API: the
// global event stream, posting chat messages into a session, and the
// server-side application log.
package opencode

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

	"overseer/internal/logging"
)

const (
	defaultUsername = "opencode"
	defaultTimeout  = 30 * time.Second
	RoleUser        = "user"
)

type Config struct {
	BaseURL   string
	Username  string
	Password  string
	Directory string
	Timeout   time.Duration
	// Transport overrides the HTTP transport; tests use it to route requests
	// into httptest servers.
	Transport http.RoundTripper
	Logger    logging.Logger
}

type Client struct {
	baseURL    string
	username   string
	password   string
	directory  string
	timeout    time.Duration
	httpClient *http.Client
	logger     logging.Logger
}

// Part is a single message part. Only text parts are sent today.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func TextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "opencode request failed"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if strings.TrimSpace(msg) == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("opencode request failed (%s %s): %s", e.Method, e.Path, msg)
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("server base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base_url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base_url: %s", baseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = defaultUsername
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL:   strings.TrimRight(parsed.String(), "/"),
		username:  username,
		password:  strings.TrimSpace(cfg.Password),
		directory: strings.TrimSpace(cfg.Directory),
		timeout:   timeout,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		logger: logger,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendMessage posts one chat turn into sessionID. The message endpoint only
// carries user turns, so any other role is rejected before a request is
// made. Servers that predate /message are retried on /prompt.
func (c *Client) SendMessage(ctx context.Context, sessionID, role string, parts []Part) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser {
		return fmt.Errorf("unsupported message role %q", role)
	}
	parts = nonEmptyParts(parts)
	if len(parts) == 0 {
		return fmt.Errorf("at least one non-empty part is required")
	}
	body := map[string]any{"parts": parts}

	paths := []string{
		c.withDirectory(fmt.Sprintf("/session/%s/message", url.PathEscape(sessionID))),
		c.withDirectory(fmt.Sprintf("/session/%s/prompt", url.PathEscape(sessionID))),
	}
	var lastErr error
	for idx, path := range paths {
		err := c.doJSON(ctx, http.MethodPost, path, body, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if idx == 0 && shouldFallbackLegacy(err) {
			c.logger.Debug("opencode_message_fallback", logging.F("session_id", sessionID), logging.F("error", err))
			continue
		}
		return err
	}
	return lastErr
}

// Log writes one entry to the server application log. It satisfies
// logging.RemoteSink.
func (c *Client) Log(ctx context.Context, entry logging.RemoteEntry) error {
	service := strings.TrimSpace(entry.Service)
	if service == "" {
		return fmt.Errorf("service is required")
	}
	body := map[string]any{
		"service": service,
		"level":   entry.Level.String(),
		"message": entry.Message,
	}
	if len(entry.Extra) > 0 {
		body["extra"] = entry.Extra
	}
	return c.doJSON(ctx, http.MethodPost, c.withDirectory("/log"), body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	path = "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
	endpoint := c.baseURL + path

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readRequestError(resp, method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) withDirectory(path string) string {
	if c.directory == "" {
		return path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "directory=" + url.QueryEscape(c.directory)
}

func readRequestError(resp *http.Response, method, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = resp.Status
	}
	return &RequestError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

func shouldFallbackLegacy(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr == nil {
		return false
	}
	switch reqErr.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return true
	default:
		return false
	}
}

func nonEmptyParts(parts []Part) []Part {
	out := make([]Part, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part.Text) == "" {
			continue
		}
		if strings.TrimSpace(part.Type) == "" {
			part.Type = "text"
		}
		out = append(out, part)
	}
	return out
}
