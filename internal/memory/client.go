// Package memory is a thin CRUD proxy over a Chroma document store. It does
// no embedding of its own; query text is forwarded for the server to embed.
package memory

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
	DefaultTenant     = "default_tenant"
	DefaultDatabase   = "default_database"
	DefaultCollection = "repo_memory"
	DefaultSearchN    = 5
	DefaultListLimit  = 100
	defaultTimeout    = 30 * time.Second
)

var ErrCollectionNotFound = errors.New("collection not found")

type Config struct {
	BaseURL   string
	Tenant    string
	Database  string
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    logging.Logger
}

type Client struct {
	baseURL    string
	tenant     string
	database   string
	httpClient *http.Client
	logger     logging.Logger
}

type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "memory request failed"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("memory request failed (%s %s): HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("memory base_url is required")
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
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL:  strings.TrimRight(parsed.String(), "/"),
		tenant:   firstNonEmpty(cfg.Tenant, DefaultTenant),
		database: firstNonEmpty(cfg.Database, DefaultDatabase),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		logger: logger,
	}, nil
}

func (c *Client) collectionsPath() string {
	return fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections", url.PathEscape(c.tenant), url.PathEscape(c.database))
}

func (c *Client) collectionPath(nameOrID string) string {
	return c.collectionsPath() + "/" + url.PathEscape(nameOrID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    chromaErrorMessage(raw),
		}
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

// chromaErrorMessage pulls the message out of {"error": ..., "message": ...}
// bodies and falls back to the raw text.
func chromaErrorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if msg := firstNonEmpty(payload.Message, payload.Error); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(raw))
}

func isNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
