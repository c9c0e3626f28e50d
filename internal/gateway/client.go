package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "todocal/internal/log"
	"todocal/internal/model"
)

const defaultTimeout = 30 * time.Second

// Snapshot is one copy of the syncable collections.
type Snapshot struct {
	Events []model.Event
	Todos  []model.Todo
}

// Client talks to the account API. It performs no retries; callers decide
// whether and when to try again.
type Client struct {
	baseURL  string
	token    string
	deviceID string
	http     *http.Client
}

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com".
	BaseURL string
	// Token is the app secret token sent as the Authorization header.
	Token string
	// DeviceID identifies this installation; it is sent base64-encoded.
	DeviceID string
	// Timeout bounds each request. If zero, 30s is used.
	Timeout time.Duration
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		deviceID: cfg.DeviceID,
		http:     hc,
	}
}

// IsConfigured reports whether the client has everything a request needs.
func (c *Client) IsConfigured() bool {
	return c.baseURL != "" && c.token != "" && c.deviceID != ""
}

type importResponse struct {
	Events *[]model.Event `json:"events"`
	Todos  *[]model.Todo  `json:"todos"`
}

// Import fetches the account's stored collections.
func (c *Client) Import(ctx context.Context) (Snapshot, error) {
	const op = "import"

	body, err := c.do(ctx, op, http.MethodGet, "/user/import", nil)
	if err != nil {
		return Snapshot{}, err
	}

	var resp importResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Snapshot{}, &RemoteUnavailableError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Events == nil || resp.Todos == nil {
		return Snapshot{}, &RemoteUnavailableError{Op: op, Err: errors.New("response is missing events or todos")}
	}

	appLog.Info("gateway import success", "events", len(*resp.Events), "todos", len(*resp.Todos))
	return Snapshot{Events: *resp.Events, Todos: *resp.Todos}, nil
}

// exportRequest carries each collection as JSON text, the shape the
// account API stores verbatim.
type exportRequest struct {
	Events string `json:"events"`
	Todos  string `json:"todos"`
}

type exportResponse struct {
	Info string `json:"info"`
}

// Export pushes the full local collections. Anything but an explicit
// "success" acknowledgement is a failure.
func (c *Client) Export(ctx context.Context, snap Snapshot) error {
	const op = "export"

	events, err := json.Marshal(nonNil(snap.Events))
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	todos, err := json.Marshal(nonNil(snap.Todos))
	if err != nil {
		return fmt.Errorf("encode todos: %w", err)
	}

	body, err := c.do(ctx, op, http.MethodPost, "/user/export", exportRequest{
		Events: string(events),
		Todos:  string(todos),
	})
	if err != nil {
		return err
	}

	var resp exportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &RemoteUnavailableError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Info != "success" {
		return &RemoteUnavailableError{Op: op, Err: fmt.Errorf("export rejected: %q", resp.Info)}
	}

	appLog.Info("gateway export success", "events", len(snap.Events), "todos", len(snap.Todos))
	return nil
}

// do performs an authenticated request and returns the body of a 2xx
// response. Every failure is a *RemoteUnavailableError.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, &RemoteUnavailableError{Op: op, Err: errors.New("gateway not configured")}
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &RemoteUnavailableError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Device", base64.StdEncoding.EncodeToString([]byte(c.deviceID)))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	appLog.Debug("gateway request", "op", op, "method", method, "url", redactURL(c.baseURL)+path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteUnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteUnavailableError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteUnavailableError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}
	return body, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// redactURL keeps only scheme and host of u for logging.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return u[:i+3+j] + "/...(redacted)"
	}
	return u
}
