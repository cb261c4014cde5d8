package e2etest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/dossier/internal/errors"
)

// ErrCallFailed is returned by CallTool when the server answers with an error payload.
var ErrCallFailed = errors.NewSentinel("call failed")

// Result is a decoded response payload.
type Result map[string]any

type Client struct {
	client *http.Client
	url    string
}

// NewClient creates a protocol client for the server at url.
func NewClient(url string) *Client {
	return &Client{
		client: &http.Client{Timeout: 10 * time.Second}, //nolint:mnd // 10 seconds
		url:    url,
	}
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		resp *http.Response
	)
	for {
		if resp, err = c.Get(ctx, urlPath); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	if req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.url+urlPath, nil); err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// Post sends body to the protocol endpoint and returns the status code and response body.
func (c *Client) Post(ctx context.Context, body []byte) (int, []byte, error) {
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	if req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/mcp", bytes.NewReader(body)); err != nil {
		return 0, nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if resp, err = c.client.Do(req); err != nil {
		return 0, nil, errors.Wrap(err, "do request")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	var respBody []byte
	if respBody, err = io.ReadAll(resp.Body); err != nil {
		return 0, nil, errors.Wrap(err, "read response body")
	}
	return resp.StatusCode, respBody, nil
}

// Call sends a request envelope with method and params and decodes the response.
func (c *Client) Call(ctx context.Context, method string, params any) (int, Result, error) {
	envelope := map[string]any{"method": method}
	if params != nil {
		envelope["params"] = params
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return 0, nil, errors.Wrap(err, "encode request")
	}
	status, respBody, err := c.Post(ctx, body)
	if err != nil {
		return 0, nil, err
	}
	var result Result
	if err = json.Unmarshal(respBody, &result); err != nil {
		return status, nil, errors.Wrap(err, "decode response", slog.String("body", string(respBody)))
	}
	return status, result, nil
}

// CallTool invokes a tool and fails with ErrCallFailed unless the server reports success.
func (c *Client) CallTool(ctx context.Context, name string, arguments any) (Result, error) {
	status, result, err := c.Call(ctx, "tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, errors.Wrap(err, "call tool", slog.String("tool", name))
	}
	if status != http.StatusOK || result["success"] != true {
		return result, errors.Wrap(ErrCallFailed, "call tool",
			slog.String("tool", name), slog.Int("status", status), slog.Any("error", result["error"]))
	}
	return result, nil
}
