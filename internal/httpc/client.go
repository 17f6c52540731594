// Package httpc is a small client for the gazed control API, built on an
// http.Client with explicit timeouts.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// newHTTPClient creates an HTTP client with the specified timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// APIError is a non-2xx response from gazed.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gazed: %d %s", e.Status, e.Message)
}

// Client calls a gazed server.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for baseURL (e.g. http://localhost:8080).
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimSuffix(baseURL, "/"),
		http: newHTTPClient(DefaultTimeout),
	}
}

// Status returns the tracker snapshot.
func (c *Client) Status(ctx context.Context) (gaze.Snapshot, error) {
	var snap gaze.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap)
	return snap, err
}

// Tracking posts a tracking action: start, stop, pause or resume.
func (c *Client) Tracking(ctx context.Context, action string) (gaze.Snapshot, error) {
	var snap gaze.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/tracking/"+action, nil, &snap)
	return snap, err
}

// StartCalibration starts a session and returns its ID.
func (c *Client) StartCalibration(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/calibration", nil, &resp)
	return resp.SessionID, err
}

// AbortCalibration cancels the active session.
func (c *Client) AbortCalibration(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/calibration", nil, nil)
}

// LoadModel installs a calibration model.
func (c *Client) LoadModel(ctx context.Context, m gaze.Model) error {
	return c.do(ctx, http.MethodPut, "/api/calibration/model", m, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gazed: decode %s: %w", path, err)
	}
	return nil
}
