// Package origin implements the HTTP surface consumed from the
// authoritative origin server: health checks, heartbeats, the
// authoritative allow-list pull, and batched log upload.
package origin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nexxgate/edge-coordinator/pkg/health"
	"github.com/nexxgate/edge-coordinator/pkg/types"
)

const requestTimeout = 10 * time.Second

// healthConfig drives the origin's health.Status bookkeeping. Retries
// is 1: the heartbeat ticker already paces checks, so a single failed
// health-check is enough to flip cloud_reachable off immediately.
var healthConfig = health.Config{Retries: 1}

// Client talks to the origin's /nexxgate/api/v1 HTTP surface.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	checker *health.HTTPChecker
	status  *health.Status
}

// NewClient creates an origin client. baseURL should be the origin's
// API root, e.g. "https://origin.example.com/nexxgate/api/v1".
func NewClient(baseURL, apiKey string) *Client {
	checker := health.NewHTTPChecker(baseURL+"/health-check/").
		WithTimeout(requestTimeout).
		WithHeader("X-Edge-Api-Key", apiKey)
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		checker: checker,
		status:  health.NewStatus(),
	}
}

// HealthCheck runs the HTTP health checker against /health-check/ and
// folds the result into the client's consecutive-failure tracking,
// reporting whether the origin should currently be considered
// reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result := c.checker.Check(ctx)
	c.status.Update(result, healthConfig)
	return c.status.Healthy
}

// Heartbeat pings /edge_heartbeat/{api_key}; failure is fire-and-forget,
// only logged by the caller.
func (c *Client) Heartbeat(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/edge_heartbeat/%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build heartbeat request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}
	return nil
}

// AccessList fetches the authoritative allow-list from
// GET /access_list/.
func (c *Client) AccessList(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/access_list/", nil)
	if err != nil {
		return nil, fmt.Errorf("build access list request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("access list request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("access list returned status %d", resp.StatusCode)
	}

	var items []types.AccessListItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode access list: %w", err)
	}

	uids := make([]string, len(items))
	for i, item := range items {
		uids[i] = item.UID
	}
	return uids, nil
}

// UploadLog posts the access log body as multipart field "file" to
// /upload-log/. Reports whether the origin acknowledged with 201; the
// caller must only truncate its log on true.
func (c *Client) UploadLog(ctx context.Context, body []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "access.log")
	if err != nil {
		return false, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(body); err != nil {
		return false, fmt.Errorf("write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return false, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-log/", &buf)
	if err != nil {
		return false, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusCreated, nil
}
