package specstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shpitdev/specsynth/internal/version"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/registry"
)

const serviceName = "spec store"

// Client posts finalized specs to the persistence API.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// NewClient constructs a client for the spec store base URL, e.g.
// "https://specs.example.com/api/v1".
func NewClient(baseURL, token, defaultCAPath string) (*Client, error) {
	base, err := registry.ParseBaseURL(baseURL, serviceName)
	if err != nil {
		return nil, err
	}
	hc, err := registry.NewHTTPClient(defaultCAPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(token),
		http:    hc,
	}, nil
}

// CreateSpec stores payload. HTTP 409 is reported as *core.ConflictError; other
// non-2xx responses as *registry.HTTPError. Nothing is retried.
func (c *Client) CreateSpec(ctx context.Context, payload core.SubmissionPayload) (core.CreatedSpec, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.CreatedSpec{}, fmt.Errorf("encode spec payload: %w", err)
	}

	u := registry.ResolvePath(c.baseURL, "specs")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return core.CreatedSpec{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return core.CreatedSpec{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.CreatedSpec{}, err
	}
	if resp.StatusCode == http.StatusConflict {
		return core.CreatedSpec{}, &core.ConflictError{
			Name: payload.Name,
			Err:  registry.NewHTTPError(serviceName, "createSpec", resp, rb),
		}
	}
	if resp.StatusCode/100 != 2 {
		return core.CreatedSpec{}, registry.NewHTTPError(serviceName, "createSpec", resp, rb)
	}

	var out core.CreatedSpec
	if err := json.Unmarshal(rb, &out); err != nil {
		return core.CreatedSpec{}, fmt.Errorf("parse create spec response: %w", err)
	}
	out.ID = strings.TrimSpace(out.ID)
	out.Version = strings.TrimSpace(out.Version)
	return out, nil
}
