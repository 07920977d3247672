package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shpitdev/specsynth/internal/version"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// VersionHeader carries the version the registry served for a "latest" fetch.
const VersionHeader = "X-Registry-Version"

// ArtifactTypeHeader carries the artifact's registry format.
const ArtifactTypeHeader = "X-Registry-ArtifactType"

const defaultPageSize = 100

// Client is a minimal HTTP client for the schema registry's v2 REST API.
type Client struct {
	baseURL  *url.URL
	token    string
	http     *http.Client
	pageSize int
}

// NewClient constructs a client for the registry API base URL, e.g.
// "https://registry.example.com/apis/registry/v2".
//
// token is optional. defaultCAPath is optional and, when provided, replaces the
// system trust store for TLS.
func NewClient(baseURL, token, defaultCAPath string) (*Client, error) {
	base, err := ParseBaseURL(baseURL, "registry")
	if err != nil {
		return nil, err
	}
	hc, err := NewHTTPClient(defaultCAPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:  base,
		token:    strings.TrimSpace(token),
		http:     hc,
		pageSize: defaultPageSize,
	}, nil
}

// ParseBaseURL validates a service base URL and normalizes it to a directory path.
// A missing scheme defaults to https.
func ParseBaseURL(raw string, name string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s base URL is required", name)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s base URL: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s base URL must include a host (got %q)", name, raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// NewHTTPClient returns an HTTP client trusting the PEM bundle at defaultCAPath, or
// the system roots when the path is empty.
func NewHTTPClient(defaultCAPath string) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(defaultCAPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(defaultCAPath))
		if err != nil {
			return nil, fmt.Errorf("read DEFAULT_CA_PATH file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse DEFAULT_CA_PATH PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

type searchedArtifact struct {
	ID          string `json:"id"`
	GroupID     string `json:"groupId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Version     string `json:"version"`
}

type searchResponse struct {
	Artifacts []searchedArtifact `json:"artifacts"`
	Count     int                `json:"count"`
}

// ListArtifacts returns every artifact, optionally restricted to one group.
// Pages are fetched until a short page or the reported count, when the registry
// sends one.
func (c *Client) ListArtifacts(ctx context.Context, groupFilter string) ([]core.ArtifactDescriptor, error) {
	groupFilter = strings.TrimSpace(groupFilter)

	var out []core.ArtifactDescriptor
	for offset := 0; ; {
		q := url.Values{}
		if groupFilter != "" {
			q.Set("group", groupFilter)
		}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("orderby", "name")

		u := c.resolve("search/artifacts")
		u.RawQuery = q.Encode()

		b, _, err := c.get(ctx, "searchArtifacts", u, "application/json")
		if err != nil {
			return nil, err
		}
		var page searchResponse
		if err := json.Unmarshal(b, &page); err != nil {
			return nil, fmt.Errorf("parse search artifacts response: %w", err)
		}
		for _, a := range page.Artifacts {
			groupID := strings.TrimSpace(a.GroupID)
			if groupID == "" {
				groupID = "default"
			}
			out = append(out, core.ArtifactDescriptor{
				GroupID:       groupID,
				ArtifactID:    strings.TrimSpace(a.ID),
				Type:          core.NormalizeArtifactType(a.Type),
				Name:          strings.TrimSpace(a.Name),
				Description:   strings.TrimSpace(a.Description),
				LatestVersion: strings.TrimSpace(a.Version),
			})
		}

		offset += len(page.Artifacts)
		if lastPage(len(page.Artifacts), c.pageSize, offset, page.Count) {
			break
		}
	}
	return out, nil
}

// GetArtifactContent fetches an artifact's raw payload. An empty version fetches the
// latest; the served version is taken from the X-Registry-Version header.
func (c *Client) GetArtifactContent(ctx context.Context, groupID, artifactID, version string) (core.ArtifactContent, error) {
	groupID = strings.TrimSpace(groupID)
	artifactID = strings.TrimSpace(artifactID)
	version = strings.TrimSpace(version)
	if artifactID == "" {
		return core.ArtifactContent{}, fmt.Errorf("artifact id is required")
	}
	if groupID == "" {
		groupID = "default"
	}

	rel := fmt.Sprintf("groups/%s/artifacts/%s", url.PathEscape(groupID), url.PathEscape(artifactID))
	if version != "" {
		rel += "/versions/" + url.PathEscape(version)
	}

	b, resp, err := c.get(ctx, "getArtifact", c.resolve(rel), "application/json, application/vnd.apache.avro+json;q=0.9, */*;q=0.1")
	if err != nil {
		return core.ArtifactContent{}, err
	}

	served := strings.TrimSpace(resp.Header.Get(VersionHeader))
	if served == "" {
		served = version
	}
	return core.ArtifactContent{
		Ref: core.ArtifactRef{
			GroupID:      groupID,
			ArtifactID:   artifactID,
			ArtifactType: core.NormalizeArtifactType(resp.Header.Get(ArtifactTypeHeader)),
			Version:      served,
		},
		Payload: b,
	}, nil
}

type versionsResponse struct {
	Versions []struct {
		Version string `json:"version"`
	} `json:"versions"`
	Count int `json:"count"`
}

// ListVersions returns the artifact's versions in registry order.
func (c *Client) ListVersions(ctx context.Context, groupID, artifactID string) ([]string, error) {
	groupID = strings.TrimSpace(groupID)
	artifactID = strings.TrimSpace(artifactID)
	if artifactID == "" {
		return nil, fmt.Errorf("artifact id is required")
	}
	if groupID == "" {
		groupID = "default"
	}

	versions := []string{}
	for offset := 0; ; {
		u := c.resolve(fmt.Sprintf("groups/%s/artifacts/%s/versions", url.PathEscape(groupID), url.PathEscape(artifactID)))
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		u.RawQuery = q.Encode()

		b, _, err := c.get(ctx, "listVersions", u, "application/json")
		if err != nil {
			return nil, err
		}
		var page versionsResponse
		if err := json.Unmarshal(b, &page); err != nil {
			return nil, fmt.Errorf("parse list versions response: %w", err)
		}
		for _, v := range page.Versions {
			if s := strings.TrimSpace(v.Version); s != "" {
				versions = append(versions, s)
			}
		}

		offset += len(page.Versions)
		if lastPage(len(page.Versions), c.pageSize, offset, page.Count) {
			break
		}
	}
	return versions, nil
}

// lastPage reports whether paging is done. A count of 0 means the registry did not
// report one.
func lastPage(got, pageSize, offset, count int) bool {
	if got == 0 || got < pageSize {
		return true
	}
	return count > 0 && offset >= count
}

func (c *Client) get(ctx context.Context, op string, u *url.URL, accept string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, resp, newHTTPError(op, resp, b)
	}
	return b, resp, nil
}

// resolve joins an already-escaped relative path onto the base URL.
func (c *Client) resolve(relPath string) *url.URL {
	return ResolvePath(c.baseURL, relPath)
}

// ResolvePath joins an already-escaped relative path onto base.
func ResolvePath(base *url.URL, escapedRel string) *url.URL {
	escapedRel = strings.TrimPrefix(escapedRel, "/")
	unescaped, err := url.PathUnescape(escapedRel)
	if err != nil {
		unescaped = escapedRel
	}
	rel := &url.URL{Path: unescaped, RawPath: escapedRel}
	return base.ResolveReference(rel)
}
