package statuspage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

const (
	registryPathPrefix  = "/api/status-page/"
	heartbeatPathPrefix = "/api/status-page/heartbeat/"
)

// Config holds the static configuration for a status page client.
type Config struct {
	BaseURL string
	Slug    string
}

// Dependencies allow test overrides for the HTTP client and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client reads the public status page API: the group/monitor registry and
// the aggregate heartbeat payload. It performs no retries; retry policy
// belongs to the caller.
type Client struct {
	httpClient   *http.Client
	registryURL  string
	heartbeatURL string
	slug         string
	logger       *log.Logger
}

// NewClient builds a status page client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Slug == "" {
		return nil, fmt.Errorf("status page slug is required")
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		return nil, fmt.Errorf("HTTP client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		httpClient:   httpClient,
		registryURL:  joinURL(cfg.BaseURL, registryPathPrefix+cfg.Slug),
		heartbeatURL: joinURL(cfg.BaseURL, heartbeatPathPrefix+cfg.Slug),
		slug:         cfg.Slug,
		logger:       logger,
	}, nil
}

type pageDocument struct {
	PublicGroupList []pageGroup `json:"publicGroupList"`
}

type pageGroup struct {
	ID          *MonitorID    `json:"id"`
	Name        *string       `json:"name"`
	MonitorList []pageMonitor `json:"monitorList"`
}

type pageMonitor struct {
	ID   *MonitorID `json:"id"`
	Name *string    `json:"name"`
}

// FetchRegistry retrieves the status page and flattens its group tree into
// a name→id registry holding both group and monitor names. Insertion
// follows wire order, so on a name collision the later entry wins.
func (c *Client) FetchRegistry(ctx context.Context) (Registry, error) {
	body, err := c.get(ctx, c.registryURL)
	if err != nil {
		return nil, &RegistryError{Slug: c.slug, Err: err}
	}

	var doc pageDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &RegistryError{Slug: c.slug, Err: fmt.Errorf("decode status page: %w", err)}
	}

	registry := make(Registry)
	for _, group := range doc.PublicGroupList {
		if group.ID == nil || group.Name == nil {
			return nil, &RegistryError{Slug: c.slug, Err: fmt.Errorf("group entry missing id or name")}
		}
		registry[*group.Name] = *group.ID
		for _, mon := range group.MonitorList {
			if mon.ID == nil || mon.Name == nil {
				return nil, &RegistryError{Slug: c.slug, Err: fmt.Errorf("monitor entry missing id or name in group %q", *group.Name)}
			}
			registry[*mon.Name] = *mon.ID
		}
	}
	return registry, nil
}

type heartbeatDocument struct {
	HeartbeatList map[string][]HeartbeatEntry `json:"heartbeatList"`
}

// FetchHeartbeats retrieves the latest aggregate heartbeat payload. The
// snapshot keeps the wire's string monitor-id keys.
func (c *Client) FetchHeartbeats(ctx context.Context) (HeartbeatSnapshot, error) {
	body, err := c.get(ctx, c.heartbeatURL)
	if err != nil {
		return nil, &HeartbeatError{Slug: c.slug, Err: err}
	}

	var doc heartbeatDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &HeartbeatError{Slug: c.slug, Err: fmt.Errorf("decode heartbeat payload: %w", err)}
	}
	if doc.HeartbeatList == nil {
		return nil, &HeartbeatError{Slug: c.slug, Err: fmt.Errorf("heartbeat payload missing heartbeatList")}
	}
	return HeartbeatSnapshot(doc.HeartbeatList), nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "kuma-beacon/0.1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return body, nil
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
