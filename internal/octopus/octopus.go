// Package octopus is a minimal Octopus Deploy REST client covering the
// lookups the runbook dashboard needs: space, project, and runbook by name,
// plus recent runbook runs. Name lookups use partialName queries with an
// exact-match filter, which is how the Octopus API expects it done.
package octopus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client calls the Octopus Deploy REST API.
type Client struct {
	httpClient *http.Client
}

// NewClient creates an Octopus REST client. A zero timeout selects the default.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Credentials identify the Octopus server a request targets.
type Credentials struct {
	ServerURL string
	APIKey    string
}

// Space is an Octopus space.
type Space struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Project is an Octopus project.
type Project struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Runbook is an Octopus runbook.
type Runbook struct {
	ID        string `json:"Id"`
	Name      string `json:"Name"`
	ProjectID string `json:"ProjectId"`
}

// RunbookRun is a single execution of a runbook.
type RunbookRun struct {
	ID              string    `json:"Id"`
	EnvironmentName string    `json:"EnvironmentName"`
	TenantName      string    `json:"TenantName"`
	State           string    `json:"State"`
	Created         time.Time `json:"Created"`
}

type pagedResponse[T any] struct {
	Items []T `json:"Items"`
}

func (c *Client) get(ctx context.Context, creds Credentials, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.ServerURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Octopus-ApiKey", creds.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling octopus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("octopus request %s failed (status %d)", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding octopus response: %w", err)
	}
	return nil
}

// SpaceByName resolves a space by exact name.
func (c *Client) SpaceByName(ctx context.Context, creds Credentials, name string) (*Space, error) {
	var page pagedResponse[Space]
	path := "/api/spaces?partialName=" + url.QueryEscape(name)
	if err := c.get(ctx, creds, path, &page); err != nil {
		return nil, err
	}
	for _, s := range page.Items {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("space %q not found", name)
}

// ProjectByName resolves a project by exact name within a space.
func (c *Client) ProjectByName(ctx context.Context, creds Credentials, spaceID, name string) (*Project, error) {
	var page pagedResponse[Project]
	path := fmt.Sprintf("/api/%s/projects?partialName=%s", spaceID, url.QueryEscape(name))
	if err := c.get(ctx, creds, path, &page); err != nil {
		return nil, err
	}
	for _, p := range page.Items {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("project %q not found in space %s", name, spaceID)
}

// RunbookByName resolves a runbook by exact name within a project.
func (c *Client) RunbookByName(ctx context.Context, creds Credentials, spaceID, projectID, name string) (*Runbook, error) {
	var page pagedResponse[Runbook]
	path := fmt.Sprintf("/api/%s/projects/%s/runbooks?partialName=%s", spaceID, projectID, url.QueryEscape(name))
	if err := c.get(ctx, creds, path, &page); err != nil {
		return nil, err
	}
	for _, r := range page.Items {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("runbook %q not found in project %s", name, projectID)
}

// RecentRuns lists the most recent runs of a runbook, newest first.
func (c *Client) RecentRuns(ctx context.Context, creds Credentials, spaceID, runbookID string, take int) ([]RunbookRun, error) {
	if take <= 0 {
		take = 10
	}
	var page pagedResponse[RunbookRun]
	path := fmt.Sprintf("/api/%s/runbooks/%s/runbookRuns?take=%d", spaceID, runbookID, take)
	if err := c.get(ctx, creds, path, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}
