// Package octoterra is an HTTP client for the octoterra space exporter,
// the service that turns a live Octopus space into an HCL document.
package octoterra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client calls the octoterra exporter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an exporter client. A zero timeout selects the default.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SpaceRequest narrows the export to the entities a query mentions. Empty
// lists mean "everything of that kind", which is how queries end up too
// broad to answer.
type SpaceRequest struct {
	Query               string   `json:"query"`
	Space               string   `json:"space"`
	Projects            []string `json:"project_names"`
	Runbooks            []string `json:"runbook_names"`
	Targets             []string `json:"target_names"`
	Tenants             []string `json:"tenant_names"`
	Environments        []string `json:"environment_names"`
	LibraryVariableSets []string `json:"library_variable_sets"`

	// Octopus credentials forwarded to the exporter.
	OctopusURL string `json:"-"`
	APIKey     string `json:"-"`
}

// SpaceHCL exports the requested slice of the space and returns the HCL
// blob. Non-2xx responses surface as errors (authentication or lookup
// failure on the exporter side).
func (c *Client) SpaceHCL(ctx context.Context, req SpaceRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling export request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/octoterra", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating export request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Octopus-Url", req.OctopusURL)
	httpReq.Header.Set("X-Octopus-ApiKey", req.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling octoterra: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading octoterra response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("octoterra export failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	c.logger.DebugContext(ctx, "space exported",
		slog.String("space", req.Space),
		slog.Int("hcl_bytes", len(respBody)),
		slog.Float64("duration_s", time.Since(start).Seconds()),
	)

	return string(respBody), nil
}
