package secrets

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Vault resolves vault:// references against HashiCorp Vault KV v2.
//
// Reference format is vault://<kv-v2-api-path>#<field>, where the field
// selector defaults to "value" when omitted:
//
//	vault://secret/data/rubani/octopus#api_key
//
// Authentication is token based. Safe for concurrent use.
type Vault struct {
	address   string
	token     string
	namespace string
	client    *http.Client
}

// NewVault builds a Vault provider from cfg. The standard Vault environment
// variables (VAULT_ADDR, VAULT_TOKEN, VAULT_NAMESPACE) take precedence over
// the matching config keys. Remaining keys: "timeout" (Go duration, default
// 5s) and "tls_skip_verify" ("true" to disable certificate checks).
func NewVault(cfg map[string]string) (*Vault, error) {
	address := cfg["address"]
	if env := os.Getenv("VAULT_ADDR"); env != "" {
		address = env
	}
	if address == "" {
		return nil, fmt.Errorf("vault address is required (config key \"address\" or VAULT_ADDR)")
	}
	address = strings.TrimRight(address, "/")

	token := cfg["token"]
	if env := os.Getenv("VAULT_TOKEN"); env != "" {
		token = env
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required (config key \"token\" or VAULT_TOKEN)")
	}

	namespace := cfg["namespace"]
	if env := os.Getenv("VAULT_NAMESPACE"); env != "" {
		namespace = env
	}

	timeout := 5 * time.Second
	if t := cfg["timeout"]; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("parsing vault timeout %q: %w", t, err)
		}
		timeout = d
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg["tls_skip_verify"] == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Vault{
		address:   address,
		token:     token,
		namespace: namespace,
		client:    &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

func (v *Vault) Source() string { return "vault" }

func (v *Vault) Resolve(ctx context.Context, ref string) (string, error) {
	raw, ok := strings.CutPrefix(ref, "vault://")
	if !ok {
		return "", fmt.Errorf("%w: not a vault:// reference: %q", ErrNotFound, ref)
	}
	path, field, _ := strings.Cut(raw, "#")
	if path == "" {
		return "", fmt.Errorf("%w: vault reference has no path", ErrNotFound)
	}
	if field == "" {
		field = "value"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.address+"/v1/"+path, nil)
	if err != nil {
		return "", fmt.Errorf("building vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.token)
	if v.namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.namespace)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling vault: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading vault response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: vault path %q", ErrNotFound, path)
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("vault denied access to %q", path)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("vault returned status %d for %q", resp.StatusCode, path)
	}

	// KV v2 wraps the payload twice: {"data": {"data": {...}, "metadata": {...}}}.
	var envelope struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("parsing vault response: %w", err)
	}
	if envelope.Data.Data == nil {
		return "", fmt.Errorf("%w: vault path %q holds no data", ErrNotFound, path)
	}

	value, found := envelope.Data.Data[field]
	if !found {
		return "", fmt.Errorf("%w: field %q at vault path %q", ErrNotFound, field, path)
	}
	s, isString := value.(string)
	if !isString {
		return "", fmt.Errorf("vault field %q at %q is not a string", field, path)
	}
	return s, nil
}
