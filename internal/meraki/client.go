package meraki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"splashgate/portal-service/internal/metrics"

	"github.com/rs/zerolog/log"
)

const (
	apiKeyHeader   = "X-Cisco-Meraki-API-Key"
	maxErrorBody   = 4 * 1024
	maxResponseLen = 8 * 1024 * 1024
)

// Client talks to the Meraki dashboard API (or the lab simulator). Every call
// is attempted once; non-2xx responses become *APIError.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a client whose calls are bounded by timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListOrganizations returns every organization visible to the API key.
func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	err := c.do(ctx, "list_organizations", http.MethodGet, "/organizations", nil, &orgs)
	return orgs, err
}

// ListNetworks returns the networks of one organization.
func (c *Client) ListNetworks(ctx context.Context, orgID string) ([]Network, error) {
	var nets []Network
	path := "/organizations/" + url.PathEscape(orgID) + "/networks"
	err := c.do(ctx, "list_networks", http.MethodGet, path, nil, &nets)
	return nets, err
}

// ResolveNetworkID searches organizations in the order the dashboard returns
// them and returns the first network whose name matches exactly.
func (c *Client) ResolveNetworkID(ctx context.Context, networkName string) (NetworkIdentity, error) {
	orgs, err := c.ListOrganizations(ctx)
	if err != nil {
		return NetworkIdentity{}, err
	}
	for _, org := range orgs {
		nets, err := c.ListNetworks(ctx, org.ID)
		if err != nil {
			return NetworkIdentity{}, err
		}
		for _, n := range nets {
			if n.Name == networkName {
				log.Debug().
					Str("org_id", org.ID).
					Str("network_id", n.ID).
					Str("network", n.Name).
					Msg("network resolved")
				return NetworkIdentity{Name: n.Name, ID: n.ID}, nil
			}
		}
	}
	return NetworkIdentity{}, &NotFoundError{Name: networkName}
}

// ConfigureSplashPage points the SSID's click-through splash page at
// captivePortalBaseURL + "/click".
func (c *Client) ConfigureSplashPage(ctx context.Context, networkID string, ssidNumber int, captivePortalBaseURL string) error {
	body := SplashPageConfig{
		SplashPage:   SplashClickThrough,
		SplashURL:    strings.TrimRight(captivePortalBaseURL, "/") + "/click",
		UseCustomURL: true,
	}
	path := c.ssidPath(networkID, ssidNumber) + "/splashSettings"
	return c.do(ctx, "update_splash_settings", http.MethodPut, path, body, nil)
}

// ConfigureSSID replaces the SSID settings at cfg.Number.
func (c *Client) ConfigureSSID(ctx context.Context, networkID string, cfg SSIDConfig) error {
	return c.do(ctx, "update_ssid", http.MethodPut, c.ssidPath(networkID, cfg.Number), cfg, nil)
}

// GetSplashLoginAttempts fetches recent splash login events for the network.
func (c *Client) GetSplashLoginAttempts(ctx context.Context, networkID string) ([]LoginAttempt, error) {
	var attempts []LoginAttempt
	path := "/networks/" + url.PathEscape(networkID) + "/splashLoginAttempts"
	err := c.do(ctx, "list_splash_login_attempts", http.MethodGet, path, nil, &attempts)
	return attempts, err
}

func (c *Client) ssidPath(networkID string, number int) string {
	return "/networks/" + url.PathEscape(networkID) + "/ssids/" + strconv.Itoa(number)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.ControllerRequests.WithLabelValues(op, result).Inc()
		metrics.ControllerDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set(apiKeyHeader, c.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseLen)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
