package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PublicURLResolver returns the externally reachable base URL of the portal.
type PublicURLResolver interface {
	PublicURL(ctx context.Context) (string, error)
}

// StaticResolver returns a configured URL.
type StaticResolver struct {
	URL string
}

func (s StaticResolver) PublicURL(context.Context) (string, error) {
	if s.URL == "" {
		return "", errors.New("no public url configured")
	}
	return strings.TrimRight(s.URL, "/"), nil
}

// ErrNoTunnel is returned when the tunnel agent lists no tunnel for the
// requested protocol.
var ErrNoTunnel = errors.New("no matching tunnel")

// TunnelResolver asks a local ngrok agent for its public URL.
type TunnelResolver struct {
	APIURL     string
	Proto      string
	HTTPClient *http.Client
}

func NewTunnelResolver(apiURL, proto string, timeout time.Duration) *TunnelResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TunnelResolver{
		APIURL:     apiURL,
		Proto:      proto,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type tunnelList struct {
	Tunnels []struct {
		Name      string `json:"name"`
		Proto     string `json:"proto"`
		PublicURL string `json:"public_url"`
	} `json:"tunnels"`
}

func (t *TunnelResolver) PublicURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.APIURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tunnel api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("tunnel api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var list tunnelList
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&list); err != nil {
		return "", fmt.Errorf("tunnel api: decode: %w", err)
	}
	for _, tun := range list.Tunnels {
		if tun.Proto == t.Proto && tun.PublicURL != "" {
			return strings.TrimRight(tun.PublicURL, "/"), nil
		}
	}
	return "", fmt.Errorf("%w (proto %s)", ErrNoTunnel, t.Proto)
}
