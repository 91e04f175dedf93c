// Package provision points the access controller's splash page at this
// service before it starts serving handshakes.
package provision

import (
	"context"
	"fmt"

	"splashgate/portal-service/internal/meraki"

	"github.com/rs/zerolog/log"
)

// Controller is the subset of the controller client used at startup.
type Controller interface {
	ResolveNetworkID(ctx context.Context, networkName string) (meraki.NetworkIdentity, error)
	ConfigureSSID(ctx context.Context, networkID string, cfg meraki.SSIDConfig) error
	ConfigureSplashPage(ctx context.Context, networkID string, ssidNumber int, captivePortalBaseURL string) error
}

// Request names the network and the SSID to create on it.
type Request struct {
	NetworkName  string
	SSIDName     string
	SSIDPassword string
}

type Provisioner struct {
	Controller   Controller
	Resolver     PublicURLResolver
	SSIDNumber   int
	WalledGarden []string
}

// Run resolves the network, then configures the SSID and finally the splash
// page. The first failure aborts the sequence.
func (p *Provisioner) Run(ctx context.Context, req Request) (meraki.NetworkIdentity, error) {
	netID, err := p.Controller.ResolveNetworkID(ctx, req.NetworkName)
	if err != nil {
		return meraki.NetworkIdentity{}, fmt.Errorf("resolve network %q: %w", req.NetworkName, err)
	}

	baseURL, err := p.Resolver.PublicURL(ctx)
	if err != nil {
		return netID, fmt.Errorf("resolve public url: %w", err)
	}

	ssid := meraki.ExternalPortalSSID(p.SSIDNumber, req.SSIDName, req.SSIDPassword, p.WalledGarden)
	if err := p.Controller.ConfigureSSID(ctx, netID.ID, ssid); err != nil {
		return netID, fmt.Errorf("configure ssid: %w", err)
	}
	log.Info().
		Str("network_id", netID.ID).
		Int("ssid_number", p.SSIDNumber).
		Str("ssid", req.SSIDName).
		Msg("ssid configured")

	if err := p.Controller.ConfigureSplashPage(ctx, netID.ID, p.SSIDNumber, baseURL); err != nil {
		return netID, fmt.Errorf("configure splash page: %w", err)
	}
	log.Info().
		Str("network_id", netID.ID).
		Str("portal_url", baseURL).
		Msg("splash page configured")

	return netID, nil
}
