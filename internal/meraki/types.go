package meraki

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NetworkIdentity is resolved once at startup and passed by value afterwards.
type NetworkIdentity struct {
	Name string
	ID   string
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Network struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
}

// Splash page modes understood by the dashboard.
const (
	SplashClickThrough = "Click-through splash page"
	SplashNone         = "None"
)

// SplashPageConfig is pushed with a replace (PUT) semantics.
type SplashPageConfig struct {
	SplashPage   string `json:"splashPage"`
	SplashURL    string `json:"splashUrl"`
	UseCustomURL bool   `json:"useCustomUrl"`
}

// SSIDConfig mirrors the dashboard's SSID update body. WalledGardenRanges is
// serialized space-separated, which is what the dashboard expects.
type SSIDConfig struct {
	Number                      int      `json:"number"`
	Name                        string   `json:"name"`
	Enabled                     bool     `json:"enabled"`
	SplashPage                  string   `json:"splashPage"`
	SSIDAdminAccessible         bool     `json:"ssidAdminAccessible"`
	AuthMode                    string   `json:"authMode"`
	PSK                         string   `json:"psk"`
	EncryptionMode              string   `json:"encryptionMode"`
	WPAEncryptionMode           string   `json:"wpaEncryptionMode"`
	IPAssignmentMode            string   `json:"ipAssignmentMode"`
	UseVLANTagging              bool     `json:"useVlanTagging"`
	WalledGardenEnabled         bool     `json:"walledGardenEnabled"`
	WalledGardenRanges          RangeSet `json:"walledGardenRanges"`
	MinBitrate                  int      `json:"minBitrate"`
	BandSelection               string   `json:"bandSelection"`
	PerClientBandwidthLimitUp   int      `json:"perClientBandwidthLimitUp"`
	PerClientBandwidthLimitDown int      `json:"perClientBandwidthLimitDown"`
}

// RangeSet is a set of walled-garden host patterns or CIDRs.
type RangeSet []string

func (r RangeSet) MarshalJSON() ([]byte, error) {
	out := ""
	seen := make(map[string]struct{}, len(r))
	for _, s := range r {
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		if out != "" {
			out += " "
		}
		out += s
	}
	return json.Marshal(out)
}

// ExternalPortalSSID returns the opinionated SSID profile used for the
// external captive portal: WPA2 PSK, 5 GHz only, bridge mode, and a walled
// garden that lets captured clients reach the public tunnel hosting the portal.
func ExternalPortalSSID(number int, name, password string, walledGarden []string) SSIDConfig {
	return SSIDConfig{
		Number:                      number,
		Name:                        name,
		Enabled:                     true,
		SplashPage:                  SplashClickThrough,
		SSIDAdminAccessible:         false,
		AuthMode:                    "psk",
		PSK:                         password,
		EncryptionMode:              "wpa",
		WPAEncryptionMode:           "WPA2 only",
		IPAssignmentMode:            "Bridge mode",
		UseVLANTagging:              false,
		WalledGardenEnabled:         true,
		WalledGardenRanges:          RangeSet(walledGarden),
		MinBitrate:                  11,
		BandSelection:               "5 GHz band only",
		PerClientBandwidthLimitUp:   0,
		PerClientBandwidthLimitDown: 0,
	}
}

// LoginAttempt is one splash login event. It is passed through to the
// notification sink unmodified.
type LoginAttempt = json.RawMessage

// ErrNetworkNotFound matches any *NotFoundError via errors.Is.
var ErrNetworkNotFound = errors.New("network not found")

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("network %q not found in any organization", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNetworkNotFound
}

// APIError is returned for any non-2xx dashboard response.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: controller returned %d: %s", e.Operation, e.StatusCode, e.Body)
}
