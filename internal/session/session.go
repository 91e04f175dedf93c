// Package session holds the captive-portal handshake state established by
// /click and consumed by /login and /success. State is keyed per handshake
// so that interleaved clients never observe each other's grant URLs.
package session

import (
	"context"
	"errors"
)

// ErrNoActiveHandshake is returned when a handshake step runs without a
// prior /click for the same session (unknown, expired or evicted ID).
var ErrNoActiveHandshake = errors.New("no active handshake")

// HandshakeState is the per-session data handed from /click to the later steps.
type HandshakeState struct {
	BaseGrantURL    string `json:"base_grant_url"`
	UserContinueURL string `json:"user_continue_url"`
	SuccessURL      string `json:"success_url"`
	NodeMAC         string `json:"node_mac,omitempty"`
	ClientIP        string `json:"client_ip,omitempty"`
	ClientMAC       string `json:"client_mac,omitempty"`
}

// Store is implemented by MemoryStore and RedisStore.
type Store interface {
	// Put stores state under id, overwriting any existing value.
	Put(ctx context.Context, id string, state HandshakeState) error
	// Get returns ErrNoActiveHandshake when id is unknown or expired.
	Get(ctx context.Context, id string) (HandshakeState, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
