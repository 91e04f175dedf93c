package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---- Public types ----

// HandshakeClaims bind a token to one captive-portal handshake session.
// The session ID travels in the standard jti claim.
type HandshakeClaims struct {
	jwt.RegisteredClaims
}

type Keyring struct {
	Keys       map[string][]byte // kid -> secret
	CurrentKID string
	Issuer     string
	// MaxTTL caps Mint() so a leaked token cannot outlive a reasonable handshake.
	MaxTTL time.Duration
}

// ---- Errors ----

var (
	ErrEmptyToken     = errors.New("empty token")
	ErrMissingKID     = errors.New("missing kid")
	ErrUnknownKID     = errors.New("unknown kid")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrMissingSession = errors.New("missing session id")
)

// ---- Constructors ----

// NewKeyring loads base64url HS256 secrets.
func NewKeyring(keys map[string]string, current, iss string) (*Keyring, error) {
	kr := &Keyring{
		Keys:   make(map[string][]byte, len(keys)),
		Issuer: iss,
		MaxTTL: 24 * time.Hour,
	}
	for kid, b64 := range keys {
		dec, err := base64.RawURLEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		if len(dec) < 32 {
			return nil, errors.New("signing key too short; need >=32 bytes")
		}
		kr.Keys[kid] = dec
	}
	if _, ok := kr.Keys[current]; !ok {
		return nil, errors.New("current_kid not found in keys")
	}
	kr.CurrentKID = current
	if kr.Issuer == "" {
		kr.Issuer = "splashgate"
	}
	return kr, nil
}

// NewEphemeralKeyring generates a random key that only lives as long as the
// process; tokens minted before a restart stop verifying.
func NewEphemeralKeyring(iss string) (*Keyring, error) {
	rnd := make([]byte, 32)
	if _, err := rand.Read(rnd); err != nil {
		return nil, err
	}
	return NewKeyring(map[string]string{"ephemeral": base64.RawURLEncoding.EncodeToString(rnd)}, "ephemeral", iss)
}

// ---- Operations ----

// Mint signs a token for sessionID valid for ttl (clamped to MaxTTL).
func (k *Keyring) Mint(sessionID string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		return "", ErrMissingSession
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if ttl > k.MaxTTL {
		ttl = k.MaxTTL
	}
	now := time.Now()
	claims := HandshakeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    k.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = k.CurrentKID
	secret := k.Keys[k.CurrentKID]
	if len(secret) == 0 {
		return "", errors.New("missing signing key for current_kid")
	}
	return t.SignedString(secret)
}

// SessionID verifies tok (signature, kid, issuer, expiry) and returns the
// session ID it carries.
func (k *Keyring) SessionID(tok string) (string, error) {
	if tok == "" {
		return "", ErrEmptyToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	var claims HandshakeClaims
	token, err := parser.ParseWithClaims(tok, &claims, func(t *jwt.Token) (interface{}, error) {
		kidVal, ok := t.Header["kid"]
		if !ok {
			return nil, ErrMissingKID
		}
		kid, _ := kidVal.(string)
		secret, ok := k.Keys[kid]
		if !ok {
			return nil, ErrUnknownKID
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if subtle.ConstantTimeCompare([]byte(claims.Issuer), []byte(k.Issuer)) != 1 {
		return "", ErrIssuerMismatch
	}
	if claims.ID == "" {
		return "", ErrMissingSession
	}
	return claims.ID, nil
}
