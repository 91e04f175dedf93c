package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

// HMACIP anonymizes IPv4 to /24 (IPv6 to /48), then HMACs the prefix for logs.
func HMACIP(ipStr string, key []byte) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown"
	}
	var cidr string
	if v4 := ip.To4(); v4 != nil {
		cidr = v4.Mask(net.CIDRMask(24, 32)).String()
	} else {
		cidr = ip.Mask(net.CIDRMask(48, 128)).String()
	}
	return digest(key, cidr)
}

// HMACMAC keeps the OUI (vendor prefix) of a MAC address readable and
// replaces the device-specific half with an HMAC digest.
func HMACMAC(macStr string, key []byte) string {
	hw, err := net.ParseMAC(strings.TrimSpace(macStr))
	if err != nil || len(hw) < 3 {
		return "unknown"
	}
	oui := strings.ToLower(hw[:3].String())
	return oui + ":" + digest(key, hw.String())[:8]
}

func digest(key []byte, s string) string {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))[:16]
}
