package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

const ipv4Loopback = "127.0.0.1"

// ClientKey picks the first X-Forwarded-For entry, else the peer address.
func ClientKey(r *http.Request) string {
	return KeyFrom(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
}

// KeyFrom is ClientKey for transports that are not net/http.
func KeyFrom(forwardedFor, peerAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return normalizeAddr(first)
		}
	}
	return normalizeAddr(hostOnly(peerAddr))
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func normalizeAddr(addr string) string {
	addr = strings.Trim(strings.TrimSpace(addr), "[]")
	switch addr {
	case "::1", "::ffff:127.0.0.1", "0:0:0:0:0:0:0:1":
		return ipv4Loopback
	case "":
		return "unknown"
	}
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return addr
}
