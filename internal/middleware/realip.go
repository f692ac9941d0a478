package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP resolves the client address. Forwarding headers are honoured only
// when the direct peer is a configured trusted proxy; otherwise any
// client-supplied X-Real-IP is overwritten with the peer address.
type RealIP struct {
	trustedNets []*net.IPNet
}

// NewRealIP accepts IP addresses ("192.168.1.1") and CIDRs ("10.0.0.0/8").
// Invalid entries are ignored.
func NewRealIP(trustedProxies []string) *RealIP {
	m := &RealIP{}

	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}

		if !strings.Contains(proxy, "/") {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			if ip.To4() != nil {
				proxy += "/32"
			} else {
				proxy += "/128"
			}
		}

		if _, network, err := net.ParseCIDR(proxy); err == nil {
			m.trustedNets = append(m.trustedNets, network)
		}
	}

	return m
}

func (m *RealIP) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := m.clientIP(r); ip != "" {
			r.Header.Set("X-Real-IP", ip)
		} else {
			r.Header.Del("X-Real-IP")
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RealIP) clientIP(r *http.Request) string {
	peer := peerIP(r.RemoteAddr)
	if !m.trusted(peer) {
		return peer
	}

	// Cloudflare's header takes priority.
	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); net.ParseIP(cf) != nil {
		return cf
	}

	// Walk X-Forwarded-For from the right, skipping our own proxies.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !m.trusted(hop) {
				return hop
			}
			if i == 0 {
				return hop
			}
		}
	}

	return peer
}

func (m *RealIP) trusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range m.trustedNets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// peerIP strips the port from RemoteAddr.
func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil {
		return host
	}
	return remoteAddr
}
