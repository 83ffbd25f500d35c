package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies is the set of networks whose X-Forwarded-For header is
// believed. A request from any other peer is keyed by its socket address.
type TrustedProxies []*net.IPNet

// ParseTrustedProxies accepts single IPs and CIDR blocks (e.g. "10.0.0.0/8").
func ParseTrustedProxies(proxies []string) (TrustedProxies, error) {
	nets := make(TrustedProxies, 0, len(proxies))
	for _, p := range proxies {
		_, network, err := net.ParseCIDR(p)
		if err != nil {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("windowlimit/middleware: invalid IP or CIDR %q", p)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		nets = append(nets, network)
	}
	return nets, nil
}

func (t TrustedProxies) contains(ip net.IP) bool {
	for _, network := range t {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the client address for a request that arrived from
// remoteAddr carrying the given X-Forwarded-For value.
//
// The header is only read when the peer is trusted. It is walked right to
// left and the first hop outside the trusted set is the client. When every
// hop is trusted the leftmost one is returned.
func (t TrustedProxies) ClientIP(remoteAddr, forwardedFor string) string {
	remote := RemoteIP(remoteAddr)
	peer := net.ParseIP(remote)
	if peer == nil || !t.contains(peer) || forwardedFor == "" {
		return remote
	}

	client := remote
	hops := strings.Split(forwardedFor, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		ip := net.ParseIP(hop)
		if ip == nil {
			continue
		}
		if !t.contains(ip) {
			return hop
		}
		client = hop
	}
	return client
}

// RemoteIP strips the port from a socket address. Addresses without a port
// are returned unchanged.
func RemoteIP(remoteAddr string) string {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return ip
}

// TrustedIPKeyFunc returns a KeyFunc that honors X-Forwarded-For only when
// the request comes from one of trustedProxies.
//
//	keyFunc, err := middleware.TrustedIPKeyFunc([]string{"10.0.0.0/8"})
func TrustedIPKeyFunc(trustedProxies []string) (KeyFunc, error) {
	proxies, err := ParseTrustedProxies(trustedProxies)
	if err != nil {
		return nil, err
	}
	return func(r *http.Request) string {
		return proxies.ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"))
	}, nil
}
