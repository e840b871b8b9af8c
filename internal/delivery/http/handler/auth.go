package handler

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Authenticator admits a callback that carries the shared bearer token or
// comes from an allow-listed address. With neither configured every caller
// is admitted.
type Authenticator struct {
	token    []byte
	networks []*net.IPNet
}

// NewAuthenticator parses the allow-list entries, each a single IP or a CIDR.
func NewAuthenticator(token string, allowlist []string) (*Authenticator, error) {
	a := &Authenticator{token: []byte(token)}
	for _, entry := range allowlist {
		if ip := net.ParseIP(entry); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			a.networks = append(a.networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list entry %q: %w", entry, err)
		}
		a.networks = append(a.networks, network)
	}
	return a, nil
}

func (a *Authenticator) open() bool {
	return len(a.token) == 0 && len(a.networks) == 0
}

// Allow reports whether the request may be processed.
func (a *Authenticator) Allow(r *http.Request, sourceIP string) bool {
	if a.open() {
		return true
	}
	if len(a.token) > 0 {
		if presented, ok := bearerToken(r); ok && subtle.ConstantTimeCompare(presented, a.token) == 1 {
			return true
		}
	}
	if ip := net.ParseIP(sourceIP); ip != nil {
		for _, network := range a.networks {
			if network.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func bearerToken(r *http.Request) ([]byte, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, false
	}
	token = strings.TrimSpace(token)
	return []byte(token), token != ""
}
