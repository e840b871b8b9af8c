package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		allowlist []string
		header    string
		sourceIP  string
		want      bool
	}{
		{name: "nothing configured", sourceIP: "198.51.100.1", want: true},
		{name: "token matches", token: "abc", header: "Bearer abc", want: true},
		{name: "scheme is case-insensitive", token: "abc", header: "bearer abc", want: true},
		{name: "token mismatch", token: "abc", header: "Bearer abd", want: false},
		{name: "token prefix only", token: "abc", header: "Bearer ab", want: false},
		{name: "basic auth is not bearer", token: "abc", header: "Basic abc", want: false},
		{name: "missing header", token: "abc", want: false},
		{name: "ip in cidr", allowlist: []string{"10.0.0.0/8"}, sourceIP: "10.1.2.3", want: true},
		{name: "ip outside cidr", allowlist: []string{"10.0.0.0/8"}, sourceIP: "11.1.2.3", want: false},
		{name: "exact ip", allowlist: []string{"192.0.2.10"}, sourceIP: "192.0.2.10", want: true},
		{name: "ipv6 cidr", allowlist: []string{"2001:db8::/32"}, sourceIP: "2001:db8::1", want: true},
		{name: "token or ip", token: "abc", allowlist: []string{"10.0.0.0/8"}, sourceIP: "10.9.9.9", want: true},
		{name: "unparsable source ip", allowlist: []string{"10.0.0.0/8"}, sourceIP: "unknown", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := NewAuthenticator(tt.token, tt.allowlist)
			require.NoError(t, err)

			r := httptest.NewRequest(http.MethodPost, "/api/ingest/webhook", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, auth.Allow(r, tt.sourceIP))
		})
	}
}

func TestNewAuthenticator_RejectsBadEntries(t *testing.T) {
	_, err := NewAuthenticator("", []string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = NewAuthenticator("", []string{"not-an-ip"})
	assert.Error(t, err)
}
