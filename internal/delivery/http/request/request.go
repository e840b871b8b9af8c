package request

import (
	"io"
	"net"
	"net/http"
)

// redactedHeaders are replaced before a header snapshot is stored.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

// ReadBody reads at most limit bytes of the request body. truncated reports
// whether the sender delivered more than that.
func ReadBody(r *http.Request, limit int64) (body []byte, truncated bool, err error) {
	body, err = io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// SnapshotHeaders flattens the headers to their first value, with
// credentials redacted.
func SnapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		key := http.CanonicalHeaderKey(name)
		if redactedHeaders[key] {
			out[key] = "[redacted]"
			continue
		}
		out[key] = values[0]
	}
	return out
}

// ClientIP returns the caller address without the port. RemoteAddr has
// already been rewritten by the RealIP middleware when forwarded headers are
// trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
