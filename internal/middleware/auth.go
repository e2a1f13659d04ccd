package middleware

import (
	"net/http"
	"time"

	"github.com/mmynk/whobought/internal/auth"
)

// BearerAuth returns a middleware that attaches the token as a Bearer
// Authorization header. An expired token fails the request before it is
// sent. An empty token sends requests unauthenticated.
func BearerAuth(token string, now func() time.Time) Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if token == "" {
				return next.RoundTrip(req)
			}
			if _, err := auth.CheckToken(token, now()); err != nil {
				return nil, err
			}
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
			return next.RoundTrip(req)
		})
	}
}

// BearerHeader returns the handshake header for the push connection.
func BearerHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}
