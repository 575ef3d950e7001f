// Package oauth provides the authenticated transport used by the upload
// client. Token refresh is delegated to the oauth2 token source; the
// transport adds the bearer header and retries once on a 401 after
// invalidating the cached token.
package oauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// Transport is an http.RoundTripper that authenticates all requests
// using the provided TokenSource.
type Transport struct {
	// Source supplies the token to be used.
	Source oauth2.TokenSource

	// Base is the base RoundTripper used to make the actual HTTP requests.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	token, err := t.Source.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: cannot get token: %w", err)
	}

	req2 := cloneRequest(req)
	token.SetAuthHeader(req2)

	resp, err := base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}

	// Reactive retry: a 401 means the cached token went stale between the
	// proactive check and the request landing.
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()

		slog.Warn("Got 401 Unauthorized, refetching token", "url", req.URL.String())

		token, err = t.Source.Token()
		if err != nil {
			return nil, fmt.Errorf("oauth: token refetch failed: %w", err)
		}

		token.SetAuthHeader(req2)
		return base.RoundTrip(req2)
	}

	return resp, nil
}

// cloneRequest returns a clone of the provided *http.Request.
// The clone is a shallow copy of the struct and its Header map.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}

// NewClient builds an HTTP client whose requests carry the token from
// the source. Refresh and caching stay inside the oauth2 package.
func NewClient(source oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &Transport{Source: oauth2.ReuseTokenSource(nil, source)},
	}
}

// EnvTokenSource reads a static bearer token from the given environment
// variable. Used for local development against a stub endpoint.
func EnvTokenSource(envVar string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: os.Getenv(envVar)})
}
