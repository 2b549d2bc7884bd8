package github

import (
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// throttledTransport spaces requests so a long triage run stays under the
// host's secondary rate limits.
type throttledTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

func newHTTPClient(base *http.Client, token string, rps float64) *http.Client {
	rt := http.DefaultTransport
	if base != nil && base.Transport != nil {
		rt = base.Transport
	}
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   rt,
		}
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &http.Client{Transport: &throttledTransport{base: rt, limiter: rate.NewLimiter(limit, 1)}}
}
