// Package httpclient builds the outbound HTTP clients used for provider calls
// and artifact downloads.
package httpclient

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpproxy"
	"golang.org/x/time/rate"
)

// Options configures one client.
type Options struct {
	Timeout time.Duration
	// ProxyURL routes requests through an HTTP(S) proxy when non-empty.
	ProxyURL string
	// NoProxy lists hosts, domains or CIDRs that bypass the proxy. Loopback
	// addresses always bypass it.
	NoProxy []string
	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

var alwaysDirect = []string{"localhost", "127.0.0.1", "::1"}

func New(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		transport.Proxy = proxyFunc(opts.ProxyURL, opts.NoProxy)
	} else {
		transport.Proxy = nil
	}

	var rt http.RoundTripper = transport
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		rt = &limitedTransport{
			next:    transport,
			limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}

func proxyFunc(proxyURL string, noProxy []string) func(*http.Request) (*url.URL, error) {
	exclude := append(append([]string{}, alwaysDirect...), noProxy...)
	for i := range exclude {
		exclude[i] = strings.TrimSpace(exclude[i])
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL,
		HTTPSProxy: proxyURL,
		NoProxy:    strings.Join(exclude, ","),
	}
	fn := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}

// ProxyFor reports the proxy a request to target would use, nil when direct.
func ProxyFor(client *http.Client, target string) (*url.URL, error) {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	rt := client.Transport
	if lt, ok := rt.(*limitedTransport); ok {
		rt = lt.next
	}
	t, ok := rt.(*http.Transport)
	if !ok || t.Proxy == nil {
		return nil, nil
	}
	return t.Proxy(req)
}

type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
