// Package httpc builds the HTTP clients moodcam uses to reach the
// classification service. Every client has a whole-request timeout and
// identifies itself with UserAgent.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// UserAgent is sent on every request that does not set its own.
const UserAgent = "moodcam/1.0"

// Timeouts for one classification round trip. A frame upload is a few
// tens of kilobytes, so the request timeout is dominated by model latency.
const (
	DefaultTimeout      = 30 * time.Second
	DialTimeout         = 5 * time.Second
	TLSHandshakeTimeout = 5 * time.Second
	IdleConnTimeout     = 2 * time.Minute
)

// NewClient returns a client with the given request timeout. A zero or
// negative timeout means DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgent{next: newTransport()},
	}
}

// newTransport keeps a small pool: captures are single-flight, so at most
// one request to the model host is in flight per scheduler.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       IdleConnTimeout,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

type userAgent struct {
	next http.RoundTripper
}

func (u *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return u.next.RoundTrip(req)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport.
func (u *userAgent) CloseIdleConnections() {
	if c, ok := u.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
