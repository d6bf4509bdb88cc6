package httpclient

import (
	"net"
	"net/http"
	"time"

	"devhub/internal/logging"
)

const defaultTimeout = 30 * time.Second

// New returns an http.Client configured for ordinary request/response calls.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logging.OrNop(logger).Debug("httpclient created with timeout %s", timeout)

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(),
	}
}

// NewStreaming returns an http.Client for long-lived streaming responses.
// It carries no overall timeout, since that would sever a healthy stream
// mid-run; connection-level limits live in the transport and callers end
// streams through context cancellation.
func NewStreaming(logger logging.Logger) *http.Client {
	logging.OrNop(logger).Debug("streaming httpclient created")
	return &http.Client{
		Transport: Transport(),
	}
}

// Transport returns an http.Transport clone with connection-level timeouts
// suitable for outbound calls, streaming ones included.
func Transport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		}
	}

	transport := base.Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	return transport
}
