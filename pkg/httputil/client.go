// Package httputil provides shared HTTP plumbing for outbound calls from
// the formward gateway: pooled transports, timeout tiers, and safe body
// reading.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize caps response body reads. Moderation APIs return small
// JSON documents; anything larger is misbehaving.
const MaxResponseSize = 4 * 1024 * 1024

// Shared transport with connection pooling, safe for concurrent use.
// Reusing TCP connections matters because every flagged submission can
// trigger a moderation round trip.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier groups outbound calls by how long they are allowed to take.
type TimeoutTier int

const (
	// TierFast for health checks and liveness probes (5s).
	TierFast TimeoutTier = iota
	// TierModeration for moderation-endpoint calls (30s).
	TierModeration
	// TierChat for chat-completion classification, which is slower (45s).
	TierChat
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:       5 * time.Second,
	TierModeration: 30 * time.Second,
	TierChat:       45 * time.Second,
}

var (
	clientFast       *http.Client
	clientModeration *http.Client
	clientChat       *http.Client
	clientOnce       sync.Once
)

func initClients() {
	clientFast = &http.Client{
		Timeout:   timeoutDurations[TierFast],
		Transport: sharedTransport,
	}
	clientModeration = &http.Client{
		Timeout:   timeoutDurations[TierModeration],
		Transport: sharedTransport,
	}
	clientChat = &http.Client{
		Timeout:   timeoutDurations[TierChat],
		Transport: sharedTransport,
	}
}

// Client returns the shared HTTP client for the given timeout tier. The
// clients share one connection pool; use these instead of constructing
// http.Client values per request.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierFast:
		return clientFast
	case TierModeration:
		return clientModeration
	case TierChat:
		return clientChat
	default:
		return clientModeration
	}
}

// ReadResponseBody reads a response body with a size limit so a
// misbehaving upstream cannot exhaust memory.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads a response body for error reporting, capped at 1MB.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose drains and closes a response body so the connection goes
// back into the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
