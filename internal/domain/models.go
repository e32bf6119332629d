package domain

import (
	"net/http"
	"time"
)

// Strategy identifies the caching strategy applied to a GET request.
type Strategy int

const (
	// CacheFirst serves from cache unconditionally when present and only
	// hits the network on a miss.
	CacheFirst Strategy = iota

	// NetworkFirst prefers live data and falls back to cache only on
	// network failure.
	NetworkFirst

	// StaleWhileRevalidate serves cached data instantly while refreshing
	// it in the background for the next request.
	StaleWhileRevalidate
)

// String returns the wire name of the strategy.
func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	default:
		return "unknown"
	}
}

// ResponseSnapshot is an HTTP response captured at store time. Snapshots
// are immutable once written; cache writes replace, never merge.
type ResponseSnapshot struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

// Clone returns a deep copy of the snapshot so callers cannot mutate
// stored state.
func (r *ResponseSnapshot) Clone() *ResponseSnapshot {
	if r == nil {
		return nil
	}
	out := &ResponseSnapshot{
		StatusCode: r.StatusCode,
		Header:     make(http.Header, len(r.Header)),
		Body:       append([]byte(nil), r.Body...),
		StoredAt:   r.StoredAt,
	}
	for k, vs := range r.Header {
		out.Header[k] = append([]string(nil), vs...)
	}
	return out
}

// RequestKey canonicalizes the identity of a cacheable request. Only GET
// requests enter the read-strategy path, but the method stays in the key
// for compatibility with the stored format.
func RequestKey(method, url string) string {
	return method + " " + url
}

// QueuedMutation is a pending non-idempotent write captured while the
// upstream was unreachable. Headers and body are replayed exactly as
// captured at enqueue time.
type QueuedMutation struct {
	ID         string      `json:"id"`
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
	RetryCount int         `json:"retry_count"`
	MaxRetries int         `json:"max_retries"`
}

// CachedDataRecord is a TTL-bounded application read-cache entry,
// independent of the HTTP response cache.
type CachedDataRecord struct {
	Key       string        `json:"key"`
	Data      []byte        `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
}

// Expired reports whether the record's validity window has elapsed at
// the given instant. The boundary is strict: a record exactly at its
// TTL is still fresh.
func (r *CachedDataRecord) Expired(now time.Time) bool {
	return now.Sub(r.Timestamp) > r.TTL
}

// NetworkStatus is the current connectivity view maintained by the
// network status observer.
type NetworkStatus struct {
	IsOnline       bool      `json:"is_online"`
	IsConnected    bool      `json:"is_connected"`
	ConnectionType string    `json:"connection_type"`
	ChangedAt      time.Time `json:"changed_at"`
}

// GatewayState is the lifecycle state of the gateway service.
type GatewayState string

const (
	StateInstalling    GatewayState = "installing"
	StateIdle          GatewayState = "idle"
	StateHandlingFetch GatewayState = "handling-fetch"
	StateSyncing       GatewayState = "syncing"
)

// StatusResponse is returned by GET /offgate/status.
type StatusResponse struct {
	State      GatewayState  `json:"state"`
	Network    NetworkStatus `json:"network"`
	QueueDepth int           `json:"queue_depth"`
}

// EnqueueResponse is returned when a mutation is captured for later
// replay instead of being forwarded upstream.
type EnqueueResponse struct {
	ID       string    `json:"id"`
	Queued   bool      `json:"queued"`
	QueuedAt time.Time `json:"queued_at"`
}

// SyncResult summarizes one drain of the mutation queue.
type SyncResult struct {
	Attempted int `json:"attempted"`
	Replayed  int `json:"replayed"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
}

// RecordRequest is the body for PUT /offgate/records/{key}.
type RecordRequest struct {
	Data       any `json:"data"`
	TTLSeconds int `json:"ttl_seconds"`
}
