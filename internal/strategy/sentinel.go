package strategy

import (
	_ "embed"
	"net/http"
	"strings"
	"time"

	"github.com/joshdurbin/offgate/internal/domain"
)

// OfflineSentinelBody is the fixed body of the synthetic 503 returned
// when a request cannot be served from cache or network. Consumers must
// special-case this status+body combination: it means "cache miss while
// offline", not a server error.
const OfflineSentinelBody = `{"error":"offline","offgate":true}`

// OfflineHeader marks synthetic responses produced by the gateway.
const OfflineHeader = "X-Offgate-Offline"

//go:embed offline.html
var offlinePage []byte

// NewOfflineResponse builds the offline sentinel snapshot
func NewOfflineResponse() *domain.ResponseSnapshot {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set(OfflineHeader, "1")

	return &domain.ResponseSnapshot{
		StatusCode: http.StatusServiceUnavailable,
		Header:     header,
		Body:       []byte(OfflineSentinelBody),
		StoredAt:   time.Now(),
	}
}

// NewOfflinePage builds the fallback document served for navigation
// requests that miss both network and cache.
func NewOfflinePage() *domain.ResponseSnapshot {
	header := make(http.Header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set(OfflineHeader, "1")

	return &domain.ResponseSnapshot{
		StatusCode: http.StatusServiceUnavailable,
		Header:     header,
		Body:       append([]byte(nil), offlinePage...),
		StoredAt:   time.Now(),
	}
}

// IsOfflineSentinel reports whether a snapshot is the synthetic offline
// sentinel rather than a genuine upstream 503.
func IsOfflineSentinel(s *domain.ResponseSnapshot) bool {
	return s != nil &&
		s.StatusCode == http.StatusServiceUnavailable &&
		s.Header.Get(OfflineHeader) == "1" &&
		string(s.Body) == OfflineSentinelBody
}

// isNavigation reports whether the request is a top-level document load
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}
