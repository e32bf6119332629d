package strategy

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joshdurbin/offgate/internal/cachestore"
	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/metrics"
	"github.com/joshdurbin/offgate/internal/netstatus"
)

// backgroundRefreshTimeout bounds stale-while-revalidate refreshes that
// outlive the request that triggered them.
const backgroundRefreshTimeout = 30 * time.Second

// Executor serves a GET request under one caching strategy. Executors
// never propagate fetch failures; they always produce a response, using
// the offline sentinel or fallback page when nothing better exists.
type Executor interface {
	Serve(ctx context.Context, req *http.Request) *domain.ResponseSnapshot
}

// Partitions names the cache partitions executors read and write.
type Partitions struct {
	Static  string
	Dynamic string
}

// ReadOrder returns the partitions consulted by a cache-first lookup,
// static before dynamic.
func (p Partitions) ReadOrder() []string {
	return []string{p.Static, p.Dynamic}
}

// CacheFirstExecutor serves from cache unconditionally when present.
// Entries stored here are stale-forever; the dispatcher is responsible
// for only routing rarely-changing assets to this strategy.
type CacheFirstExecutor struct {
	store      cachestore.Store
	fetcher    Fetcher
	observer   *netstatus.Observer
	metrics    *metrics.Metrics
	partitions Partitions
}

// NewCacheFirst creates a cache-first executor
func NewCacheFirst(store cachestore.Store, fetcher Fetcher, observer *netstatus.Observer, m *metrics.Metrics, partitions Partitions) *CacheFirstExecutor {
	return &CacheFirstExecutor{
		store:      store,
		fetcher:    fetcher,
		observer:   observer,
		metrics:    m,
		partitions: partitions,
	}
}

// Serve implements the cache-first algorithm
func (e *CacheFirstExecutor) Serve(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	key := domain.RequestKey(req.Method, req.URL.RequestURI())

	for _, partition := range e.partitions.ReadOrder() {
		if snapshot, ok := e.store.Get(ctx, partition, key); ok {
			e.metrics.CacheHits.WithLabelValues(domain.CacheFirst.String()).Inc()
			return snapshot
		}
	}
	e.metrics.CacheMisses.WithLabelValues(domain.CacheFirst.String()).Inc()

	snapshot, err := e.fetcher.Fetch(ctx, req.Method, req.URL.RequestURI(), req.Header, nil)
	if err != nil {
		log.Printf("[FETCH] cache-first miss and network failed for %s: %v", key, err)
		e.observer.ReportFailure()
		e.metrics.NetworkFailures.Inc()
		e.metrics.OfflineServed.Inc()
		return NewOfflineResponse()
	}
	e.observer.ReportSuccess()

	if snapshot.StatusCode == http.StatusOK {
		if err := e.store.Put(ctx, e.partitions.Static, key, snapshot); err != nil {
			// Cache writes are best-effort; never block the response.
			log.Printf("Warning: failed to cache %s: %v", key, err)
		}
	}

	return snapshot
}

// NetworkFirstExecutor prefers live data and falls back to cache on
// network failure.
type NetworkFirstExecutor struct {
	store      cachestore.Store
	fetcher    Fetcher
	observer   *netstatus.Observer
	metrics    *metrics.Metrics
	partitions Partitions
}

// NewNetworkFirst creates a network-first executor
func NewNetworkFirst(store cachestore.Store, fetcher Fetcher, observer *netstatus.Observer, m *metrics.Metrics, partitions Partitions) *NetworkFirstExecutor {
	return &NetworkFirstExecutor{
		store:      store,
		fetcher:    fetcher,
		observer:   observer,
		metrics:    m,
		partitions: partitions,
	}
}

// Serve implements the network-first algorithm
func (e *NetworkFirstExecutor) Serve(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	key := domain.RequestKey(req.Method, req.URL.RequestURI())

	snapshot, err := e.fetcher.Fetch(ctx, req.Method, req.URL.RequestURI(), req.Header, nil)
	if err == nil {
		e.observer.ReportSuccess()
		// HTTP error statuses are returned as-is but never cached.
		if snapshot.StatusCode == http.StatusOK {
			if err := e.store.Put(ctx, e.partitions.Dynamic, key, snapshot); err != nil {
				log.Printf("Warning: failed to cache %s: %v", key, err)
			}
		}
		return snapshot
	}

	log.Printf("[FETCH] network-first fetch failed for %s: %v", key, err)
	e.observer.ReportFailure()
	e.metrics.NetworkFailures.Inc()

	if cached, ok := e.store.Get(ctx, e.partitions.Dynamic, key); ok {
		// Stale is acceptable here; there is no TTL check at this layer.
		e.metrics.CacheHits.WithLabelValues(domain.NetworkFirst.String()).Inc()
		return cached
	}
	e.metrics.CacheMisses.WithLabelValues(domain.NetworkFirst.String()).Inc()
	e.metrics.OfflineServed.Inc()

	if isNavigation(req) {
		return NewOfflinePage()
	}
	return NewOfflineResponse()
}

// StaleWhileRevalidateExecutor serves cached data instantly while
// refreshing it in the background for future requests. First-ever
// requests for a key behave like network-first.
type StaleWhileRevalidateExecutor struct {
	store      cachestore.Store
	fetcher    Fetcher
	observer   *netstatus.Observer
	metrics    *metrics.Metrics
	partitions Partitions
}

// NewStaleWhileRevalidate creates a stale-while-revalidate executor
func NewStaleWhileRevalidate(store cachestore.Store, fetcher Fetcher, observer *netstatus.Observer, m *metrics.Metrics, partitions Partitions) *StaleWhileRevalidateExecutor {
	return &StaleWhileRevalidateExecutor{
		store:      store,
		fetcher:    fetcher,
		observer:   observer,
		metrics:    m,
		partitions: partitions,
	}
}

// Serve implements the stale-while-revalidate algorithm
func (e *StaleWhileRevalidateExecutor) Serve(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	key := domain.RequestKey(req.Method, req.URL.RequestURI())
	requestURI := req.URL.RequestURI()
	header := req.Header.Clone()

	if cached, ok := e.store.Get(ctx, e.partitions.Dynamic, key); ok {
		e.metrics.CacheHits.WithLabelValues(domain.StaleWhileRevalidate.String()).Inc()
		// Refresh updates the entry for future requests, not this one.
		// The refresh must outlive the request context.
		go e.refresh(context.WithoutCancel(ctx), req.Method, requestURI, header, key)
		return cached
	}
	e.metrics.CacheMisses.WithLabelValues(domain.StaleWhileRevalidate.String()).Inc()

	snapshot, err := e.fetcher.Fetch(ctx, req.Method, requestURI, header, nil)
	if err != nil {
		log.Printf("[FETCH] stale-while-revalidate fetch failed for %s: %v", key, err)
		e.observer.ReportFailure()
		e.metrics.NetworkFailures.Inc()
		e.metrics.OfflineServed.Inc()
		return NewOfflineResponse()
	}
	e.observer.ReportSuccess()

	if snapshot.StatusCode == http.StatusOK {
		if err := e.store.Put(ctx, e.partitions.Dynamic, key, snapshot); err != nil {
			log.Printf("Warning: failed to cache %s: %v", key, err)
		}
	}

	return snapshot
}

// refresh performs the background revalidation. Failures are swallowed
// since a response has already been returned from cache.
func (e *StaleWhileRevalidateExecutor) refresh(ctx context.Context, method, requestURI string, header http.Header, key string) {
	ctx, cancel := context.WithTimeout(ctx, backgroundRefreshTimeout)
	defer cancel()

	snapshot, err := e.fetcher.Fetch(ctx, method, requestURI, header, nil)
	if err != nil {
		log.Printf("[FETCH] background refresh failed for %s: %v", key, err)
		e.observer.ReportFailure()
		e.metrics.NetworkFailures.Inc()
		return
	}
	e.observer.ReportSuccess()

	if snapshot.StatusCode != http.StatusOK {
		return
	}

	if err := e.store.Put(ctx, e.partitions.Dynamic, key, snapshot); err != nil {
		log.Printf("Warning: failed to store refreshed entry %s: %v", key, err)
	}
}

// NewExecutors wires one executor per strategy against shared
// collaborators.
func NewExecutors(store cachestore.Store, fetcher Fetcher, observer *netstatus.Observer, m *metrics.Metrics, partitions Partitions) map[domain.Strategy]Executor {
	return map[domain.Strategy]Executor{
		domain.CacheFirst:           NewCacheFirst(store, fetcher, observer, m, partitions),
		domain.NetworkFirst:         NewNetworkFirst(store, fetcher, observer, m, partitions),
		domain.StaleWhileRevalidate: NewStaleWhileRevalidate(store, fetcher, observer, m, partitions),
	}
}

// Ensure executors implement the interface
var _ Executor = (*CacheFirstExecutor)(nil)
var _ Executor = (*NetworkFirstExecutor)(nil)
var _ Executor = (*StaleWhileRevalidateExecutor)(nil)
