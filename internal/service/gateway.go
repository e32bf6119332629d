package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/joshdurbin/offgate/internal/cachestore"
	"github.com/joshdurbin/offgate/internal/config"
	"github.com/joshdurbin/offgate/internal/datacache"
	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/metrics"
	"github.com/joshdurbin/offgate/internal/netstatus"
	"github.com/joshdurbin/offgate/internal/queue"
	"github.com/joshdurbin/offgate/internal/replay"
	"github.com/joshdurbin/offgate/internal/strategy"
)

// gateway implements the Gateway interface
type gateway struct {
	cfg        *config.Config
	store      cachestore.Store
	queue      queue.Queue
	observer   *netstatus.Observer
	dispatcher *strategy.Dispatcher
	executors  map[domain.Strategy]strategy.Executor
	fetcher    strategy.Fetcher
	replayer   *replay.Replayer
	records    *datacache.Cache
	metrics    *metrics.Metrics

	stateMutex sync.Mutex
	installing bool
	syncing    bool
	inFlight   int
}

// New creates a new offline-resilience gateway
func New(cfg *config.Config, store cachestore.Store, q queue.Queue, fetcher strategy.Fetcher,
	observer *netstatus.Observer, m *metrics.Metrics) Gateway {

	partitions := strategy.Partitions{
		Static:  cfg.StaticPartition(),
		Dynamic: cfg.DynamicPartition(),
	}

	return &gateway{
		cfg:        cfg,
		store:      store,
		queue:      q,
		observer:   observer,
		dispatcher: strategy.NewDispatcher(cfg.Routes),
		executors:  strategy.NewExecutors(store, fetcher, observer, m, partitions),
		fetcher:    fetcher,
		replayer:   replay.New(q, fetcher, store, m, cfg.Replay),
		records:    datacache.New(m),
		metrics:    m,
	}
}

// Install precaches the configured static assets into the static
// partition. Individual asset failures are logged and skipped so a
// single missing asset never blocks startup.
func (g *gateway) Install(ctx context.Context) error {
	g.setInstalling(true)
	defer g.setInstalling(false)

	for _, asset := range g.cfg.Routes.Precache {
		snapshot, err := g.fetcher.Fetch(ctx, http.MethodGet, asset, nil, nil)
		if err != nil {
			log.Printf("[INSTALL] failed to precache %s: %v", asset, err)
			continue
		}
		if snapshot.StatusCode != http.StatusOK {
			log.Printf("[INSTALL] skipping %s: upstream returned %d", asset, snapshot.StatusCode)
			continue
		}

		key := domain.RequestKey(http.MethodGet, asset)
		if err := g.store.Put(ctx, g.cfg.StaticPartition(), key, snapshot); err != nil {
			log.Printf("Warning: failed to precache %s: %v", asset, err)
		}
	}

	return nil
}

// Activate deletes any partition whose name is not part of the active
// cache version, completing a version rollover.
func (g *gateway) Activate(ctx context.Context) error {
	active := make(map[string]bool)
	for _, name := range g.cfg.ActivePartitions() {
		active[name] = true
	}

	partitions, err := g.store.Partitions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	for _, partition := range partitions {
		if active[partition] {
			continue
		}
		log.Printf("[ACTIVATE] dropping stale partition %s", partition)
		if err := g.store.DropPartition(ctx, partition); err != nil {
			return fmt.Errorf("failed to drop partition %s: %w", partition, err)
		}
	}

	return nil
}

// Start launches the background machinery
func (g *gateway) Start(ctx context.Context) error {
	if g.cfg.Probe.Interval > 0 {
		probeURL := g.cfg.Server.UpstreamURL + g.cfg.Probe.Path
		if err := g.observer.StartProbing(ctx, probeURL, g.cfg.Probe.Interval); err != nil {
			return fmt.Errorf("failed to start connectivity probing: %w", err)
		}
	}

	if err := g.records.StartSweeper(g.cfg.Cache.SweepInterval); err != nil {
		return fmt.Errorf("failed to start expiry sweeper: %w", err)
	}

	// Reconnection drains the queue.
	g.replayer.Watch(ctx, g.observer.Subscribe())

	// Terminal failures are surfaced, not silently discarded.
	go g.logTerminalFailures(ctx)

	if depth, err := g.queue.Depth(ctx); err == nil {
		g.metrics.QueueDepth.Set(float64(depth))
	}

	return nil
}

func (g *gateway) logTerminalFailures(ctx context.Context) {
	for {
		select {
		case m := <-g.replayer.Failures():
			log.Printf("[ERROR] mutation %s %s %s lost after %d attempts; dead letter stored",
				m.ID, m.Method, m.URL, m.RetryCount)
		case <-ctx.Done():
			return
		}
	}
}

// HandleFetch serves a GET request under its classified strategy
func (g *gateway) HandleFetch(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	g.fetchStarted()
	defer g.fetchFinished()

	s := g.dispatcher.Classify(req.URL.Path)
	return g.executors[s].Serve(ctx, req)
}

// HandleMutation forwards a write upstream or captures it for replay
func (g *gateway) HandleMutation(ctx context.Context, req *http.Request) (*domain.ResponseSnapshot, *domain.EnqueueResponse, error) {
	g.fetchStarted()
	defer g.fetchFinished()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	if g.observer.Online() {
		snapshot, err := g.fetcher.Fetch(ctx, req.Method, req.URL.RequestURI(), req.Header, body)
		if err == nil {
			g.observer.ReportSuccess()
			return snapshot, nil, nil
		}
		log.Printf("[FETCH] mutation %s %s failed, queueing: %v", req.Method, req.URL.Path, err)
		g.observer.ReportFailure()
		g.metrics.NetworkFailures.Inc()
	}

	queued, err := g.enqueue(ctx, req, body)
	if err != nil {
		return nil, nil, err
	}
	return nil, queued, nil
}

// enqueue captures a mutation for later replay. Headers are captured at
// enqueue time and never refreshed.
func (g *gateway) enqueue(ctx context.Context, req *http.Request, body []byte) (*domain.EnqueueResponse, error) {
	now := time.Now()
	mutation := &domain.QueuedMutation{
		Method:     req.Method,
		URL:        req.URL.RequestURI(),
		Header:     req.Header.Clone(),
		Body:       body,
		CreatedAt:  now,
		MaxRetries: g.cfg.Replay.MaxRetries,
	}

	id, err := g.queue.Enqueue(ctx, mutation)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	g.metrics.EnqueuedTotal.Inc()
	if depth, err := g.queue.Depth(ctx); err == nil {
		g.metrics.QueueDepth.Set(float64(depth))
	}

	log.Printf("[QUEUE] captured %s %s %s for replay", id, mutation.Method, mutation.URL)

	return &domain.EnqueueResponse{
		ID:       id,
		Queued:   true,
		QueuedAt: now,
	}, nil
}

// Forward passes a request through to the upstream unmodified
func (g *gateway) Forward(ctx context.Context, req *http.Request) *domain.ResponseSnapshot {
	g.fetchStarted()
	defer g.fetchFinished()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}

	snapshot, err := g.fetcher.Fetch(ctx, req.Method, req.URL.RequestURI(), req.Header, body)
	if err != nil {
		log.Printf("[FETCH] passthrough %s %s failed: %v", req.Method, req.URL.Path, err)
		g.observer.ReportFailure()
		g.metrics.NetworkFailures.Inc()
		g.metrics.OfflineServed.Inc()
		return strategy.NewOfflineResponse()
	}
	g.observer.ReportSuccess()

	return snapshot
}

// TriggerSync drains the mutation queue
func (g *gateway) TriggerSync(ctx context.Context) (*domain.SyncResult, error) {
	g.setSyncing(true)
	defer g.setSyncing(false)

	return g.replayer.Sync(ctx)
}

// ListQueued returns all pending mutations in replay order
func (g *gateway) ListQueued(ctx context.Context) ([]*domain.QueuedMutation, error) {
	return g.queue.DequeueAll(ctx)
}

// RemoveQueued drops a pending mutation without replaying it
func (g *gateway) RemoveQueued(ctx context.Context, id string) error {
	if err := g.queue.Remove(ctx, id); err != nil {
		return err
	}
	if depth, err := g.queue.Depth(ctx); err == nil {
		g.metrics.QueueDepth.Set(float64(depth))
	}
	return nil
}

// Status reports the gateway lifecycle state, connectivity and queue depth
func (g *gateway) Status(ctx context.Context) (*domain.StatusResponse, error) {
	depth, err := g.queue.Depth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}

	return &domain.StatusResponse{
		State:      g.state(),
		Network:    g.observer.Status(),
		QueueDepth: depth,
	}, nil
}

// Records returns the TTL data cache
func (g *gateway) Records() *datacache.Cache {
	return g.records
}

// Close closes the gateway and its dependencies
func (g *gateway) Close() error {
	if err := g.observer.StopProbing(); err != nil {
		return fmt.Errorf("failed to stop probing: %w", err)
	}
	if err := g.records.Close(); err != nil {
		return fmt.Errorf("failed to close data cache: %w", err)
	}
	if err := g.queue.Close(); err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}
	if err := g.store.Close(); err != nil {
		return fmt.Errorf("failed to close cache store: %w", err)
	}
	return nil
}

func (g *gateway) state() domain.GatewayState {
	g.stateMutex.Lock()
	defer g.stateMutex.Unlock()

	switch {
	case g.installing:
		return domain.StateInstalling
	case g.syncing:
		return domain.StateSyncing
	case g.inFlight > 0:
		return domain.StateHandlingFetch
	default:
		return domain.StateIdle
	}
}

func (g *gateway) setInstalling(v bool) {
	g.stateMutex.Lock()
	defer g.stateMutex.Unlock()
	g.installing = v
}

func (g *gateway) setSyncing(v bool) {
	g.stateMutex.Lock()
	defer g.stateMutex.Unlock()
	g.syncing = v
}

func (g *gateway) fetchStarted() {
	g.stateMutex.Lock()
	defer g.stateMutex.Unlock()
	g.inFlight++
}

func (g *gateway) fetchFinished() {
	g.stateMutex.Lock()
	defer g.stateMutex.Unlock()
	g.inFlight--
}

// Ensure gateway implements the Gateway interface
var _ Gateway = (*gateway)(nil)
