package replay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/joshdurbin/offgate/internal/cachestore"
	"github.com/joshdurbin/offgate/internal/config"
	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/metrics"
	"github.com/joshdurbin/offgate/internal/netstatus"
	"github.com/joshdurbin/offgate/internal/queue"
	"github.com/joshdurbin/offgate/internal/strategy"
)

// ErrSyncInProgress is returned when a drain is already running. Replay
// must never run twice concurrently: mutations replay in the order they
// were issued.
var ErrSyncInProgress = errors.New("sync already in progress")

// Replayer drains the offline mutation queue against the upstream when
// a sync is triggered.
type Replayer struct {
	queue   queue.Queue
	fetcher strategy.Fetcher
	store   cachestore.Store
	metrics *metrics.Metrics
	cfg     config.ReplayConfig

	mutex      sync.Mutex
	inProgress bool

	failures chan *domain.QueuedMutation
}

// New creates a new replayer
func New(q queue.Queue, fetcher strategy.Fetcher, store cachestore.Store, m *metrics.Metrics, cfg config.ReplayConfig) *Replayer {
	return &Replayer{
		queue:    q,
		fetcher:  fetcher,
		store:    store,
		metrics:  m,
		cfg:      cfg,
		failures: make(chan *domain.QueuedMutation, 16),
	}
}

// Failures returns the channel carrying mutations dropped after
// exhausting their retry budget. Subscribers get the full mutation so
// the loss can be surfaced instead of silently discarded.
func (r *Replayer) Failures() <-chan *domain.QueuedMutation {
	return r.failures
}

// Sync drains the queue sequentially in FIFO order. A failed entry does
// not abort the drain; later entries are still attempted in order.
func (r *Replayer) Sync(ctx context.Context) (*domain.SyncResult, error) {
	r.mutex.Lock()
	if r.inProgress {
		r.mutex.Unlock()
		return nil, ErrSyncInProgress
	}
	r.inProgress = true
	r.mutex.Unlock()

	defer func() {
		r.mutex.Lock()
		r.inProgress = false
		r.mutex.Unlock()
	}()

	mutations, err := r.queue.DequeueAll(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{}
	for _, m := range mutations {
		if ctx.Err() != nil {
			// A cancelled run leaves the remaining mutations queued
			// untouched; nothing is ever left half-replayed.
			break
		}

		result.Attempted++
		if r.replayOne(ctx, m) {
			result.Replayed++
			continue
		}

		dropped, err := r.recordFailure(ctx, m)
		if err != nil {
			log.Printf("[SYNC] failed to record failure for %s: %v", m.ID, err)
			continue
		}
		if dropped {
			result.Dropped++
		} else {
			result.Failed++
		}

		// Fixed delay between failed attempts, no backoff.
		if r.cfg.RetryDelay > 0 {
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	if depth, err := r.queue.Depth(ctx); err == nil {
		r.metrics.QueueDepth.Set(float64(depth))
	}

	log.Printf("[SYNC] drain complete: %d attempted, %d replayed, %d failed, %d dropped",
		result.Attempted, result.Replayed, result.Failed, result.Dropped)

	return result, nil
}

// replayOne delivers a single mutation. Delivery counts as success for
// any HTTP status: server-side errors are not network failures and
// retrying them would redeliver the same payload forever.
func (r *Replayer) replayOne(ctx context.Context, m *domain.QueuedMutation) bool {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.ReplayTimeout)
	defer cancel()

	snapshot, err := r.fetcher.Fetch(attemptCtx, m.Method, m.URL, m.Header, m.Body)
	if err != nil {
		log.Printf("[SYNC] replay failed for %s %s %s: %v", m.ID, m.Method, m.URL, err)
		return false
	}

	if snapshot.StatusCode >= 400 {
		log.Printf("[SYNC] replayed %s %s %s but upstream returned %d", m.ID, m.Method, m.URL, snapshot.StatusCode)
	}

	if err := r.queue.Remove(ctx, m.ID); err != nil && !errors.Is(err, queue.ErrNotFound) {
		log.Printf("[SYNC] failed to remove replayed mutation %s: %v", m.ID, err)
		return false
	}

	r.metrics.ReplayTotal.WithLabelValues("replayed").Inc()
	return true
}

// recordFailure bumps the retry count and, once the budget is
// exhausted, drops the mutation: removed from the queue, emitted on the
// failures channel, and snapshotted into the failed-requests partition
// for the admin API.
func (r *Replayer) recordFailure(ctx context.Context, m *domain.QueuedMutation) (dropped bool, err error) {
	count, err := r.queue.IncrementRetry(ctx, m.ID)
	if err != nil {
		return false, err
	}
	m.RetryCount = count

	if count <= m.MaxRetries {
		r.metrics.ReplayTotal.WithLabelValues("failed").Inc()
		return false, nil
	}

	log.Printf("[SYNC] dropping %s %s %s after %d attempts", m.ID, m.Method, m.URL, count)

	if err := r.queue.Remove(ctx, m.ID); err != nil && !errors.Is(err, queue.ErrNotFound) {
		return false, err
	}
	r.metrics.ReplayTotal.WithLabelValues("dropped").Inc()

	r.deadLetter(ctx, m)

	// Non-blocking emit; a full channel drops the signal but the
	// failed-requests partition still has the record.
	select {
	case r.failures <- m:
	default:
	}

	return true, nil
}

// deadLetter snapshots an exhausted mutation into the failed-requests
// partition so it can be inspected after the fact.
func (r *Replayer) deadLetter(ctx context.Context, m *domain.QueuedMutation) {
	body, err := json.Marshal(m)
	if err != nil {
		log.Printf("[SYNC] failed to encode dead letter %s: %v", m.ID, err)
		return
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	snapshot := &domain.ResponseSnapshot{
		Header:   header,
		Body:     body,
		StoredAt: time.Now(),
	}
	if err := r.store.Put(ctx, config.FailedRequestsPartition, m.ID, snapshot); err != nil {
		log.Printf("Warning: failed to store dead letter %s: %v", m.ID, err)
	}
}

// Watch triggers a drain on every offline-to-online transition until
// the context is cancelled.
func (r *Replayer) Watch(ctx context.Context, transitions <-chan netstatus.Transition) {
	go func() {
		for {
			select {
			case t, ok := <-transitions:
				if !ok {
					return
				}
				if !t.Online {
					continue
				}
				if _, err := r.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
					log.Printf("[SYNC] reconnect drain failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
