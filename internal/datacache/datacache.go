package datacache

import (
	"log"
	"sync"
	"time"

	"github.com/joshdurbin/offgate/internal/domain"
	"github.com/joshdurbin/offgate/internal/metrics"
)

// Cache is a TTL-bounded client read cache, independent of the HTTP
// response cache store. Expiry is a lazy+periodic hybrid: Get may
// return an expired-but-not-yet-swept record; callers needing strict
// TTL semantics use GetFresh.
type Cache struct {
	records  map[string]*domain.CachedDataRecord
	mutex    sync.RWMutex
	metrics  *metrics.Metrics
	stopChan chan struct{}
	running  bool
	// now is swappable for boundary tests
	now func() time.Time
}

// New creates a new TTL data cache
func New(m *metrics.Metrics) *Cache {
	return &Cache{
		records:  make(map[string]*domain.CachedDataRecord),
		metrics:  m,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Set creates or overwrites a record with the given TTL
func (c *Cache) Set(key string, data []byte, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.records[key] = &domain.CachedDataRecord{
		Key:       key,
		Data:      append([]byte(nil), data...),
		Timestamp: c.now(),
		TTL:       ttl,
	}
}

// Get retrieves a record by key. An expired record is still returned
// until the sweeper removes it.
func (c *Cache) Get(key string) (*domain.CachedDataRecord, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	record, exists := c.records[key]
	if !exists {
		return nil, false
	}

	return copyRecord(record), true
}

// GetFresh retrieves a record only if its TTL has not elapsed
func (c *Cache) GetFresh(key string) (*domain.CachedDataRecord, bool) {
	record, exists := c.Get(key)
	if !exists || record.Expired(c.now()) {
		return nil, false
	}
	return record, true
}

// Delete removes a record by key
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.records, key)
}

// Keys returns all record keys, expired ones included
func (c *Cache) Keys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.records))
	for key := range c.records {
		keys = append(keys, key)
	}
	return keys
}

// Sweep removes every expired record and returns how many were removed
func (c *Cache) Sweep() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, record := range c.records {
		if record.Expired(now) {
			delete(c.records, key)
			removed++
		}
	}

	if removed > 0 {
		c.metrics.SweepRemoved.Add(float64(removed))
	}

	return removed
}

// StartSweeper starts the periodic sweep loop with the given interval
func (c *Cache) StartSweeper(interval time.Duration) error {
	c.mutex.Lock()
	if c.running {
		c.mutex.Unlock()
		return nil // Already running
	}
	c.running = true
	c.mutex.Unlock()

	go c.sweepLoop(interval)
	return nil
}

// StopSweeper stops the periodic sweep loop
func (c *Cache) StopSweeper() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.running {
		return nil
	}

	c.running = false
	close(c.stopChan)

	// Create new channel for potential restart
	c.stopChan = make(chan struct{})
	return nil
}

// sweepLoop runs the periodic sweep
func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Get a copy of stopChan to avoid race condition
	c.mutex.RLock()
	stopChan := c.stopChan
	c.mutex.RUnlock()

	for {
		select {
		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				log.Printf("[SWEEP] removed %d expired records", removed)
			}
		case <-stopChan:
			return
		}
	}
}

// Close stops the sweeper
func (c *Cache) Close() error {
	return c.StopSweeper()
}

func copyRecord(r *domain.CachedDataRecord) *domain.CachedDataRecord {
	return &domain.CachedDataRecord{
		Key:       r.Key,
		Data:      append([]byte(nil), r.Data...),
		Timestamp: r.Timestamp,
		TTL:       r.TTL,
	}
}
