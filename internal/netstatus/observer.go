package netstatus

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/joshdurbin/offgate/internal/domain"
)

// Transition is delivered to subscribers whenever connectivity flips.
type Transition struct {
	Online bool
	At     time.Time
}

// Observer tracks upstream connectivity. It starts with an optimistic
// "online" default and is updated either by executors reporting fetch
// outcomes or by the periodic probe loop.
type Observer struct {
	mutex       sync.RWMutex
	status      domain.NetworkStatus
	subscribers []chan Transition

	probeStop    chan struct{}
	probeRunning bool
}

// New creates a new observer in the optimistic online state
func New() *Observer {
	return &Observer{
		status: domain.NetworkStatus{
			IsOnline:       true,
			IsConnected:    true,
			ConnectionType: "unknown",
			ChangedAt:      time.Now(),
		},
	}
}

// Status returns a copy of the current network status
func (o *Observer) Status() domain.NetworkStatus {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.status
}

// Online reports whether the upstream is currently considered reachable
func (o *Observer) Online() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.status.IsOnline
}

// SetOnline records a connectivity state and notifies subscribers when
// the state actually changed.
func (o *Observer) SetOnline(online bool) {
	o.mutex.Lock()

	if o.status.IsOnline == online {
		o.mutex.Unlock()
		return
	}

	now := time.Now()
	o.status.IsOnline = online
	o.status.IsConnected = online
	o.status.ChangedAt = now

	subscribers := make([]chan Transition, len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.mutex.Unlock()

	if online {
		log.Printf("[NET] connectivity restored")
	} else {
		log.Printf("[NET] connectivity lost")
	}

	t := Transition{Online: online, At: now}
	for _, ch := range subscribers {
		// Non-blocking send; a slow subscriber misses intermediate flips
		// but always observes the latest state via Status().
		select {
		case ch <- t:
		default:
		}
	}
}

// ReportFailure marks the upstream offline based on an observed fetch
// failure.
func (o *Observer) ReportFailure() {
	o.SetOnline(false)
}

// ReportSuccess marks the upstream online based on an observed
// successful fetch.
func (o *Observer) ReportSuccess() {
	o.SetOnline(true)
}

// Subscribe returns a channel receiving connectivity transitions
func (o *Observer) Subscribe() <-chan Transition {
	ch := make(chan Transition, 4)

	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.subscribers = append(o.subscribers, ch)

	return ch
}

// StartProbing starts a background loop that HEADs probeURL every
// interval and feeds the result into SetOnline.
func (o *Observer) StartProbing(ctx context.Context, probeURL string, interval time.Duration) error {
	o.mutex.Lock()
	if o.probeRunning {
		o.mutex.Unlock()
		return nil // Already running
	}
	o.probeRunning = true
	o.probeStop = make(chan struct{})
	stop := o.probeStop
	o.mutex.Unlock()

	go o.probeLoop(ctx, probeURL, interval, stop)
	return nil
}

// StopProbing stops the background probe loop
func (o *Observer) StopProbing() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.probeRunning {
		return nil
	}

	o.probeRunning = false
	close(o.probeStop)
	return nil
}

func (o *Observer) probeLoop(ctx context.Context, probeURL string, interval time.Duration, stop chan struct{}) {
	client := &http.Client{Timeout: 5 * time.Second}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.probe(ctx, client, probeURL)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Observer) probe(ctx context.Context, client *http.Client, probeURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		log.Printf("[NET] invalid probe URL %s: %v", probeURL, err)
		return
	}

	resp, err := client.Do(req)
	if err != nil {
		o.SetOnline(false)
		return
	}
	resp.Body.Close()

	// Any HTTP response, error status included, proves reachability.
	o.SetOnline(true)
}
