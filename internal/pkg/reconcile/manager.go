package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// DefaultInterval is how often the scheduler polls the invoicing service.
const DefaultInterval = 2 * time.Minute

// Manager runs the reconciliation loop on a fixed interval. Only one pass
// runs at a time; a tick that fires while the previous pass is still working
// is dropped, not queued.
type Manager struct {
	reconciler *Reconciler
	interval   time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	passMu sync.Mutex // held for the duration of one pass
}

// NewManager wires a reconciler to a polling interval. A non-positive
// interval falls back to DefaultInterval.
func NewManager(r *Reconciler, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		reconciler: r,
		interval:   interval,
	}
}

// Start launches the polling worker. Calling Start on a running manager is a
// no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true

	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.worker()

	log.Infof("[Reconcile Manager] Started (interval: %s)", m.interval)
}

// Stop halts the worker and waits for an in-flight pass to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.ticker.Stop()
	close(m.stopCh)
	m.running = false

	m.wg.Wait()
	log.Info("[Reconcile Manager] Stopped")
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[Reconcile Manager] Worker stopping")
			return
		case <-m.ticker.C:
			m.TryRun(context.Background())
		}
	}
}

// TryRun executes one reconciliation pass unless one is already in flight, in
// which case it reports false and does nothing.
func (m *Manager) TryRun(ctx context.Context) (Stats, bool) {
	if !m.passMu.TryLock() {
		log.Debug("[Reconcile Manager] Previous pass still running, skipping tick")
		return Stats{}, false
	}
	defer m.passMu.Unlock()

	return m.reconciler.RunOnce(ctx), true
}
