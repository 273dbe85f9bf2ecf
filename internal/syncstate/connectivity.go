package syncstate

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gardenproof/fieldsync/internal/logging"
)

// Monitor is the thin adapter between a reachability probe and the
// container's HandleOnline/HandleOffline transitions. The transitions stay
// plain methods on the container so they can be tested without a Monitor.
type Monitor struct {
	container *Container
	probeURL  string
	interval  time.Duration
	client    *http.Client
	log       *zap.SugaredLogger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a connectivity monitor. With an empty probeURL the
// monitor leaves the container at its default ("online"): the engine must
// behave correctly even when no connectivity signal exists.
func NewMonitor(container *Container, probeURL string, interval time.Duration, log *zap.SugaredLogger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Monitor{
		container: container,
		probeURL:  probeURL,
		interval:  interval,
		client:    &http.Client{Timeout: 5 * time.Second},
		stopCh:    make(chan struct{}),
		log:       log,
	}
}

// Start begins probing in the background. Calling Start on a monitor with no
// probe URL is a no-op.
func (m *Monitor) Start() {
	if m.probeURL == "" {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.probe()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.probe()
			}
		}
	}()
}

// Stop halts probing. Safe to call more than once, and safe to call on a
// monitor that was never started.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

// probe issues one reachability check. Any HTTP response, regardless of
// status code, proves reachability; only a transport error means offline.
func (m *Monitor) probe() {
	resp, err := m.client.Head(m.probeURL)
	if err != nil {
		m.log.Debugw("connectivity probe failed", "probe_url", m.probeURL, "error", err)
		m.container.HandleOffline()
		return
	}
	resp.Body.Close()
	m.container.HandleOnline()
}
