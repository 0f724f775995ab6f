package service

import (
	"context"
	"sync"
	"time"

	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/pkg/metrics"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

// ConnectionState is the result of the last connectivity probe.
type ConnectionState struct {
	Backend    storage.Kind `json:"backend"`
	Configured bool         `json:"configured"`
	Reachable  bool         `json:"reachable"`
	LastError  string       `json:"lastError,omitempty"`
	CheckedAt  time.Time    `json:"checkedAt"`
}

// Banner reports whether the connection banner should be shown.
func (s ConnectionState) Banner() bool {
	return s.Configured && !s.Reachable
}

// Connection probes the active remote backend. The same probe runs at
// startup, on a timer and on user retry.
type Connection struct {
	selector *storage.Selector
	timeout  time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	state ConnectionState
}

func NewConnection(selector *storage.Selector, timeout time.Duration) *Connection {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Connection{selector: selector, timeout: timeout, now: time.Now}
}

// Probe loads everything from the active backend under the probe timeout.
func (c *Connection) Probe(ctx context.Context) ConnectionState {
	state := ConnectionState{Backend: storage.KindLocal, CheckedAt: c.now().UTC()}

	if active := c.selector.Active(); active != nil {
		state.Backend = active.Kind()
		state.Configured = true

		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		_, err := active.LoadAll(probeCtx)
		cancel()

		state.Reachable = err == nil
		if err != nil {
			state.LastError = err.Error()
			logger.Warn(ctx, "backend unreachable", "backend", state.Backend, "error", err)
		}
	}

	if state.Reachable {
		metrics.BackendReachable.Set(1)
	} else {
		metrics.BackendReachable.Set(0)
	}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	return state
}

// Retry re-runs the startup probe.
func (c *Connection) Retry(ctx context.Context) ConnectionState {
	return c.Probe(ctx)
}

// State returns the last probe result without probing.
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run probes immediately and then every interval until ctx is done.
func (c *Connection) Run(ctx context.Context, interval time.Duration) {
	c.Probe(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}
