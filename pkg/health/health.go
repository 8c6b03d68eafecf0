// Package health serves liveness and readiness probes for the API server.
//
// Probes are evaluated in the background on a shared ticker. A probe flips
// to unhealthy after FailureThreshold consecutive failures and back to
// healthy after SuccessThreshold consecutive successes, so a single slow
// dependency round-trip does not take the instance out of rotation.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Default probe thresholds.
const (
	FailureThreshold = 3
	SuccessThreshold = 1
)

// CheckFunc reports whether a component is healthy.
type CheckFunc func(ctx context.Context) error

type kind int

const (
	liveness kind = iota
	readiness
)

type probe struct {
	name    string
	kind    kind
	timeout time.Duration
	check   CheckFunc

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	oks     int
}

// evaluate runs the check once and applies the thresholds.
func (p *probe) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= FailureThreshold {
			p.healthy = false
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= SuccessThreshold {
		p.healthy = true
	}
}

// failure returns the failure reason, or "" when the probe is healthy.
func (p *probe) failure() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.healthy:
		return ""
	case p.lastErr != nil:
		return p.lastErr.Error()
	default:
		return "check is unhealthy"
	}
}

// Health tracks probe state. Instances start not ready.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Health with no probes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, liveness, timeout, check)
}

// AddReadinessCheck registers a probe that decides whether the instance
// should receive traffic.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.add(name, readiness, timeout, check)
}

func (h *Health) add(name string, k kind, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, &probe{
		name:    name,
		kind:    k,
		timeout: timeout,
		check:   check,
		healthy: true,
	})
}

// Start evaluates every probe immediately and then once per interval until
// Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			evaluateAll(ctx, probes)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func evaluateAll(ctx context.Context, probes []*probe) {
	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.evaluate(ctx)
		}()
	}
	wg.Wait()
}

// Stop halts background evaluation and waits for the running round. It is
// safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetReady marks the instance ready or draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the instance is marked ready and every readiness
// probe is healthy.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(readiness)) == 0
}

func (h *Health) failures(k kind) map[string]string {
	h.mu.RLock()
	probes := append([]*probe(nil), h.probes...)
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range probes {
		if p.kind != k {
			continue
		}
		if reason := p.failure(); reason != "" {
			out[p.name] = reason
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(liveness))
}

// ReadyEndpoint serves /readyz. A draining instance reports the synthetic
// "_readiness" failure.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus responds {"status":"ok"} or 503 {"status":"unhealthy","checks":{...}}.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failures) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(names) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
