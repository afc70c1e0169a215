package ogmeta

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// defaultMaxTrackedHosts bounds breaker memory. Hostnames are user input,
	// so the least recently failing hosts are forgotten past this size.
	defaultMaxTrackedHosts = 10000

	// maxReportedCircuits caps the size of a stats snapshot.
	maxReportedCircuits = 50
)

// circuitState represents the state of a host's circuit
type circuitState int

const (
	stateClosed   circuitState = iota // Normal operation
	stateOpen                         // Host is failing, skip fetches
	stateHalfOpen                     // One probe allowed through
)

func (s circuitState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// hostCircuit is the failure history of one host.
type hostCircuit struct {
	lastFailure  time.Time
	lastStateLog time.Time
	failures     int
	state        circuitState
}

// circuitBreaker tracks consecutive page-fetch failures per hostname and stops
// fetching from hosts that keep failing.
type circuitBreaker struct {
	hosts            *simplelru.LRU[string, *hostCircuit]
	now              func() time.Time
	failureThreshold int
	openDuration     time.Duration
	mu               sync.Mutex
}

func newCircuitBreaker(failureThreshold int, openDuration time.Duration) *circuitBreaker {
	return newBoundedCircuitBreaker(failureThreshold, openDuration, defaultMaxTrackedHosts)
}

func newBoundedCircuitBreaker(failureThreshold int, openDuration time.Duration, maxHosts int) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if openDuration <= 0 {
		openDuration = 5 * time.Minute
	}
	if maxHosts <= 0 {
		maxHosts = defaultMaxTrackedHosts
	}

	// Only fails for a non-positive size, ruled out above.
	hosts, _ := simplelru.NewLRU[string, *hostCircuit](maxHosts, nil)

	return &circuitBreaker{
		hosts:            hosts,
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		now:              time.Now,
	}
}

// canAttempt reports whether a fetch from host should be tried.
// An open circuit moves to half-open once openDuration has passed.
func (cb *circuitBreaker) canAttempt(host string) (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	hc, ok := cb.hosts.Peek(host)
	if !ok || hc.state != stateOpen {
		return true, nil
	}

	if cb.now().Sub(hc.lastFailure) > cb.openDuration {
		hc.state = stateHalfOpen
		cb.logStateChange(host, hc, stateHalfOpen)
		return true, nil
	}

	nextRetry := hc.lastFailure.Add(cb.openDuration)
	return false, fmt.Errorf("%w: host %q (failures: %d, next retry: %s)",
		ErrCircuitOpen, host, hc.failures, nextRetry.Format("15:04:05"))
}

// recordSuccess resets failure tracking for host.
func (cb *circuitBreaker) recordSuccess(host string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	hc, ok := cb.hosts.Peek(host)
	if !ok {
		return
	}
	if hc.state != stateClosed {
		cb.logStateChange(host, hc, stateClosed)
	}
	cb.hosts.Remove(host)
}

// recordFailure counts a failed fetch and opens the circuit at the threshold.
// A failed half-open probe reopens the circuit immediately.
func (cb *circuitBreaker) recordFailure(host string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	hc, ok := cb.hosts.Get(host)
	if !ok {
		hc = &hostCircuit{}
		cb.hosts.Add(host, hc)
	}

	hc.failures++
	hc.lastFailure = cb.now()
	oldState := hc.state

	if hc.failures >= cb.failureThreshold || oldState == stateHalfOpen {
		hc.state = stateOpen
		if oldState != stateOpen {
			slog.Warn("[OG-META-CIRCUIT] opening circuit",
				"host", host,
				"failures", hc.failures,
				"error", err,
			)
			hc.lastStateLog = cb.now()
		}
		return
	}

	slog.Debug("[OG-META-CIRCUIT] fetch failure recorded",
		"host", host,
		"failures", hc.failures,
		"threshold", cb.failureThreshold,
		"error", err,
	)
}

// getState returns the current state of host
func (cb *circuitBreaker) getState(host string) circuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if hc, ok := cb.hosts.Peek(host); ok {
		return hc.state
	}
	return stateClosed
}

// trackedHosts returns how many hosts currently have failure history.
func (cb *circuitBreaker) trackedHosts() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.hosts.Len()
}

// logStateChange logs transitions at most once per minute per host
// (must be called with lock held)
func (cb *circuitBreaker) logStateChange(host string, hc *hostCircuit, newState circuitState) {
	if !hc.lastStateLog.IsZero() && cb.now().Sub(hc.lastStateLog) < time.Minute {
		return
	}

	slog.Info("[OG-META-CIRCUIT] circuit state changed",
		"host", host,
		"state", newState.String(),
	)
	hc.lastStateLog = cb.now()
}

// stats returns the hosts whose circuit is open or half-open, most recently
// failed first, capped at maxReportedCircuits. Closed hosts with a few
// failures are not reported.
func (cb *circuitBreaker) stats() map[string]CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	type entry struct {
		host  string
		stats CircuitStats
	}
	var tripped []entry
	for _, host := range cb.hosts.Keys() {
		hc, _ := cb.hosts.Peek(host)
		if hc == nil || hc.state == stateClosed {
			continue
		}
		tripped = append(tripped, entry{host, CircuitStats{
			State:       hc.state.String(),
			Failures:    hc.failures,
			LastFailure: hc.lastFailure,
		}})
	}

	sort.Slice(tripped, func(i, j int) bool {
		return tripped[i].stats.LastFailure.After(tripped[j].stats.LastFailure)
	})
	if len(tripped) > maxReportedCircuits {
		tripped = tripped[:maxReportedCircuits]
	}

	out := make(map[string]CircuitStats, len(tripped))
	for _, e := range tripped {
		out[e.host] = e.stats
	}
	return out
}

// CircuitStats describes the breaker state for one host.
type CircuitStats struct {
	LastFailure time.Time `json:"lastFailure"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
}
