package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

// Event types published over the lifetime of one invocation.
const (
	EventInvocationStarted   = "INVOCATION_STARTED"
	EventPolicyDenied        = "POLICY_DENIED"
	EventNodesEmitted        = "NODES_EMITTED"
	EventAnalysisComplete    = "ANALYSIS_COMPLETE"
	EventPersistenceSkipped  = "PERSISTENCE_SKIPPED"
	EventInvocationCompleted = "INVOCATION_COMPLETED"
	EventInvocationFailed    = "INVOCATION_FAILED"
)

// Event is a minimal invocation lifecycle event used by SSE and WebSocket.
// Streams are keyed by the caller's execution ref; the decomposition id is
// attached once the engine has assigned one.
type Event struct {
	ExecutionRef    string    `json:"execution_ref"`
	Type            string    `json:"type"`
	AgentID         string    `json:"agent_id,omitempty"`
	DecompositionID string    `json:"decomposition_id,omitempty"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Seq             uint64    `json:"seq"`
}

// Manager provides in-memory pub/sub for invocation events.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	// per-ref ring buffer for replay and Last-Event-ID support
	history  map[string]*ring
	capacity int
}

var (
	defaultMgr      *Manager
	once            sync.Once
	defaultCapacity = 256
)

// Get returns the global streaming manager, initializing it lazily.
func Get() *Manager {
	once.Do(func() {
		defaultMgr = &Manager{
			subscribers: make(map[string]map[chan Event]struct{}),
			history:     make(map[string]*ring),
			capacity:    defaultCapacity,
		}
	})
	return defaultMgr
}

// Configure sets default capacity for new rings. Safe to call anytime;
// existing rings keep their size.
func Configure(capacity int) {
	if capacity <= 0 {
		return
	}
	defaultCapacity = capacity
	if defaultMgr != nil {
		defaultMgr.mu.Lock()
		defaultMgr.capacity = capacity
		defaultMgr.mu.Unlock()
	}
}

// Subscribe adds a subscriber channel for an execution ref; caller must
// drain and call Unsubscribe.
func (m *Manager) Subscribe(executionRef string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[executionRef]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[executionRef] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(executionRef string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[executionRef]; ok {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, executionRef)
		}
	}
}

// Publish sends an event to all subscribers of the execution ref
// (non-blocking; slow subscribers lose events rather than block the
// invocation path).
func (m *Manager) Publish(executionRef string, evt Event) {
	evt.ExecutionRef = executionRef
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	rg := m.history[executionRef]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[executionRef] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	// Fan out under the lock so a concurrent Unsubscribe cannot close a
	// channel mid-send; the sends never block, so holding it is cheap.
	for ch := range m.subscribers[executionRef] {
		select {
		case ch <- evt:
		default:
			metrics.StreamingEventsDropped.Inc()
		}
	}
	m.mu.Unlock()
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// ReplaySince returns events with Seq > since (best-effort within ring
// capacity).
func (m *Manager) ReplaySince(executionRef string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[executionRef]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

// Seq starts at 1 so Last-Event-ID=0 always means "from the beginning".
func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.start + i) % len(r.buf)
		ev := r.buf[idx]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
