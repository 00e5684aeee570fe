package state

import (
	"sort"
	"sync"
	"time"
)

// OperationStatus is the lifecycle state of one AI operation
type OperationStatus string

const (
	StatusIdle    OperationStatus = "idle"
	StatusLoading OperationStatus = "loading"
	StatusSuccess OperationStatus = "success"
	StatusError   OperationStatus = "error"
)

// OperationState is the latest status of an entity. Each transition overwrites it.
type OperationState struct {
	Status    OperationStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Operations tracks the latest OperationState per entity id
type Operations struct {
	mu     sync.RWMutex
	states map[string]OperationState
	now    func() time.Time
}

// NewOperations creates an empty registry
func NewOperations(opts ...StoreOption) *Operations {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Operations{
		states: make(map[string]OperationState),
		now:    o.now,
	}
}

func (o *Operations) set(id string, status OperationStatus, errMsg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[id] = OperationState{Status: status, Error: errMsg, Timestamp: o.now()}
}

// Start marks id as loading
func (o *Operations) Start(id string) { o.set(id, StatusLoading, "") }

// Succeed marks id as done
func (o *Operations) Succeed(id string) { o.set(id, StatusSuccess, "") }

// Fail marks id as failed with err's message
func (o *Operations) Fail(id string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	o.set(id, StatusError, msg)
}

// Get returns the state of id; unknown ids are idle
func (o *Operations) Get(id string) OperationState {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if st, ok := o.states[id]; ok {
		return st
	}
	return OperationState{Status: StatusIdle}
}

// Name labels the registry for retention metrics
func (o *Operations) Name() string { return "operations" }

// Len returns the number of tracked entities
func (o *Operations) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.states)
}

// PruneOlderThan forgets entities whose last transition is older than maxAge.
// Loading entries are kept whatever their age.
func (o *Operations) PruneOlderThan(maxAge time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-maxAge)
	removed := 0
	for id, st := range o.states {
		if st.Status != StatusLoading && st.Timestamp.Before(cutoff) {
			delete(o.states, id)
			removed++
		}
	}
	return removed
}

// LimitCount forgets the least recently updated entities until at most max remain
func (o *Operations) LimitCount(max int) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if max < 0 {
		max = 0
	}
	excess := len(o.states) - max
	if excess <= 0 {
		return 0
	}

	ids := make([]string, 0, len(o.states))
	for id := range o.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := o.states[ids[i]].Timestamp, o.states[ids[j]].Timestamp
		if !a.Equal(b) {
			return a.Before(b)
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids[:excess] {
		delete(o.states, id)
	}
	return excess
}
