package alarms

import (
	"sync"

	"github.com/ocloudstack/ocloudstack/internal/store"
)

// Key identifies one alarm condition on one resource. Condition is the
// metric name for threshold alarms ("cpu_usage") or a condition tag for
// boolean checks ("process_not_found", "resource_state_change").
//
// At most one open alarm exists per Key at any time; the Registry enforces
// this deduplication contract.
type Key struct {
	ResourceID string
	Condition  string
}

// Registry is the in-memory index of currently-open alarms, keyed by
// (resource, condition). The threshold monitor is its only writer. It is
// rebuildable from the alarm store's open alarms, so a restart loses no
// deduplication state.
type Registry struct {
	mu   sync.Mutex
	open map[Key]string // open alarm id per key
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[Key]string)}
}

// Rebuild replaces the registry contents with the given open alarms.
// Alarms without a condition (manually created, not keyed) are skipped.
func (r *Registry) Rebuild(open []store.Alarm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = make(map[Key]string, len(open))
	for _, a := range open {
		if a.Condition == "" {
			continue
		}
		r.open[Key{ResourceID: a.ResourceID, Condition: a.Condition}] = a.AlarmID
	}
}

// Lookup returns the open alarm id for key, if any.
func (r *Registry) Lookup(key Key) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.open[key]
	return id, ok
}

// Set records alarmID as the open alarm for key.
func (r *Registry) Set(key Key, alarmID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[key] = alarmID
}

// Remove drops the entry for key. Removing an absent key is a no-op.
func (r *Registry) Remove(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, key)
}

// Len returns the number of open keys.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
