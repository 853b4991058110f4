package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

const (
	// DefaultHistorySize caps the resolved history.
	DefaultHistorySize = 200
	// DefaultHistoryRetention drops resolved entries older than this.
	DefaultHistoryRetention = 30 * time.Minute
)

// ErrNotFound is returned for ids that are not in the active view.
var ErrNotFound = errors.New("alarm not found")

// Changes describes what one reconciliation did.
type Changes struct {
	// Raised are alarms seen for the first time.
	Raised []alarm.Alarm
	// Carried are alarms still present since the previous poll.
	Carried []alarm.Alarm
	// Resolved are alarms that disappeared.
	Resolved []alarm.Alarm
}

// Empty reports whether nothing was raised or resolved.
func (c Changes) Empty() bool {
	return len(c.Raised) == 0 && len(c.Resolved) == 0
}

// ResolvedAlarm is a history entry.
type ResolvedAlarm struct {
	alarm.Alarm

	// ResolvedAt is when the alarm left the active view.
	ResolvedAt time.Time `json:"resolved_at" msgpack:"resolved_at"`
	// Manual is true when an operator resolved it.
	Manual bool `json:"manual" msgpack:"manual"`
}

// Tracker holds the lifecycle state. It is safe for concurrent use.
type Tracker struct {
	// backend receives operator actions.
	backend Backend
	// historySize caps resolved entries.
	historySize int
	// retention drops old resolved entries.
	retention time.Duration
	// now stamps resolutions.
	now func() time.Time

	// mu guards the fields below.
	mu sync.RWMutex
	// order is the active view in reconciliation order.
	order []string
	// active maps id to the tracked alarm.
	active map[string]*alarm.Alarm
	// resolved is the history, most recent first.
	resolved []ResolvedAlarm
}

// Option configures the tracker.
type Option func(*Tracker)

// WithBackend replaces the memory backend.
func WithBackend(b Backend) Option {
	return func(t *Tracker) {
		if b != nil {
			t.backend = b
		}
	}
}

// WithHistory overrides the resolved history bounds.
func WithHistory(size int, retention time.Duration) Option {
	return func(t *Tracker) {
		if size > 0 {
			t.historySize = size
		}

		if retention > 0 {
			t.retention = retention
		}
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		backend:     NewMemoryBackend(),
		historySize: DefaultHistorySize,
		retention:   DefaultHistoryRetention,
		now:         time.Now,
		active:      make(map[string]*alarm.Alarm),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Reconcile replaces the active view with fetched.
// Ids still present keep their acknowledged flag, new ids start active and
// unacknowledged, missing ids move to the resolved history.
func (t *Tracker) Reconcile(_ context.Context, fetched []alarm.Alarm) Changes {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		changes Changes
		now     = t.now()
		next    = make(map[string]*alarm.Alarm, len(fetched))
		order   = make([]string, 0, len(fetched))
	)

	for _, f := range fetched {
		if _, dup := next[f.ID]; dup {
			continue
		}

		tracked := f

		if previous, ok := t.active[f.ID]; ok {
			tracked.Acknowledged = previous.Acknowledged
			changes.Carried = append(changes.Carried, tracked)
		} else {
			tracked.Acknowledged = false
			changes.Raised = append(changes.Raised, tracked)
		}

		tracked.State = stateOf(tracked.Acknowledged)
		next[f.ID] = &tracked
		order = append(order, f.ID)
	}

	for _, id := range t.order {
		if _, still := next[id]; still {
			continue
		}

		gone := *t.active[id]
		gone.State = alarm.StateResolved
		changes.Resolved = append(changes.Resolved, gone)
		t.pushResolved(ResolvedAlarm{Alarm: gone, ResolvedAt: now})
	}

	t.active = next
	t.order = order
	t.pruneResolved(now)

	return changes
}

// Acknowledge marks an active alarm acknowledged. It is idempotent.
func (t *Tracker) Acknowledge(ctx context.Context, id string) (alarm.Alarm, error) {
	if _, err := t.Get(id); err != nil {
		return alarm.Alarm{}, err
	}

	if err := t.backend.Acknowledge(ctx, id); err != nil {
		return alarm.Alarm{}, fmt.Errorf("acknowledge %s: %w", id, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tracked, ok := t.active[id]
	if !ok {
		return alarm.Alarm{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	tracked.Acknowledged = true
	tracked.State = alarm.StateAcknowledged

	return *tracked, nil
}

// Resolve removes an alarm from the active view by operator action.
// Resolving an id that is already resolved succeeds.
func (t *Tracker) Resolve(ctx context.Context, id string) (alarm.Alarm, error) {
	if _, err := t.Get(id); err != nil {
		if resolved, ok := t.findResolved(id); ok {
			return resolved, nil
		}

		return alarm.Alarm{}, err
	}

	if err := t.backend.Resolve(ctx, id); err != nil {
		return alarm.Alarm{}, fmt.Errorf("resolve %s: %w", id, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tracked, ok := t.active[id]
	if !ok {
		return alarm.Alarm{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	gone := *tracked
	gone.State = alarm.StateResolved

	delete(t.active, id)

	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}

	t.pushResolved(ResolvedAlarm{Alarm: gone, ResolvedAt: t.now(), Manual: true})

	return gone, nil
}

// Active returns a snapshot of the active view in reconciliation order.
func (t *Tracker) Active() []alarm.Alarm {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]alarm.Alarm, 0, len(t.order))
	for _, id := range t.order {
		result = append(result, *t.active[id])
	}

	return result
}

// Resolved returns the resolved history, most recent first.
func (t *Tracker) Resolved() []ResolvedAlarm {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneResolved(t.now())

	result := make([]ResolvedAlarm, len(t.resolved))
	copy(result, t.resolved)

	return result
}

// Get returns one active alarm.
func (t *Tracker) Get(id string) (alarm.Alarm, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tracked, ok := t.active[id]
	if !ok {
		return alarm.Alarm{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return *tracked, nil
}

func (t *Tracker) findResolved(id string) (alarm.Alarm, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.resolved {
		if r.ID == id {
			return r.Alarm, true
		}
	}

	return alarm.Alarm{}, false
}

// pushResolved prepends an entry and enforces the size cap. Callers hold mu.
func (t *Tracker) pushResolved(entry ResolvedAlarm) {
	t.resolved = append([]ResolvedAlarm{entry}, t.resolved...)
	if len(t.resolved) > t.historySize {
		t.resolved = t.resolved[:t.historySize]
	}
}

// pruneResolved drops entries past retention. Callers hold mu.
func (t *Tracker) pruneResolved(now time.Time) {
	cutoff := now.Add(-t.retention)

	for i, r := range t.resolved {
		if r.ResolvedAt.Before(cutoff) {
			t.resolved = t.resolved[:i]

			return
		}
	}
}

func stateOf(acknowledged bool) alarm.State {
	if acknowledged {
		return alarm.StateAcknowledged
	}

	return alarm.StateActive
}
