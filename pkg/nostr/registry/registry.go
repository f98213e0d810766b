// Package registry tracks client-side subscriptions and routes incoming
// events to their callbacks. It is the local counterpart of the relay-side
// REQ bookkeeping: one registration can span any number of relays, events
// from all of them are deduplicated per registration and delivered in
// arrival order.
package registry

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, _ = slog.New(os.Stderr)

// EventHandler receives one matching event together with the URL of the
// relay it arrived from.
type EventHandler func(ev *event.T, sourceRelay string)

// EoseHandler is called at most once per registration when the stored
// events have been exhausted.
type EoseHandler func()

type registration struct {
	id      string
	filters filters.T
	onEvent EventHandler
	onEose  EoseHandler

	active atomic.Bool
	eosed  atomic.Bool

	// serializes delivery so one registration's handler never runs
	// concurrently with itself and events arrive in dispatch order
	deliverMutex sync.Mutex
	seen         *xsync.MapOf[string, struct{}]
}

// T is the subscription registry.
type T struct {
	registrations *xsync.MapOf[string, *registration]
	serial        atomic.Int64
}

func New() *T {
	return &T{registrations: xsync.NewMapOf[*registration]()}
}

// Register adds a subscription and returns its id. The id is usable
// immediately: events dispatched after Register returns can be delivered to
// the handlers.
func (t *T) Register(ff filters.T, onEvent EventHandler,
	onEose EoseHandler) (id string) {

	id = strconv.FormatInt(t.serial.Add(1), 10)
	reg := &registration{
		id:      id,
		filters: ff.Clone(),
		onEvent: onEvent,
		onEose:  onEose,
		seen:    xsync.NewMapOf[struct{}](),
	}
	reg.active.Store(true)
	t.registrations.Store(id, reg)
	return
}

// Cancel deactivates a registration. After Cancel returns no new deliveries
// begin for it; canceling an unknown id does nothing.
func (t *T) Cancel(id string) {
	reg, ok := t.registrations.LoadAndDelete(id)
	if !ok {
		log.D.F("cancel of unknown subscription '%s'", id)
		return
	}
	reg.active.Store(false)
}

// Clear cancels every registration at once, as on service teardown. After
// Clear returns no handler is invoked again; previously issued ids become
// unknown.
func (t *T) Clear() {
	t.registrations.Range(func(id string, reg *registration) bool {
		reg.active.Store(false)
		t.registrations.Delete(id)
		return true
	})
}

// Filters returns the filters of a registration, or false when the id is
// unknown.
func (t *T) Filters(id string) (filters.T, bool) {
	reg, ok := t.registrations.Load(id)
	if !ok {
		return nil, false
	}
	return reg.filters.Clone(), true
}

// Active reports whether the id names a live registration.
func (t *T) Active(id string) bool {
	reg, ok := t.registrations.Load(id)
	return ok && reg.active.Load()
}

// Size returns the number of live registrations.
func (t *T) Size() (n int) {
	t.registrations.Range(func(_ string, _ *registration) bool {
		n++
		return true
	})
	return
}

// Dispatch routes one event to every registration whose filters match it.
// The same event id is delivered to a given registration at most once, no
// matter how many relays sent it. The activity check happens at delivery,
// so a handler is never invoked after Cancel returned.
func (t *T) Dispatch(ev *event.T, sourceRelay string) {
	t.registrations.Range(func(_ string, reg *registration) bool {
		if !reg.active.Load() {
			return true
		}
		if !reg.filters.Match(ev) {
			return true
		}
		if _, dup := reg.seen.LoadOrStore(ev.ID.String(), struct{}{}); dup {
			return true
		}
		reg.deliverMutex.Lock()
		if reg.active.Load() {
			reg.onEvent(ev, sourceRelay)
		}
		reg.deliverMutex.Unlock()
		return true
	})
}

// DispatchEose signals end-of-stored-events to one registration. Only the
// first signal is delivered.
func (t *T) DispatchEose(id string) {
	reg, ok := t.registrations.Load(id)
	if !ok || reg.onEose == nil {
		return
	}
	if reg.eosed.CompareAndSwap(false, true) {
		reg.deliverMutex.Lock()
		if reg.active.Load() {
			reg.onEose()
		}
		reg.deliverMutex.Unlock()
	}
}
