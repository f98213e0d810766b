// Package cache is the in-memory event store: validated events from all
// relays land here, keyed by event id, and are queried with the same filter
// semantics used on the wire.
package cache

import (
	"sort"
	"time"

	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/puzpuzpuz/xsync/v2"
)

// DefaultTTL applies when the cache is created with a zero TTL.
const DefaultTTL = time.Hour

// evictEvery makes expiry opportunistic: a full sweep runs once per this
// many inserts rather than on a timer.
const evictEvery = 32

type entry struct {
	ev          *event.T
	cachedAt    time.Time
	sourceRelay string
}

// T holds validated events with a TTL. Only events that already passed id
// and signature verification belong here; the cache does not re-verify.
type T struct {
	entries *xsync.MapOf[string, entry]
	ttl     time.Duration
	inserts *xsync.Counter
	now     func() time.Time
}

func New(ttl time.Duration) *T {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &T{
		entries: xsync.NewMapOf[entry](),
		ttl:     ttl,
		inserts: xsync.NewCounter(),
		now:     time.Now,
	}
}

// Insert stores an event. Inserting an id the cache already holds refreshes
// its expiry rather than duplicating it.
func (t *T) Insert(ev *event.T, sourceRelay string) {
	t.entries.Store(ev.ID.String(), entry{
		ev:          ev,
		cachedAt:    t.now(),
		sourceRelay: sourceRelay,
	})
	t.inserts.Inc()
	if t.inserts.Value()%evictEvery == 0 {
		t.EvictExpired()
	}
}

// Get returns the cached event with the given id, if present and fresh.
func (t *T) Get(id string) (*event.T, bool) {
	e, ok := t.entries.Load(id)
	if !ok || t.expired(e) {
		return nil, false
	}
	return e.ev, true
}

// Query returns all fresh cached events matching the filter, newest first.
// The filter's limit caps the result after sorting.
func (t *T) Query(f *filter.T) (evs []*event.T) {
	t.entries.Range(func(_ string, e entry) bool {
		if t.expired(e) {
			return true
		}
		if f.Matches(e.ev) {
			evs = append(evs, e.ev)
		}
		return true
	})
	sort.Sort(event.Descending(evs))
	if f.Limit > 0 && len(evs) > f.Limit {
		evs = evs[:f.Limit]
	}
	return
}

// QueryLatest returns the newest fresh event matching the filter, typically
// for replaceable kinds like profiles and follow lists.
func (t *T) QueryLatest(f *filter.T) *event.T {
	var newest *event.T
	t.entries.Range(func(_ string, e entry) bool {
		if t.expired(e) || !f.Matches(e.ev) {
			return true
		}
		if newest == nil || e.ev.CreatedAt > newest.CreatedAt {
			newest = e.ev
		}
		return true
	})
	return newest
}

// SourceRelay reports which relay an id was cached from.
func (t *T) SourceRelay(id string) (string, bool) {
	e, ok := t.entries.Load(id)
	if !ok || t.expired(e) {
		return "", false
	}
	return e.sourceRelay, true
}

// Len returns the number of entries, expired or not.
func (t *T) Len() (n int) {
	t.entries.Range(func(_ string, _ entry) bool {
		n++
		return true
	})
	return
}

// EvictExpired removes entries whose TTL has lapsed and returns how many
// were dropped.
func (t *T) EvictExpired() (dropped int) {
	t.entries.Range(func(id string, e entry) bool {
		if t.expired(e) {
			t.entries.Delete(id)
			dropped++
		}
		return true
	})
	return
}

// Clear empties the cache.
func (t *T) Clear() {
	t.entries.Range(func(id string, _ entry) bool {
		t.entries.Delete(id)
		return true
	})
}

func (t *T) expired(e entry) bool {
	return t.now().Sub(e.cachedAt) > t.ttl
}
