// Package pool manages a set of relay connections as one unit: parallel
// dialing, publish fan-out, subscription fan-out with cross-relay
// deduplication, and teardown.
package pool

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fiatjaf/generic-ristretto/z"
	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/normalize"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/nostr/relay"
	"github.com/nostric/connectr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

const MaxLocks = 50

// DefaultMaxRelays bounds how many relays a pool will hold connections to.
const DefaultMaxRelays = 16

// IncomingEvent is an event as it arrived, paired with the relay that
// delivered it.
type IncomingEvent struct {
	*event.T
	Relay *relay.T
}

// Pool herds relay connections. Each URL gets at most one relay; concurrent
// callers asking for the same URL are serialized on a striped named lock.
type Pool struct {
	Relays *xsync.MapOf[string, *relay.T]

	ctx       context.T
	cancel    context.F
	maxRelays int
	backoff   relay.Backoff

	namedMutexPool [MaxLocks]sync.Mutex
}

// PoolOption configures a pool at construction.
type PoolOption interface{ IsPoolOption() }

// WithMaxRelays caps the number of relays the pool will connect to.
type WithMaxRelays int

func (WithMaxRelays) IsPoolOption() {}

// WithBackoff sets the reconnection schedule applied to every relay the
// pool creates.
type WithBackoff relay.Backoff

func (WithBackoff) IsPoolOption() {}

// New creates a pool bound to the given context; canceling it disconnects
// every relay.
func New(c context.T, opts ...PoolOption) *Pool {
	ctx, cancel := context.Cancel(c)
	p := &Pool{
		Relays:    xsync.NewMapOf[*relay.T](),
		ctx:       ctx,
		cancel:    cancel,
		maxRelays: DefaultMaxRelays,
		backoff:   relay.DefaultBackoff,
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithMaxRelays:
			p.maxRelays = int(o)
		case WithBackoff:
			p.backoff = relay.Backoff(o)
		}
	}
	return p
}

func namedLock(pool *Pool, name string) (unlock func()) {
	idx := z.MemHashString(name) % MaxLocks
	pool.namedMutexPool[idx].Lock()
	return pool.namedMutexPool[idx].Unlock
}

// EnsureRelay returns the pool's relay for the URL, dialing it if needed. A
// relay that previously failed is retried.
func (p *Pool) EnsureRelay(url string) (*relay.T, error) {
	nm := normalize.URL(url)
	defer namedLock(p, nm)()

	r, ok := p.Relays.Load(nm)
	if ok && r.IsConnected() {
		// already connected, unlock and return
		return r, nil
	}
	if !ok {
		if p.size() >= p.maxRelays {
			return nil, fmt.Errorf("relay limit of %d reached, not adding '%s'",
				p.maxRelays, nm)
		}
		r = relay.New(p.ctx, nm, relay.WithBackoff(p.backoff))
		p.Relays.Store(nm, r)
	}

	// try to connect, we don't have a connection
	ctx, cancel := context.Timeout(p.ctx, 7*time.Second)
	defer cancel()
	if err := r.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to '%s': %w", nm, err)
	}
	return r, nil
}

func (p *Pool) size() (n int) {
	p.Relays.Range(func(_ string, _ *relay.T) bool {
		n++
		return true
	})
	return
}

// Connect dials each URL concurrently. A failing relay does not affect the
// others; it stays tracked and keeps reconnecting on its own schedule. The
// returned error is non-nil only when every dial failed.
func (p *Pool) Connect(urls []string) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errv []error
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if _, err := p.EnsureRelay(url); err != nil {
				log.D.F("pool: %v", err)
				mu.Lock()
				errv = append(errv, err)
				mu.Unlock()
			}
		}(url)
	}
	wg.Wait()
	if len(urls) > 0 && len(errv) == len(urls) {
		return errs.Wrap(errs.NoRelays, "all %d relays failed to connect",
			len(urls))
	}
	return nil
}

// ConnectedRelays returns the relays currently in Connected state.
func (p *Pool) ConnectedRelays() (out []*relay.T) {
	p.Relays.Range(func(_ string, r *relay.T) bool {
		if r.IsConnected() {
			out = append(out, r)
		}
		return true
	})
	return
}

// Records snapshots the state of every tracked relay.
func (p *Pool) Records() (out []relay.Record) {
	p.Relays.Range(func(_ string, r *relay.T) bool {
		out = append(out, r.Record())
		return true
	})
	return
}

// PublishResult is the outcome of publishing one event to one relay.
type PublishResult struct {
	Error error
	Relay *relay.T
}

// Publish sends the event to every connected relay concurrently and reports
// per-relay outcomes. It fails with a NoRelays error when no relay is
// connected.
func (p *Pool) Publish(c context.T, ev *event.T) ([]PublishResult, error) {
	connected := p.ConnectedRelays()
	if len(connected) == 0 {
		return nil, errs.Wrap(errs.NoRelays,
			"no connected relays to publish to")
	}
	results := make([]PublishResult, len(connected))
	var wg sync.WaitGroup
	for i, r := range connected {
		wg.Add(1)
		go func(i int, r *relay.T) {
			defer wg.Done()
			err := r.Publish(c, ev)
			results[i] = PublishResult{Error: err, Relay: r}
			if err != nil {
				log.D.F("{%s} publish %s failed: %v", r.URL, ev.ID, err)
			}
		}(i, r)
	}
	wg.Wait()
	return results, nil
}

// SubMany opens the same subscription on every relay in the list and merges
// the streams, deduplicating by event id across relays.
func (p *Pool) SubMany(c context.T, urls []string,
	ff filters.T, unique bool) chan IncomingEvent {

	ctx := c
	events := make(chan IncomingEvent)
	if len(urls) == 0 {
		close(events)
		return events
	}
	seenAlready := xsync.NewMapOf[bool]()

	// the merged stream closes exactly once, after the last per-relay
	// goroutine has finished
	var wg sync.WaitGroup
	wg.Add(len(urls))
	go func() {
		wg.Wait()
		close(events)
	}()
	for _, url := range urls {
		go func(nm string) {
			defer wg.Done()

			r, err := p.EnsureRelay(nm)
			if err != nil {
				return
			}
			sub, err := r.Subscribe(ctx, ff)
			if err != nil {
				return
			}
			for {
				select {
				case ev, more := <-sub.Events:
					if !more {
						return
					}
					stop := false
					if unique {
						_, stop = seenAlready.LoadOrStore(ev.ID.String(), true)
					}
					if !stop {
						select {
						case events <- IncomingEvent{T: ev, Relay: r}:
						case <-ctx.Done():
							return
						}
					}
				case <-ctx.Done():
					return
				}
			}
		}(normalize.URL(url))
	}

	return events
}

// QuerySingle returns the first event matching the filter from any of the
// given relays.
func (p *Pool) QuerySingle(c context.T, urls []string,
	f filter.T) *IncomingEvent {

	ctx, cancel := context.Cancel(c)
	defer cancel()
	for ievt := range p.SubMany(ctx, urls, filters.T{f}, true) {
		return &ievt
	}
	return nil
}

// DisconnectAll closes every relay. Idempotent; a second call returns
// immediately.
func (p *Pool) DisconnectAll() {
	p.Relays.Range(func(_ string, r *relay.T) bool {
		chk.D(r.Close())
		return true
	})
	p.cancel()
}
