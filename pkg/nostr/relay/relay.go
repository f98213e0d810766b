// Package relay maintains one logical connection to a relay: a state
// machine over the websocket, a serialized write queue, the inbound frame
// demultiplexer, publish-with-acknowledgement and subscriptions, and
// reconnection with exponential backoff.
package relay

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/normalize"
	"github.com/nostric/connectr/pkg/nostr/connection"
	"github.com/nostric/connectr/pkg/nostr/envelopes"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

// Status is the connection state of a relay.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
	Errored
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "error"
	}
	return "unknown"
}

// Record is a point-in-time snapshot of a relay's connection state.
type Record struct {
	URL               string
	State             Status
	LastConnectedAt   time.Time
	LastError         string
	ReconnectAttempts int
}

// Backoff bounds the reconnection schedule: the delay starts at Base,
// doubles up to Cap, and after MaxAttempts failures the relay is parked in
// Errored state until an explicit Reconnect.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultBackoff is used when the caller does not supply one.
var DefaultBackoff = Backoff{
	Base:        time.Second,
	Cap:         time.Minute,
	MaxAttempts: 8,
}

const (
	defaultConnectTimeout = 7 * time.Second
	pingInterval          = 29 * time.Second
)

type writeRequest struct {
	msg    []byte
	answer chan error
}

// T is one relay connection owned by the pool.
type T struct {
	URL           string
	RequestHeader http.Header // e.g. for origin header

	// AssumeValid skips signature verification for events received from
	// this relay (for relays the operator controls).
	AssumeValid bool

	Connection    *connection.C
	Subscriptions *xsync.MapOf[string, *Subscription]

	// parent context of the relay; connCtx is per websocket connection and
	// canceled each time the transport drops
	ctx        context.T
	cancel     context.F
	connCtx    context.T
	connCancel context.F

	status      atomic.Int32
	recordMutex sync.Mutex
	connectedAt time.Time
	lastError   string
	attempts    int

	backoff       Backoff
	autoReconnect bool
	reconnecting  atomic.Bool

	notices     chan string
	okCallbacks *xsync.MapOf[string, func(bool, string)]
	writeQueue  chan writeRequest

	closeMutex sync.Mutex
	closed     bool

	subCounter atomic.Int32
}

// Option configures a relay at construction.
type Option interface{ IsRelayOption() }

// WithNoticeHandler receives NOTICE frames; when not given they are logged.
type WithNoticeHandler func(notice string)

func (WithNoticeHandler) IsRelayOption() {}

// WithBackoff overrides the reconnection schedule.
type WithBackoff Backoff

func (WithBackoff) IsRelayOption() {}

var _ Option = (WithNoticeHandler)(nil)

// New returns an unconnected relay. The relay is torn down for good when the
// given context is canceled or Close is called.
func New(c context.T, url string, opts ...Option) (r *T) {
	ctx, cancel := context.Cancel(c)
	r = &T{
		URL:           normalize.URL(url),
		ctx:           ctx,
		cancel:        cancel,
		Subscriptions: xsync.NewMapOf[*Subscription](),
		okCallbacks:   xsync.NewMapOf[func(bool, string)](),
		writeQueue:    make(chan writeRequest),
		backoff:       DefaultBackoff,
		autoReconnect: true,
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithNoticeHandler:
			r.notices = make(chan string)
			go func() {
				for n := range r.notices {
					o(n)
				}
			}()
		case WithBackoff:
			r.backoff = Backoff(o)
		}
	}
	return
}

// Connect dials r.URL and establishes a connection. On success the relay
// transitions Connecting -> Connected, on failure Connecting -> Errored.
// The context bounds the dial; when it has no deadline a default timeout
// applies.
func Connect(c context.T, url string, opts ...Option) (*T, error) {
	r := New(context.Bg(), url, opts...)
	err := r.Connect(c)
	return r, err
}

func (r *T) Connect(c context.T) (err error) {
	if r.URL == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL)
	}
	r.setStatus(Connecting)

	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, defaultConnectTimeout)
		defer cancel()
	}

	var conn *connection.C
	if conn, err = connection.New(c, r.URL, r.RequestHeader); err != nil {
		r.markError(fmt.Errorf("error opening websocket to '%s': %w",
			r.URL, err))
		return fmt.Errorf("error opening websocket to '%s': %w", r.URL, err)
	}

	r.recordMutex.Lock()
	r.Connection = conn
	r.connectedAt = time.Now()
	r.attempts = 0
	r.lastError = ""
	connCtx, connCancel := context.Cancel(r.ctx)
	r.connCtx, r.connCancel = connCtx, connCancel
	r.recordMutex.Unlock()
	r.setStatus(Connected)

	ticker := time.NewTicker(pingInterval)

	// serialize all writes through one goroutine per connection
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if e := conn.Ping(); e != nil {
					log.D.F("{%s} error writing ping: %v; closing websocket",
						r.URL, e)
					connCancel()
					_ = conn.Close()
					return
				}
			case wr := <-r.writeQueue:
				if e := conn.WriteMessage(wr.msg); e != nil {
					wr.answer <- e
				}
				close(wr.answer)
			case <-connCtx.Done():
				return
			}
		}
	}()

	// reader loop
	go func() {
		buf := new(bytes.Buffer)
		for {
			buf.Reset()
			if e := conn.ReadMessage(connCtx, buf); e != nil {
				r.connectionLost(e)
				return
			}
			r.handleMessage(buf.Bytes())
		}
	}()

	return nil
}

// IsConnected returns true when the relay is in Connected state.
func (r *T) IsConnected() bool { return r.Status() == Connected }

// Status returns the current connection state.
func (r *T) Status() Status { return Status(r.status.Load()) }

// Record returns a snapshot of the relay's state for callers that want to
// display or inspect it.
func (r *T) Record() Record {
	r.recordMutex.Lock()
	defer r.recordMutex.Unlock()
	return Record{
		URL:               r.URL,
		State:             r.Status(),
		LastConnectedAt:   r.connectedAt,
		LastError:         r.lastError,
		ReconnectAttempts: r.attempts,
	}
}

func (r *T) setStatus(s Status) { r.status.Store(int32(s)) }

func (r *T) markError(err error) {
	r.recordMutex.Lock()
	r.lastError = err.Error()
	r.recordMutex.Unlock()
	r.setStatus(Errored)
}

// connectionLost is called from the reader loop when the transport drops.
// Subscriptions are kept so they can be re-fired after a reconnect; the
// relay schedules backoff reconnection unless it is being closed.
func (r *T) connectionLost(err error) {
	r.closeMutex.Lock()
	closed := r.closed
	r.closeMutex.Unlock()

	if r.connCancel != nil {
		r.connCancel()
	}
	if closed {
		r.setStatus(Disconnected)
		return
	}
	log.D.F("{%s} connection lost: %v", r.URL, err)
	r.markError(err)
	if r.autoReconnect {
		r.reconnectWithBackoff()
	}
}

// reconnectWithBackoff runs the backoff schedule in a goroutine. Only one
// schedule runs at a time.
func (r *T) reconnectWithBackoff() {
	if !r.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer r.reconnecting.Store(false)
		delay := r.backoff.Base
		for attempt := 1; attempt <= r.backoff.MaxAttempts; attempt++ {
			select {
			case <-time.After(delay):
			case <-r.ctx.Done():
				return
			}
			r.recordMutex.Lock()
			r.attempts = attempt
			r.recordMutex.Unlock()
			log.D.F("{%s} reconnect attempt %d", r.URL, attempt)
			if err := r.Connect(r.ctx); err == nil {
				r.refireSubscriptions()
				return
			}
			delay *= 2
			if delay > r.backoff.Cap {
				delay = r.backoff.Cap
			}
		}
		log.W.F("{%s} gave up reconnecting after %d attempts",
			r.URL, r.backoff.MaxAttempts)
	}()
}

// Reconnect restarts a relay that was parked in Errored state after its
// backoff schedule ran out.
func (r *T) Reconnect(c context.T) (err error) {
	if err = r.Connect(c); err != nil {
		return
	}
	r.refireSubscriptions()
	return nil
}

func (r *T) refireSubscriptions() {
	r.Subscriptions.Range(func(_ string, sub *Subscription) bool {
		if sub.live.Load() {
			chk.D(sub.Fire())
		}
		return true
	})
}

// handleMessage sorts one inbound frame to its destination. A malformed or
// unverifiable event is dropped here and the pipeline continues.
func (r *T) handleMessage(message []byte) {
	log.T.F("{%s} %v", r.URL, string(message))
	envelope := envelopes.ParseMessage(message)
	if envelope == nil {
		return
	}

	switch env := envelope.(type) {
	case *envelopes.Notice:
		if r.notices != nil {
			r.notices <- string(*env)
		} else {
			log.I.F("NOTICE from %s: '%s'", r.URL, string(*env))
		}
	case *envelopes.Event:
		if env.SubscriptionID == nil {
			return
		}
		sub, ok := r.Subscriptions.Load(*env.SubscriptionID)
		if !ok {
			log.D.F("{%s} no subscription with id '%s'",
				r.URL, *env.SubscriptionID)
			return
		}
		// drop events the subscription didn't ask for
		if !sub.Filters.Match(&env.T) {
			log.D.F("{%s} filter does not match: %v ~ %v",
				r.URL, sub.Filters, env.T)
			return
		}
		// drop events with bad ids or signatures, except from trusted
		// (AssumeValid) relays
		if !r.AssumeValid {
			if err := env.T.Validate(); err != nil {
				log.D.F("{%s} rejected event %s: %v",
					r.URL, env.T.ID, err)
				return
			}
		}
		sub.dispatchEvent(&env.T)
	case *envelopes.EOSE:
		if sub, ok := r.Subscriptions.Load(string(*env)); ok {
			sub.dispatchEose()
		}
	case *envelopes.Closed:
		if sub, ok := r.Subscriptions.Load(env.SubscriptionID); ok {
			sub.dispatchClosed(env.Reason)
		}
	case *envelopes.OK:
		if okCallback, exists := r.okCallbacks.Load(env.EventID); exists {
			okCallback(env.OK, env.Reason)
		} else {
			log.D.F("{%s} got an unexpected OK message for event %s",
				r.URL, env.EventID)
		}
	}
}

// Write queues a message to be sent to the relay and returns a channel that
// yields the write error, or closes on success.
func (r *T) Write(msg []byte) <-chan error {
	ch := make(chan error, 1)
	r.recordMutex.Lock()
	connCtx := r.connCtx
	r.recordMutex.Unlock()
	if connCtx == nil {
		ch <- fmt.Errorf("relay not connected")
		return ch
	}
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-connCtx.Done():
		ch <- fmt.Errorf("connection closed")
	}
	return ch
}

// Publish sends an EVENT frame and waits for the relay's OK response. The
// context bounds the wait; without a deadline a default timeout applies.
func (r *T) Publish(c context.T, ev *event.T) (err error) {
	var cancel context.F
	if _, ok := c.Deadline(); !ok {
		c, cancel = context.TimeoutCause(c, defaultConnectTimeout,
			fmt.Errorf("given up waiting for an OK"))
		defer cancel()
	} else {
		c, cancel = context.Cancel(c)
		defer cancel()
	}

	id := ev.ID.String()
	gotOk := false
	r.okCallbacks.Store(id, func(ok bool, reason string) {
		gotOk = true
		if !ok {
			err = fmt.Errorf("msg: %s", reason)
		}
		cancel()
	})
	defer r.okCallbacks.Delete(id)

	envb, _ := (&envelopes.Event{T: *ev}).MarshalJSON()
	log.T.F("{%s} sending %v", r.URL, string(envb))
	if e := <-r.Write(envb); e != nil {
		return e
	}

	for {
		select {
		case <-c.Done():
			// called when we get an OK or the context expired
			if gotOk {
				return err
			}
			return c.Err()
		case <-r.ctx.Done():
			// lost the relay entirely
			return err
		}
	}
}

// Subscribe sends a REQ frame with the filters. Events are delivered on the
// subscription's Events channel. The subscription closes when the given
// context is canceled or Unsub is called.
func (r *T) Subscribe(c context.T, ff filters.T,
	opts ...SubscriptionOption) (*Subscription, error) {

	sub := r.PrepareSubscription(c, ff, opts...)
	if err := sub.Fire(); err != nil {
		return nil, fmt.Errorf("couldn't subscribe to %v at %s: %w",
			ff, r.URL, err)
	}
	return sub, nil
}

// PrepareSubscription creates a subscription but does not fire it.
func (r *T) PrepareSubscription(c context.T, ff filters.T,
	opts ...SubscriptionOption) *Subscription {

	current := r.subCounter.Add(1)
	ctx, cancel := context.Cancel(c)
	sub := &Subscription{
		Relay:             r,
		Context:           ctx,
		cancel:            cancel,
		counter:           int(current),
		Events:            make(chan *event.T),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan string, 1),
		incoming:          make(chan inbound, incomingBufferSize),
		Filters:           ff,
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithLabel:
			sub.label = string(o)
		}
	}
	r.Subscriptions.Store(sub.GetID(), sub)
	go sub.start()
	go sub.dispatch()
	return sub
}

// QuerySync subscribes, collects events until the end of stored events, and
// unsubscribes.
func (r *T) QuerySync(c context.T, f filter.T,
	opts ...SubscriptionOption) (evs []*event.T, err error) {

	var sub *Subscription
	if sub, err = r.Subscribe(c, filters.T{f}, opts...); err != nil {
		return nil, err
	}
	defer sub.Unsub()

	if _, ok := c.Deadline(); !ok {
		var cancel context.F
		c, cancel = context.Timeout(c, defaultConnectTimeout)
		defer cancel()
	}

	for {
		select {
		case ev := <-sub.Events:
			if ev == nil {
				return evs, nil
			}
			evs = append(evs, ev)
		case <-sub.EndOfStoredEvents:
			return evs, nil
		case <-c.Done():
			return evs, nil
		}
	}
}

// Close tears the relay down for good: no reconnection, all subscriptions
// unsubscribed, state Disconnected. Idempotent.
func (r *T) Close() error {
	r.closeMutex.Lock()
	if r.closed {
		r.closeMutex.Unlock()
		return nil
	}
	r.closed = true
	r.closeMutex.Unlock()

	r.Subscriptions.Range(func(_ string, sub *Subscription) bool {
		go sub.Unsub()
		return true
	})
	if r.notices != nil {
		close(r.notices)
	}
	r.cancel()
	r.setStatus(Disconnected)

	r.recordMutex.Lock()
	conn := r.Connection
	r.Connection = nil
	r.recordMutex.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (r *T) String() string { return r.URL }
