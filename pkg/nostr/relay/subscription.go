package relay

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/nostr/envelopes"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filters"
)

// Subscription is a REQ held open against one relay. Events arrive on the
// Events channel in the order the relay sent them; EndOfStoredEvents closes
// when the relay signals the transition from stored to live events.
type Subscription struct {
	Relay   *T
	Filters filters.T

	counter int
	label   string

	// Events emits the matching events. It is closed when the
	// subscription ends; never close it from user code, use Unsub.
	Events chan *event.T
	mu     sync.Mutex

	// EndOfStoredEvents is closed when an EOSE comes in for the
	// subscription.
	EndOfStoredEvents chan struct{}

	// ClosedReason carries the reason when the relay ends the
	// subscription with a CLOSED frame.
	ClosedReason chan string

	// Context is done when the subscription ends.
	Context context.T
	cancel  context.F

	live   atomic.Bool
	eosed  atomic.Bool
	closed atomic.Bool

	// incoming is the FIFO between the reader loop and the single delivery
	// goroutine; one queue per subscription keeps arrival order intact. The
	// EOSE marker travels through the same queue so it cannot overtake
	// stored events.
	incoming chan inbound
}

// inbound is one queued item: an event, or the end-of-stored-events marker.
type inbound struct {
	ev   *event.T
	eose bool
}

// incomingBufferSize is the queue depth per subscription. When a consumer
// falls this far behind, the relay's reader loop blocks, pushing back on the
// transport instead of reordering or dropping events.
const incomingBufferSize = 128

// SubscriptionOption is the type of the optional arguments to Subscribe.
type SubscriptionOption interface{ IsSubscriptionOption() }

// WithLabel puts a label in front of the serial number in the subscription
// id sent to the relay.
type WithLabel string

func (WithLabel) IsSubscriptionOption() {}

var _ SubscriptionOption = (WithLabel)("")

// GetID returns the subscription id used on the wire.
func (sub *Subscription) GetID() string {
	if sub.label != "" {
		return sub.label + ":" + strconv.Itoa(sub.counter)
	}
	return strconv.Itoa(sub.counter)
}

// start ends the subscription when its context is done. The Events channel
// is closed under the same lock the dispatcher sends under, so there is no
// window where a send can hit a closed channel.
func (sub *Subscription) start() {
	<-sub.Context.Done()
	sub.Unsub()
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

// dispatchEvent queues one event for delivery. Called from the reader loop
// only, so the queue order is the arrival order.
func (sub *Subscription) dispatchEvent(ev *event.T) {
	select {
	case sub.incoming <- inbound{ev: ev}:
	case <-sub.Context.Done():
	}
}

func (sub *Subscription) dispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		select {
		case sub.incoming <- inbound{eose: true}:
		case <-sub.Context.Done():
		}
	}
}

// dispatch drains the inbound queue one item at a time. Sends on Events
// happen under the same lock start() closes the channel under; because a
// single goroutine drains the queue, events reach the consumer in the order
// the relay sent them and EndOfStoredEvents only closes after every stored
// event has been handed over.
func (sub *Subscription) dispatch() {
	for {
		select {
		case in := <-sub.incoming:
			if in.eose {
				close(sub.EndOfStoredEvents)
				continue
			}
			sub.mu.Lock()
			if sub.live.Load() {
				select {
				case sub.Events <- in.ev:
				case <-sub.Context.Done():
				}
			}
			sub.mu.Unlock()
		case <-sub.Context.Done():
			return
		}
	}
}

func (sub *Subscription) dispatchClosed(reason string) {
	if sub.closed.CompareAndSwap(false, true) {
		go func() {
			sub.ClosedReason <- reason
			sub.cancel()
		}()
	}
}

// Unsub closes the subscription: a CLOSE frame is sent to the relay and the
// Events channel stops emitting. Idempotent and safe from any goroutine.
func (sub *Subscription) Unsub() {
	sub.cancel()

	// mark the subscription as inactive and send a CLOSE to the relay
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}

	sub.Relay.Subscriptions.Delete(sub.GetID())
}

// Close sends a CLOSE frame to the relay without touching local state. Most
// callers want Unsub.
func (sub *Subscription) Close() {
	if sub.Relay.IsConnected() {
		closeEnv := envelopes.Close(sub.GetID())
		closeb, _ := closeEnv.MarshalJSON()
		<-sub.Relay.Write(closeb)
	}
}

// SetLabel changes the subscription id prefix. Only meaningful before Fire.
func (sub *Subscription) SetLabel(label string) { sub.label = label }

// Fire sends the REQ to the relay.
func (sub *Subscription) Fire() (err error) {
	reqEnv := envelopes.Req{SubscriptionID: sub.GetID(), Filters: sub.Filters}
	var reqb []byte
	if reqb, err = reqEnv.MarshalJSON(); err != nil {
		return err
	}
	sub.live.Store(true)
	if err = <-sub.Relay.Write(reqb); err != nil {
		sub.cancel()
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}
