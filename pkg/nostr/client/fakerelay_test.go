package client

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/nostr/keys"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// fakeRelay speaks just enough of the wire protocol for tests: it
// acknowledges EVENT frames and forwards them to every open subscription,
// answers REQ with an immediate EOSE, and reports CLOSE frames on a channel.
type fakeRelay struct {
	srv *httptest.Server

	mu    sync.Mutex
	wmu   sync.Mutex
	conns map[net.Conn]map[string]bool

	closes chan string
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{
		conns:  make(map[net.Conn]map[string]bool),
		closes: make(chan string, 16),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, _, _, err := ws.UpgradeHTTP(r, w)
			if err != nil {
				return
			}
			f.mu.Lock()
			f.conns[conn] = make(map[string]bool)
			f.mu.Unlock()
			go f.serve(conn)
		}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) url() string { return f.srv.URL }

func (f *fakeRelay) serve(conn net.Conn) {
	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		msg, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}
		frame := gjson.ParseBytes(msg).Array()
		if len(frame) < 2 {
			continue
		}
		switch frame[0].String() {
		case "EVENT":
			id := frame[1].Get("id").String()
			f.write(conn, fmt.Sprintf(`["OK","%s",true,""]`, id))
			f.fanout(frame[1].Raw)
		case "REQ":
			subID := frame[1].String()
			f.mu.Lock()
			if subs, ok := f.conns[conn]; ok {
				subs[subID] = true
			}
			f.mu.Unlock()
			f.write(conn, `["EOSE","`+subID+`"]`)
		case "CLOSE":
			subID := frame[1].String()
			f.mu.Lock()
			if subs, ok := f.conns[conn]; ok {
				delete(subs, subID)
			}
			f.mu.Unlock()
			select {
			case f.closes <- subID:
			default:
			}
		}
	}
}

func (f *fakeRelay) write(conn net.Conn, s string) {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	_ = wsutil.WriteServerMessage(conn, ws.OpText, []byte(s))
}

// fanout pushes raw event JSON to every open subscription of every client.
func (f *fakeRelay) fanout(raw string) {
	type target struct {
		conn  net.Conn
		subID string
	}
	var targets []target
	f.mu.Lock()
	for conn, subs := range f.conns {
		for subID := range subs {
			targets = append(targets, target{conn: conn, subID: subID})
		}
	}
	f.mu.Unlock()
	for _, tg := range targets {
		f.write(tg.conn, `["EVENT","`+tg.subID+`",`+raw+`]`)
	}
}

func (f *fakeRelay) subCount() (n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, subs := range f.conns {
		n += len(subs)
	}
	return
}

func newLiveClient(t *testing.T, f *fakeRelay, sk string) *T {
	t.Helper()
	cl, err := New(context.Bg(), Config{
		Relays:       []string{f.url()},
		SecretKey:    sk,
		Capabilities: AllCapabilities,
	})
	require.NoError(t, err)
	require.NoError(t, cl.Initialize(context.Bg()))
	t.Cleanup(cl.Close)
	return cl
}

func generateSecret(t *testing.T) (sk, pk string) {
	t.Helper()
	s, err := keys.Generate()
	require.NoError(t, err)
	sk, err = s.RequireSecret()
	require.NoError(t, err)
	return sk, s.PublicKey()
}

func TestDirectMessageRoundTripOverRelay(t *testing.T) {
	f := newFakeRelay(t)
	skA, pkA := generateSecret(t)
	skB, pkB := generateSecret(t)
	alice := newLiveClient(t, f, skA)
	bob := newLiveClient(t, f, skB)

	// both feeds must be open before the message goes out
	require.Eventually(t, func() bool { return f.subCount() >= 2 },
		5*time.Second, 25*time.Millisecond)

	_, err := alice.SendDirectMessage(context.Bg(), pkB, "hi")
	require.NoError(t, err)

	// the sender keeps a readable copy
	sent, err := alice.GetDirectMessages()
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, "hi", sent[0].Plaintext)

	require.Eventually(t, func() bool {
		got, e := bob.GetDirectMessages()
		return e == nil && len(got) == 1 && got[0].Plaintext == "hi" &&
			got[0].From == pkA && got[0].To == pkB
	}, 5*time.Second, 25*time.Millisecond)
}

func TestDisconnectCancelsSubscriptions(t *testing.T) {
	f := newFakeRelay(t)
	sk, _ := generateSecret(t)
	cl := newLiveClient(t, f, sk)

	var delivered atomic.Int32
	id, err := cl.Subscribe(filters.T{{Kinds: []kind.T{kind.TextNote}}},
		func(*event.T, string) { delivered.Add(1) }, nil)
	require.NoError(t, err)

	cl.Disconnect()
	require.False(t, cl.registry.Active(id))

	// after a reconnect the feed resumes, but the cancelled subscription
	// must stay dead
	require.NoError(t, cl.Initialize(context.Bg()))
	require.Eventually(t, func() bool { return f.subCount() >= 1 },
		5*time.Second, 25*time.Millisecond)

	other, err := keys.Generate()
	require.NoError(t, err)
	note, err := other.Build(kind.TextNote, nil, "after reconnect")
	require.NoError(t, err)
	evb, err := note.MarshalJSON()
	require.NoError(t, err)

	// the event flows through the feed into the cache; resending per poll
	// rides out the window where the pre-disconnect connection is still
	// being torn down server side
	require.Eventually(t, func() bool {
		f.fanout(string(evb))
		return len(cl.GetCachedEvents(
			filter.T{Kinds: []kind.T{kind.TextNote}})) == 1
	}, 5*time.Second, 25*time.Millisecond)
	// ...without reaching the cancelled handler
	require.Zero(t, delivered.Load())
}

func TestUnsubscribeClosesNetworkSubscription(t *testing.T) {
	f := newFakeRelay(t)
	sk, _ := generateSecret(t)
	cl := newLiveClient(t, f, sk)

	id, err := cl.Subscribe(filters.T{{Kinds: []kind.T{kind.TextNote}}},
		func(*event.T, string) {}, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.subCount() >= 2 },
		5*time.Second, 25*time.Millisecond)

	cl.Unsubscribe(id)
	require.False(t, cl.registry.Active(id))
	select {
	case <-f.closes:
	case <-time.After(5 * time.Second):
		t.Fatal("no CLOSE frame arrived after unsubscribe")
	}
}

func TestPublishNoteReturnsSignedEvent(t *testing.T) {
	f := newFakeRelay(t)
	sk, pk := generateSecret(t)
	cl := newLiveClient(t, f, sk)

	ev, err := cl.PublishNote(context.Bg(), "hello")
	require.NoError(t, err)
	require.Equal(t, pk, ev.PubKey)
	require.Equal(t, kind.TextNote, ev.Kind)
	require.NoError(t, ev.Validate())
}
