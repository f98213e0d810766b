package pool

import (
	"errors"
	"testing"

	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/stretchr/testify/require"
)

func TestPublishWithNoRelaysFails(t *testing.T) {
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	p := New(ctx)

	ev := &event.T{Kind: kind.TextNote, Content: "into the void"}
	ev.ID = ev.GetID()
	_, err := p.Publish(ctx, ev)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.NoRelays))
}

func TestConnectEmptyListIsFine(t *testing.T) {
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	p := New(ctx)
	require.NoError(t, p.Connect(nil))
	require.Empty(t, p.ConnectedRelays())
}

func TestMaxRelaysIsEnforced(t *testing.T) {
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	p := New(ctx, WithMaxRelays(0))

	_, err := p.EnsureRelay("wss://relay.example.com")
	require.Error(t, err)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	p := New(ctx)
	p.DisconnectAll()
	p.DisconnectAll()
}

func TestRecordsEmptyPool(t *testing.T) {
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	p := New(ctx)
	require.Empty(t, p.Records())
}
