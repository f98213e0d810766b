package dm

import (
	"errors"
	"testing"

	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/keys"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/stretchr/testify/require"
)

func twoParties(t *testing.T) (alice, bob *keys.Signer) {
	t.Helper()
	var err error
	alice, err = keys.Generate()
	require.NoError(t, err)
	bob, err = keys.Generate()
	require.NoError(t, err)
	return
}

func TestSealOpenRoundTrip(t *testing.T) {
	alice, bob := twoParties(t)

	ev, err := Seal(alice, bob.PublicKey(), "hi")
	require.NoError(t, err)
	require.Equal(t, kind.EncryptedDirectMessage, ev.Kind)
	require.Equal(t, alice.PublicKey(), ev.PubKey)
	require.NotEqual(t, "hi", ev.Content)
	require.Contains(t, ev.Content, "?iv=")
	require.NoError(t, ev.Validate())

	pTag := ev.Tags.GetFirst(tag.T{"p"})
	require.NotNil(t, pTag)
	require.Equal(t, bob.PublicKey(), pTag.Value())

	msg, err := Open(bob, ev)
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Plaintext)
	require.Equal(t, alice.PublicKey(), msg.From)
	require.Equal(t, bob.PublicKey(), msg.To)
	require.Equal(t, ev.ID, msg.ID)
}

func TestSenderCanOpenOwnMessage(t *testing.T) {
	alice, bob := twoParties(t)

	ev, err := Seal(alice, bob.PublicKey(), "sent copy")
	require.NoError(t, err)

	msg, err := Open(alice, ev)
	require.NoError(t, err)
	require.Equal(t, "sent copy", msg.Plaintext)
	require.Equal(t, bob.PublicKey(), msg.To)
}

func TestOpenRejectsThirdParty(t *testing.T) {
	alice, bob := twoParties(t)
	carol, err := keys.Generate()
	require.NoError(t, err)

	ev, err := Seal(alice, bob.PublicKey(), "not for carol")
	require.NoError(t, err)

	_, err = Open(carol, ev)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.Crypto))
}

func TestSealRequiresSecret(t *testing.T) {
	alice, bob := twoParties(t)
	watcher, err := keys.WatchOnly(alice.PublicKey())
	require.NoError(t, err)

	_, err = Seal(watcher, bob.PublicKey(), "nope")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.Crypto))
}

func TestSealRejectsBadRecipient(t *testing.T) {
	alice, _ := twoParties(t)
	_, err := Seal(alice, "not a key", "hello")
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.Validation))
}

func TestOpenRejectsWrongKind(t *testing.T) {
	alice, bob := twoParties(t)
	ev, err := Seal(alice, bob.PublicKey(), "hello")
	require.NoError(t, err)
	ev.Kind = kind.TextNote

	_, err = Open(bob, ev)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.Validation))
}

func TestInboxDeliversOncePerEvent(t *testing.T) {
	alice, bob := twoParties(t)
	ev, err := Seal(alice, bob.PublicKey(), "only once")
	require.NoError(t, err)

	in := NewInbox()
	var got []Message
	in.Subscribe(func(m Message) { got = append(got, m) })

	// the same event arriving from two relays is delivered once
	in.Deliver(bob, ev)
	in.Deliver(bob, ev)

	require.Len(t, got, 1)
	require.Equal(t, "only once", got[0].Plaintext)
	require.Len(t, in.Messages(), 1)
}

func TestInboxDropsUndecryptable(t *testing.T) {
	alice, bob := twoParties(t)
	carol, err := keys.Generate()
	require.NoError(t, err)

	ev, err := Seal(alice, bob.PublicKey(), "for bob")
	require.NoError(t, err)

	in := NewInbox()
	fired := false
	in.Subscribe(func(Message) { fired = true })
	in.Deliver(carol, ev)

	require.False(t, fired)
	require.Empty(t, in.Messages())
}

func TestInboxFansOutToAllListeners(t *testing.T) {
	alice, bob := twoParties(t)
	ev, err := Seal(alice, bob.PublicKey(), "fan out")
	require.NoError(t, err)

	in := NewInbox()
	count := 0
	in.Subscribe(func(Message) { count++ })
	in.Subscribe(func(Message) { count++ })
	in.Deliver(bob, ev)

	require.Equal(t, 2, count)
}
