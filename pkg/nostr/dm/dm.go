// Package dm builds and unwraps encrypted direct messages: kind 4 events
// whose content is the ciphertext of a conversation key derived between
// sender and recipient.
package dm

import (
	"os"
	"sync"

	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/eventid"
	"github.com/nostric/connectr/pkg/nostr/keys"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/nip4"
	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/nostric/connectr/pkg/nostr/tags"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/nostric/connectr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Message is a decrypted direct message.
type Message struct {
	ID        eventid.T   `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Plaintext string      `json:"plaintext"`
	CreatedAt timestamp.T `json:"created_at"`
}

// Listener receives each direct message decrypted for the local key.
type Listener func(Message)

// Seal encrypts plaintext for the recipient and returns a signed kind 4
// event tagged with the recipient's public key. The signer must hold a
// secret key.
func Seal(signer *keys.Signer, recipientPubKey, plaintext string) (
	ev *event.T, err error) {

	var sk string
	if sk, err = signer.RequireSecret(); chk.D(err) {
		return
	}
	if !keys.IsValid32ByteHex(recipientPubKey) {
		err = errs.Wrap(errs.Validation,
			"invalid recipient public key '%s'", recipientPubKey)
		return
	}
	var ss []byte
	if ss, err = nip4.ComputeSharedSecret(recipientPubKey, sk); chk.E(err) {
		return
	}
	var content string
	if content, err = nip4.Encrypt(plaintext, ss); chk.E(err) {
		return
	}
	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      kind.EncryptedDirectMessage,
		Tags:      tags.T{tag.T{"p", recipientPubKey}},
		Content:   content,
	}
	if err = signer.Sign(ev); chk.E(err) {
		return nil, err
	}
	return ev, nil
}

// Open decrypts a kind 4 event addressed to or authored by the signer's
// key. When the local key authored the event the counterparty is taken
// from the recipient tag, so a user's own sent messages decrypt too.
func Open(signer *keys.Signer, ev *event.T) (msg Message, err error) {
	var sk string
	if sk, err = signer.RequireSecret(); err != nil {
		return
	}
	if ev.Kind != kind.EncryptedDirectMessage {
		err = errs.Wrap(errs.Validation,
			"event %s is kind %d, not an encrypted direct message",
			ev.ID, ev.Kind)
		return
	}
	var recipient string
	if pTag := ev.Tags.GetFirst(tag.T{"p"}); pTag != nil {
		recipient = pTag.Value()
	}
	self := signer.PublicKey()

	// the conversation key is derived from the other party's pubkey
	var counterparty string
	switch {
	case ev.PubKey == self:
		counterparty = recipient
	case recipient == self:
		counterparty = ev.PubKey
	default:
		err = errs.Wrap(errs.Crypto,
			"direct message %s is not addressed to this key", ev.ID)
		return
	}
	if !keys.IsValid32ByteHex(counterparty) {
		err = errs.Wrap(errs.Validation,
			"invalid counterparty key '%s' on event %s", counterparty, ev.ID)
		return
	}
	var ss []byte
	if ss, err = nip4.ComputeSharedSecret(counterparty, sk); chk.D(err) {
		return
	}
	var plaintext []byte
	if plaintext, err = nip4.Decrypt(ev.Content, ss); err != nil {
		err = errs.Wrap(errs.Crypto,
			"failed to decrypt direct message %s: %s", ev.ID, err.Error())
		return
	}
	return Message{
		ID:        ev.ID,
		From:      ev.PubKey,
		To:        recipient,
		Plaintext: string(plaintext),
		CreatedAt: ev.CreatedAt,
	}, nil
}

// Inbox decrypts incoming direct messages and fans them out to listeners.
type Inbox struct {
	mutex     sync.Mutex
	listeners []Listener
	messages  []Message
	seen      map[eventid.T]struct{}
}

func NewInbox() *Inbox {
	return &Inbox{seen: make(map[eventid.T]struct{})}
}

// Subscribe adds a listener for subsequently received messages.
func (in *Inbox) Subscribe(l Listener) {
	in.mutex.Lock()
	in.listeners = append(in.listeners, l)
	in.mutex.Unlock()
}

// Deliver decrypts a kind 4 event and hands the message to every listener.
// Duplicate event ids, undecryptable payloads and messages for other keys
// are dropped. Listeners run outside the inbox lock.
func (in *Inbox) Deliver(signer *keys.Signer, ev *event.T) {
	msg, err := Open(signer, ev)
	if err != nil {
		log.D.F("dropping direct message %s: %v", ev.ID, err)
		return
	}
	in.mutex.Lock()
	if _, dup := in.seen[msg.ID]; dup {
		in.mutex.Unlock()
		return
	}
	in.seen[msg.ID] = struct{}{}
	in.messages = append(in.messages, msg)
	active := make([]Listener, len(in.listeners))
	copy(active, in.listeners)
	in.mutex.Unlock()

	for _, l := range active {
		l(msg)
	}
}

// Messages returns the messages received so far, oldest first.
func (in *Inbox) Messages() []Message {
	in.mutex.Lock()
	defer in.mutex.Unlock()
	out := make([]Message, len(in.messages))
	copy(out, in.messages)
	return out
}
