package client

import (
	"encoding/json"

	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/dm"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/pool"
	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/nostric/connectr/pkg/nostr/tags"
)

// Metadata is the kind 0 profile content.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
}

// Contact is one entry of a kind 3 follow list.
type Contact struct {
	PubKey     string `json:"pubkey"`
	RelayHint  string `json:"relay_hint,omitempty"`
	LocalAlias string `json:"local_alias,omitempty"`
}

func (cl *T) requirePublish() error {
	if !cl.cfg.Capabilities.Publish {
		return errs.Wrap(errs.FeatureDisabled, "publishing is disabled")
	}
	return cl.requireReady()
}

// signAndPublish builds a signed event with the current identity and sends
// it to every connected relay. It succeeds when at least one relay accepted
// the event; the event also lands in the local cache so it is queryable
// immediately.
func (cl *T) signAndPublish(c context.T, k kind.T, tt tags.T,
	content string) (ev *event.T, err error) {

	cl.mutex.Lock()
	signer := cl.signer
	cl.mutex.Unlock()
	if signer == nil {
		return nil, errs.Wrap(errs.Initialization, "no key pair loaded")
	}
	if ev, err = signer.Build(k, tt, content); err != nil {
		return nil, err
	}
	return ev, cl.broadcast(c, ev)
}

// broadcast sends an already signed event to the pool.
func (cl *T) broadcast(c context.T, ev *event.T) (err error) {
	cl.mutex.Lock()
	p := cl.pool
	cl.mutex.Unlock()
	if p == nil {
		return errs.Wrap(errs.NoRelays, "no relay pool")
	}
	var results []pool.PublishResult
	if results, err = p.Publish(c, ev); err != nil {
		return
	}
	accepted := 0
	for _, res := range results {
		if res.Error == nil {
			accepted++
		}
	}
	if accepted == 0 {
		return errs.Wrap(errs.NoRelays,
			"event %s was accepted by none of %d relays",
			ev.ID, len(results))
	}
	log.D.F("event %s accepted by %d of %d relays",
		ev.ID, accepted, len(results))
	cl.cache.Insert(ev, "")
	return nil
}

// PublishNote signs and broadcasts a kind 1 text note, returning the signed
// event on success. Extra tags (replies, mentions) are passed through.
func (cl *T) PublishNote(c context.T, content string,
	extraTags ...tag.T) (ev *event.T, err error) {

	if err = cl.requirePublish(); err != nil {
		return
	}
	tt := make(tags.T, 0, len(extraTags))
	tt = append(tt, extraTags...)
	return cl.signAndPublish(c, kind.TextNote, tt, content)
}

// PublishProfile signs and broadcasts a kind 0 profile, returning the signed
// event on success. Relays replace any older profile for the same key.
func (cl *T) PublishProfile(c context.T, meta Metadata) (ev *event.T,
	err error) {

	if err = cl.requirePublish(); err != nil {
		return
	}
	var content []byte
	if content, err = json.Marshal(meta); chk.E(err) {
		return
	}
	return cl.signAndPublish(c, kind.ProfileMetadata, tags.T{},
		string(content))
}

// PublishContactList signs and broadcasts a kind 3 follow list, returning
// the signed event on success. Each contact becomes one p tag carrying the
// optional relay hint and alias.
func (cl *T) PublishContactList(c context.T, contacts []Contact) (ev *event.T,
	err error) {

	if err = cl.requirePublish(); err != nil {
		return
	}
	tt := make(tags.T, 0, len(contacts))
	for _, contact := range contacts {
		tt = append(tt, tag.T{"p", contact.PubKey, contact.RelayHint,
			contact.LocalAlias})
	}
	return cl.signAndPublish(c, kind.FollowList, tt, "")
}

// SendDirectMessage encrypts plaintext for the recipient, signs the
// resulting kind 4 event and broadcasts it. The sent message also lands in
// the local inbox so conversations include both directions.
func (cl *T) SendDirectMessage(c context.T, recipientPubKey,
	plaintext string) (id string, err error) {

	if !cl.cfg.Capabilities.DirectMessages {
		return "", errs.Wrap(errs.FeatureDisabled,
			"direct messages are disabled")
	}
	if err = cl.requireReady(); err != nil {
		return
	}
	cl.mutex.Lock()
	signer := cl.signer
	cl.mutex.Unlock()
	if signer == nil {
		return "", errs.Wrap(errs.Initialization, "no key pair loaded")
	}
	var ev *event.T
	if ev, err = dm.Seal(signer, recipientPubKey, plaintext); err != nil {
		return
	}
	if err = cl.broadcast(c, ev); err != nil {
		return
	}
	cl.inbox.Deliver(signer, ev)
	return ev.ID.String(), nil
}
