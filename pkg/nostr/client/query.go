package client

import (
	"encoding/json"

	"github.com/nostric/connectr/pkg/context"
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/dm"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
	"github.com/nostric/connectr/pkg/nostr/filters"
	"github.com/nostric/connectr/pkg/nostr/keys"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/registry"
)

// Subscribe registers handlers for events matching the filters and opens
// the subscription on every pool relay. The returned id is valid as soon as
// Subscribe returns and is the handle for Unsubscribe. Events seen from
// multiple relays are delivered once.
func (cl *T) Subscribe(ff filters.T, onEvent registry.EventHandler,
	onEose registry.EoseHandler) (id string, err error) {

	if !cl.cfg.Capabilities.Subscribe {
		return "", errs.Wrap(errs.FeatureDisabled,
			"subscriptions are disabled")
	}
	if err = cl.requireReady(); err != nil {
		return
	}
	id = cl.registry.Register(ff, onEvent, onEose)

	subCtx, subCancel := context.Cancel(cl.ctx)
	cl.mutex.Lock()
	p := cl.pool
	cl.subCancels[id] = subCancel
	cl.mutex.Unlock()

	events := p.SubMany(subCtx, cl.cfg.Relays, ff, true)
	go func() {
		defer func() {
			subCancel()
			cl.mutex.Lock()
			delete(cl.subCancels, id)
			cl.mutex.Unlock()
		}()
		for ievt := range events {
			if !cl.registry.Active(id) {
				return
			}
			cl.consume(ievt)
		}
		cl.registry.DispatchEose(id)
	}()
	return id, nil
}

// Unsubscribe cancels a subscription on both sides: the registry stops
// delivering to the handlers and the relays get a CLOSE for the open REQ.
// An unknown id is a no-op.
func (cl *T) Unsubscribe(id string) {
	cl.registry.Cancel(id)
	cl.mutex.Lock()
	cancel := cl.subCancels[id]
	delete(cl.subCancels, id)
	cl.mutex.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetCachedEvents queries the local cache with the same filter semantics a
// relay would apply, without touching the network.
func (cl *T) GetCachedEvents(f filter.T) []*event.T {
	return cl.cache.Query(&f)
}

// GetUserProfile returns the newest known kind 0 profile for the key,
// preferring the cache and falling back to the relays.
func (cl *T) GetUserProfile(c context.T, pubkey string) (meta *Metadata,
	err error) {

	if !keys.IsValid32ByteHex(pubkey) {
		return nil, errs.Wrap(errs.Validation,
			"invalid public key '%s'", pubkey)
	}
	f := filter.T{
		Authors: []string{pubkey},
		Kinds:   []kind.T{kind.ProfileMetadata},
		Limit:   1,
	}
	ev := cl.cache.QueryLatest(&f)
	if ev == nil {
		if ev, err = cl.fetchOne(c, f); err != nil {
			return
		}
	}
	if ev == nil {
		return nil, nil
	}
	meta = &Metadata{}
	if err = json.Unmarshal([]byte(ev.Content), meta); err != nil {
		return nil, errs.Wrap(errs.Validation,
			"malformed profile content in event %s: %s",
			ev.ID, err.Error())
	}
	return meta, nil
}

// GetContacts returns the follow list from the newest known kind 3 event
// of the key, cache first then relays.
func (cl *T) GetContacts(c context.T, pubkey string) (contacts []Contact,
	err error) {

	if !keys.IsValid32ByteHex(pubkey) {
		return nil, errs.Wrap(errs.Validation,
			"invalid public key '%s'", pubkey)
	}
	f := filter.T{
		Authors: []string{pubkey},
		Kinds:   []kind.T{kind.FollowList},
		Limit:   1,
	}
	ev := cl.cache.QueryLatest(&f)
	if ev == nil {
		if ev, err = cl.fetchOne(c, f); err != nil {
			return
		}
	}
	if ev == nil {
		return nil, nil
	}
	for _, t := range ev.Tags.GetAll("p") {
		if len(t) < 2 || !keys.IsValid32ByteHex(t[1]) {
			continue
		}
		contact := Contact{PubKey: t[1]}
		if len(t) > 2 {
			contact.RelayHint = t[2]
		}
		if len(t) > 3 {
			contact.LocalAlias = t[3]
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// fetchOne asks the relays for the first event matching the filter. A miss
// is not an error.
func (cl *T) fetchOne(c context.T, f filter.T) (*event.T, error) {
	if err := cl.requireReady(); err != nil {
		return nil, err
	}
	cl.mutex.Lock()
	p := cl.pool
	cl.mutex.Unlock()
	ievt := p.QuerySingle(c, cl.cfg.Relays, f)
	if ievt == nil {
		return nil, nil
	}
	cl.consume(*ievt)
	return ievt.T, nil
}

// GetDirectMessages returns the decrypted direct messages received so far,
// oldest first.
func (cl *T) GetDirectMessages() ([]dm.Message, error) {
	if !cl.cfg.Capabilities.DirectMessages {
		return nil, errs.Wrap(errs.FeatureDisabled,
			"direct messages are disabled")
	}
	return cl.inbox.Messages(), nil
}

// OnDirectMessage registers a listener invoked for each direct message as
// it is decrypted.
func (cl *T) OnDirectMessage(l dm.Listener) error {
	if !cl.cfg.Capabilities.DirectMessages {
		return errs.Wrap(errs.FeatureDisabled,
			"direct messages are disabled")
	}
	cl.inbox.Subscribe(l)
	return nil
}
