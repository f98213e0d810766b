package event

import (
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/hex"
)

// Validate checks an event received from the outside world. Structural
// problems and an ID that does not match the recomputed canonical hash
// return errs.Validation; a structurally sound event whose signature does
// not verify returns errs.Signature, so callers can tell "malformed" apart
// from "someone tampered with this".
func (ev *T) Validate() (err error) {
	if ev == nil {
		return errs.Wrap(errs.Validation, "nil event")
	}
	if err = ev.ID.Validate(); err != nil {
		return errs.Wrap(errs.Validation, "malformed id: %v", err)
	}
	if b, e := hex.Dec(ev.PubKey); e != nil || len(b) != 32 {
		return errs.Wrap(errs.Validation,
			"pubkey must be 32 bytes hex, got '%s'", ev.PubKey)
	}
	if b, e := hex.Dec(ev.Sig); e != nil || len(b) != 64 {
		return errs.Wrap(errs.Validation, "sig must be 64 bytes hex")
	}
	if ev.CreatedAt < 0 {
		return errs.Wrap(errs.Validation, "negative created_at")
	}
	if ev.GetID() != ev.ID {
		return errs.Wrap(errs.Validation,
			"id does not match canonical hash of event fields")
	}
	valid, e := ev.CheckSignature()
	if e != nil {
		return errs.Wrap(errs.Validation, "unparseable signature: %v", e)
	}
	if !valid {
		return errs.Wrap(errs.Signature, "event %s", ev.ID)
	}
	return nil
}
