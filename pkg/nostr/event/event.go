// Package event implements the signed, immutable unit of data of the nostr
// protocol: canonical serialization, content-hash ID, schnorr signing and
// verification, and the wire JSON form.
package event

import (
	"os"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/hex"
	"github.com/nostric/connectr/pkg/nostr/eventid"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/tags"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/nostric/connectr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// T is the event structure in the form that defines its JSON string based
// format.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event.
	ID eventid.T `json:"id"`

	// PubKey is the event creator's x-only public key in hexadecimal.
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T.
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are lists of strings, the first element
	// of each being the key.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string, its interpretation fixed by the Kind.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// PubKey.
	Sig string `json:"sig"`
}

// Hash returns the SHA256 hash of the input.
func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// Serialize appends the canonical preimage of the event to nothing:
// [0,pubkey,created_at,kind,tags,content] with RFC8259 string escaping.
// This must be byte-for-byte reproducible as the ID is a hash over it.
func (ev *T) Serialize() []byte {
	dst := make([]byte, 0, 128+len(ev.Content))
	dst = append(dst, "[0,"...)
	dst = escape.String(dst, ev.PubKey)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, ev.CreatedAt.I64(), 10)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(ev.Kind), 10)
	dst = append(dst, ',')
	if ev.Tags == nil {
		dst = append(dst, "[]"...)
	} else {
		dst = ev.Tags.MarshalTo(dst)
	}
	dst = append(dst, ',')
	dst = escape.String(dst, ev.Content)
	return append(dst, ']')
}

// GetIDBytes returns the raw SHA256 hash of the canonical form of the event.
func (ev *T) GetIDBytes() []byte { return Hash(ev.Serialize()) }

// GetID serializes and returns the event ID as a hexadecimal string.
func (ev *T) GetID() eventid.T { return eventid.T(hex.Enc(ev.GetIDBytes())) }

// Sign signs an event with a given secret key encoded in hexadecimal,
// deriving and filling in PubKey, ID and Sig.
func (ev *T) Sign(skStr string, so ...schnorr.SignOption) (err error) {
	if len(skStr) != 64 {
		return log.E.Err("invalid secret key length, 64 required, got %d",
			len(skStr))
	}
	var skBytes []byte
	if skBytes, err = hex.Dec(skStr); err != nil {
		return log.E.Err("sign called with invalid secret key: %v", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(skBytes)
	return ev.SignWithSecKey(sk, so...)
}

// SignWithSecKey signs an event with a given *btcec.PrivateKey.
func (ev *T) SignWithSecKey(sk *btcec.PrivateKey,
	so ...schnorr.SignOption) (err error) {

	if ev.Tags == nil {
		ev.Tags = make(tags.T, 0)
	}
	ev.PubKey = hex.Enc(schnorr.SerializePubKey(sk.PubKey()))
	id := ev.GetIDBytes()
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sk, id, so...); chk.D(err) {
		return err
	}
	ev.ID = eventid.T(hex.Enc(id))
	ev.Sig = hex.Enc(sig.Serialize())
	return nil
}

// CheckSignature verifies that Sig is a valid signature on the recomputed ID
// hash by PubKey. It returns an error if any of the fields cannot be parsed.
func (ev *T) CheckSignature() (valid bool, err error) {
	var pkBytes []byte
	if pkBytes, err = hex.Dec(ev.PubKey); err != nil {
		return false, log.D.Err(
			"event pubkey '%s' is invalid hex: %v", ev.PubKey, err)
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkBytes); err != nil {
		return false, log.D.Err(
			"event has invalid pubkey '%s': %v", ev.PubKey, err)
	}
	var sigBytes []byte
	if sigBytes, err = hex.Dec(ev.Sig); err != nil {
		return false, log.D.Err(
			"signature '%s' is invalid hex: %v", ev.Sig, err)
	}
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sigBytes); err != nil {
		return false, log.D.Err("failed to parse signature: %v", err)
	}
	return sig.Verify(ev.GetIDBytes(), pk), nil
}

// Clone returns a deep copy of the event.
func (ev *T) Clone() *T {
	clone := *ev
	clone.Tags = ev.Tags.Clone()
	return &clone
}

// Ascending is a slice of events that sorts in ascending chronological order.
type Ascending []*T

func (ev Ascending) Len() int           { return len(ev) }
func (ev Ascending) Less(i, j int) bool { return ev[i].CreatedAt < ev[j].CreatedAt }
func (ev Ascending) Swap(i, j int)      { ev[i], ev[j] = ev[j], ev[i] }

// Descending sorts a slice of events in reverse chronological order (newest
// first).
type Descending []*T

func (ev Descending) Len() int           { return len(ev) }
func (ev Descending) Less(i, j int) bool { return ev[i].CreatedAt > ev[j].CreatedAt }
func (ev Descending) Swap(i, j int)      { ev[i], ev[j] = ev[j], ev[i] }
