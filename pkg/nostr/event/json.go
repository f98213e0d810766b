package event

import (
	"fmt"
	"strconv"

	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/nostr/eventid"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/tag"
	"github.com/nostric/connectr/pkg/nostr/tags"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"github.com/tidwall/gjson"
)

// MarshalJSON encodes the event in the wire form, field order fixed by
// NIP-01, string escaping identical to the canonical preimage.
func (ev *T) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	ev.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

// MarshalEasyJSON writes the event to an easyjson writer so envelopes can
// embed it without an intermediate allocation.
func (ev *T) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"id":`)
	w.Raw(escape.String(nil, ev.ID.String()), nil)
	w.RawString(`,"pubkey":`)
	w.Raw(escape.String(nil, ev.PubKey), nil)
	w.RawString(`,"created_at":`)
	w.RawString(strconv.FormatInt(ev.CreatedAt.I64(), 10))
	w.RawString(`,"kind":`)
	w.RawString(strconv.Itoa(ev.Kind.ToInt()))
	w.RawString(`,"tags":`)
	if ev.Tags == nil {
		w.RawString(`[]`)
	} else {
		w.Raw(ev.Tags.MarshalTo(nil), nil)
	}
	w.RawString(`,"content":`)
	w.Raw(escape.String(nil, ev.Content), nil)
	w.RawString(`,"sig":`)
	w.Raw(escape.String(nil, ev.Sig), nil)
	w.RawString(`}`)
}

// UnmarshalJSON decodes the wire form. Structural problems (wrong types,
// missing fields) surface from Validate, not here; this only refuses input
// that is not a JSON object.
func (ev *T) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return fmt.Errorf("event is not a JSON object: %s", data)
	}
	return ev.fromResult(r)
}

// FromResult fills in the event from an already parsed gjson object, used by
// the envelope decoder to avoid reparsing.
func FromResult(r gjson.Result) (ev *T, err error) {
	if !r.IsObject() {
		return nil, fmt.Errorf("event is not a JSON object: %s", r.Raw)
	}
	ev = &T{}
	err = ev.fromResult(r)
	return
}

func (ev *T) fromResult(r gjson.Result) error {
	ev.ID = eventid.T(r.Get("id").Str)
	ev.PubKey = r.Get("pubkey").Str
	ev.CreatedAt = timestamp.T(r.Get("created_at").Int())
	ev.Kind = kind.T(r.Get("kind").Uint())
	ev.Content = r.Get("content").Str
	ev.Sig = r.Get("sig").Str
	ev.Tags = make(tags.T, 0)
	for _, tr := range r.Get("tags").Array() {
		var tg tag.T
		for _, el := range tr.Array() {
			tg = append(tg, el.Str)
		}
		ev.Tags = append(ev.Tags, tg)
	}
	return nil
}

// String returns the event as wire format JSON.
func (ev *T) String() string {
	b, _ := ev.MarshalJSON()
	return string(b)
}
