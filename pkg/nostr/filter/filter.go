// Package filter implements the query predicate of the protocol, used both
// for subscription requests on the wire and for local cache queries. The
// matching semantics are identical in both directions.
package filter

import (
	"strconv"

	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// T is a set of conditions an event must all satisfy to match. Nil fields
// are wildcards.
type T struct {
	IDs     []string     `json:"ids,omitempty"`
	Kinds   []kind.T     `json:"kinds,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Tags    TagMap       `json:"-"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

// TagMap maps a single-letter tag name to the set of acceptable values.
type TagMap map[string][]string

// Matches reports whether every condition in the filter holds for the event.
func (f T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, ev.ID.String()) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	for name, v := range f.Tags {
		if v != nil && !ev.Tags.ContainsAny(name, v...) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// Equal reports whether two filters accept the same events, treating the
// slice fields as unordered sets.
func Equal(a, b T) bool {
	if !similar(a.Kinds, b.Kinds) ||
		!similar(a.IDs, b.IDs) ||
		!similar(a.Authors, b.Authors) {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for name, av := range a.Tags {
		bv, ok := b.Tags[name]
		if !ok || !similar(av, bv) {
			return false
		}
	}
	if !pointerValuesEqual(a.Since, b.Since) ||
		!pointerValuesEqual(a.Until, b.Until) {
		return false
	}
	return true
}

// Clone returns a deep copy of the filter.
func (f T) Clone() T {
	clone := T{
		IDs:     slices.Clone(f.IDs),
		Kinds:   slices.Clone(f.Kinds),
		Authors: slices.Clone(f.Authors),
		Limit:   f.Limit,
	}
	if f.Tags != nil {
		clone.Tags = make(TagMap, len(f.Tags))
		for k, v := range f.Tags {
			clone.Tags[k] = slices.Clone(v)
		}
	}
	if f.Since != nil {
		since := *f.Since
		clone.Since = &since
	}
	if f.Until != nil {
		until := *f.Until
		clone.Until = &until
	}
	return clone
}

// MarshalEasyJSON writes the filter in the wire form used inside REQ
// envelopes, with the tag map expanded to "#x" keys.
func (f T) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	first := true
	comma := func() {
		if !first {
			w.RawByte(',')
		}
		first = false
	}
	if f.IDs != nil {
		comma()
		w.RawString(`"ids":`)
		writeStrings(w, f.IDs)
	}
	if f.Kinds != nil {
		comma()
		w.RawString(`"kinds":[`)
		for i, k := range f.Kinds {
			if i > 0 {
				w.RawByte(',')
			}
			w.RawString(strconv.Itoa(k.ToInt()))
		}
		w.RawByte(']')
	}
	if f.Authors != nil {
		comma()
		w.RawString(`"authors":`)
		writeStrings(w, f.Authors)
	}
	for name, v := range f.Tags {
		comma()
		w.Raw(escape.String(nil, "#"+name), nil)
		w.RawByte(':')
		writeStrings(w, v)
	}
	if f.Since != nil {
		comma()
		w.RawString(`"since":` + strconv.FormatInt(f.Since.I64(), 10))
	}
	if f.Until != nil {
		comma()
		w.RawString(`"until":` + strconv.FormatInt(f.Until.I64(), 10))
	}
	if f.Limit > 0 {
		comma()
		w.RawString(`"limit":` + strconv.Itoa(f.Limit))
	}
	w.RawByte('}')
}

func (f T) String() string {
	w := jwriter.Writer{}
	f.MarshalEasyJSON(&w)
	b, _ := w.BuildBytes()
	return string(b)
}

func writeStrings(w *jwriter.Writer, ss []string) {
	w.RawByte('[')
	for i, s := range ss {
		if i > 0 {
			w.RawByte(',')
		}
		w.Raw(escape.String(nil, s), nil)
	}
	w.RawByte(']')
}

func pointerValuesEqual[V comparable](a, b *V) bool {
	if a == nil && b == nil {
		return true
	}
	if a != nil && b != nil {
		return *a == *b
	}
	return false
}

func similar[E constraints.Ordered](as, bs []E) bool {
	if len(as) != len(bs) {
		return false
	}
	for _, a := range as {
		if !slices.Contains(bs, a) {
			return false
		}
	}
	return true
}
