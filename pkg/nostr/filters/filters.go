// Package filters is a list of filter.T that matches an event when any
// element does.
package filters

import (
	"github.com/mailru/easyjson/jwriter"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/filter"
)

type T []filter.T

// Match reports whether any filter in the list matches the event.
func (ff T) Match(ev *event.T) bool {
	for _, f := range ff {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// Clone deep-copies the filter list.
func (ff T) Clone() T {
	clone := make(T, len(ff))
	for i := range ff {
		clone[i] = ff[i].Clone()
	}
	return clone
}

func (ff T) String() string {
	w := jwriter.Writer{}
	w.RawByte('[')
	for i := range ff {
		if i > 0 {
			w.RawByte(',')
		}
		ff[i].MarshalEasyJSON(&w)
	}
	w.RawByte(']')
	b, _ := w.BuildBytes()
	return string(b)
}
