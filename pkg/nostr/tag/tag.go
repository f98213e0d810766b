// Package tag implements a single nostr event tag, a list of strings with a
// literal ordering where the first element is the key.
package tag

import (
	"strings"

	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/normalize"
)

// The tag position meanings so they are clear when reading.
const (
	Key = iota
	Value
	Relay
)

// T is a list of strings with a literal ordering.
//
// Not a set, there can be repeating elements.
type T []string

// StartsWith checks a tag has the same initial set of elements.
//
// The last element is treated specially in that it is considered to match if
// the candidate has the same initial substring as its corresponding element.
func (t T) StartsWith(prefix []string) bool {
	prefixLen := len(prefix)
	if prefixLen > len(t) {
		return false
	}
	for i := 0; i < prefixLen-1; i++ {
		if prefix[i] != t[i] {
			return false
		}
	}
	// last element only needs to prefix-match
	return strings.HasPrefix(t[prefixLen-1], prefix[prefixLen-1])
}

// Key returns the first element of the tag.
func (t T) Key() string {
	if len(t) > Key {
		return t[Key]
	}
	return ""
}

// Value returns the second element of the tag.
func (t T) Value() string {
	if len(t) > Value {
		return t[Value]
	}
	return ""
}

// Relay returns the third element of e and p tags, normalized as a relay URL.
func (t T) Relay() string {
	if (t.Key() == "e" || t.Key() == "p") && len(t) > Relay {
		return normalize.URL(t[Relay])
	}
	return ""
}

// Clone returns a copy sharing no memory with the original.
func (t T) Clone() T {
	clone := make(T, len(t))
	copy(clone, t)
	return clone
}

// MarshalTo appends the tag to dst as a JSON array of strings. String
// escaping is as described in RFC8259 as this is used in the canonical
// preimage of the event ID.
func (t T) MarshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, s := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = escape.String(dst, s)
	}
	return append(dst, ']')
}

func (t T) String() string { return string(t.MarshalTo(nil)) }
