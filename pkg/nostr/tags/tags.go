// Package tags implements the list of tags on an event.
package tags

import (
	"github.com/nostric/connectr/pkg/nostr/tag"
)

// T is a list of tag.T - which are lists of string elements with ordering and
// no uniqueness constraint (not a set).
type T []tag.T

// GetFirst gets the first tag in tags that matches the prefix, see
// [tag.T.StartsWith].
func (t T) GetFirst(tagPrefix []string) *tag.T {
	for _, v := range t {
		if v.StartsWith(tagPrefix) {
			return &v
		}
	}
	return nil
}

// GetLast gets the last tag in tags that matches the prefix.
func (t T) GetLast(tagPrefix []string) *tag.T {
	for i := len(t) - 1; i >= 0; i-- {
		v := t[i]
		if v.StartsWith(tagPrefix) {
			return &v
		}
	}
	return nil
}

// GetAll gets all the tags that match the prefix.
func (t T) GetAll(tagPrefix ...string) T {
	result := make(T, 0, len(t))
	for _, v := range t {
		if v.StartsWith(tagPrefix) {
			result = append(result, v)
		}
	}
	return result
}

// FilterOut removes all tags that match the prefix.
func (t T) FilterOut(tagPrefix []string) T {
	filtered := make(T, 0, len(t))
	for _, v := range t {
		if !v.StartsWith(tagPrefix) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// AppendUnique appends a tag if it doesn't exist yet, otherwise does nothing.
// The uniqueness comparison is done based only on the first 2 elements of the
// tag.
func (t T) AppendUnique(tg tag.T) T {
	n := len(tg)
	if n > 2 {
		n = 2
	}
	if t.GetFirst(tg[:n]) == nil {
		return append(t, tg)
	}
	return t
}

// ContainsAny returns true if any tag with the given name has any of the
// given values in its second position.
func (t T) ContainsAny(tagName string, values ...string) bool {
	for _, v := range t {
		if len(v) < 2 {
			continue
		}
		if v.Key() != tagName {
			continue
		}
		for _, candidate := range values {
			if v.Value() == candidate {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the tag list.
func (t T) Clone() T {
	clone := make(T, len(t))
	for i := range t {
		clone[i] = t[i].Clone()
	}
	return clone
}

// MarshalTo appends the tags to dst as a JSON array of arrays of strings,
// escaped as in RFC8259 for the canonical event preimage.
func (t T) MarshalTo(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tg := range t {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = tg.MarshalTo(dst)
	}
	return append(dst, ']')
}

func (t T) String() string { return string(t.MarshalTo(nil)) }
