// Package eventid is the hex string form of the SHA256 hash of the canonical
// encoding of an event.
package eventid

import (
	"fmt"

	"github.com/nostric/connectr/pkg/escape"
	"github.com/nostric/connectr/pkg/hex"
)

// T is an event ID, 64 hexadecimal characters.
type T string

func (ei T) String() string { return string(ei) }

// Bytes returns the raw 32 byte hash, or nil if the string is not valid hex.
func (ei T) Bytes() (b []byte) {
	b, err := hex.Dec(string(ei))
	if err != nil {
		return nil
	}
	return
}

func (ei T) MarshalJSON() (b []byte, err error) {
	return escape.String(nil, string(ei)), nil
}

// New validates a string as an event ID and returns it coerced to the type.
func New(s string) (ei T, err error) {
	ei = T(s)
	if err = ei.Validate(); err != nil {
		ei = ""
		return
	}
	return
}

// Validate checks the T is 64 characters of valid hexadecimal.
func (ei T) Validate() (err error) {
	if _, err = hex.Dec(string(ei)); err != nil {
		return
	}
	if len(ei) != 64 {
		return fmt.Errorf("event ID invalid length: got %d expect 64", len(ei))
	}
	return
}
