// Package envelopes implements the JSON array frames exchanged with relays:
// EVENT, REQ, CLOSE, EOSE, OK, NOTICE and CLOSED, and the demultiplexer that
// sorts an inbound message into the right envelope type.
package envelopes

import (
	"bytes"
)

// E is the interface all message envelopes implement.
type E interface {
	Label() string
	UnmarshalJSON(data []byte) error
	MarshalJSON() ([]byte, error)
}

// ParseMessage sniffs the label of a wire frame and decodes it into the
// matching envelope. Returns nil for anything unrecognizable; a client
// tolerates garbage from a relay by ignoring it.
func ParseMessage(message []byte) E {
	firstComma := bytes.Index(message, []byte{','})
	if firstComma == -1 {
		return nil
	}
	label := message[0:firstComma]

	var v E
	switch {
	case bytes.Contains(label, []byte("EVENT")):
		v = &Event{}
	case bytes.Contains(label, []byte("REQ")):
		v = &Req{}
	case bytes.Contains(label, []byte("NOTICE")):
		x := Notice("")
		v = &x
	case bytes.Contains(label, []byte("EOSE")):
		x := EOSE("")
		v = &x
	case bytes.Contains(label, []byte("OK")):
		v = &OK{}
	case bytes.Contains(label, []byte("CLOSED")):
		v = &Closed{}
	case bytes.Contains(label, []byte("CLOSE")):
		x := Close("")
		v = &x
	default:
		return nil
	}

	if err := v.UnmarshalJSON(message); err != nil {
		return nil
	}
	return v
}
