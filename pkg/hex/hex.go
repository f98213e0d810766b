// Package hex provides shorthands for the stdlib hex encoder as used
// throughout the nostr packages, where keys, event IDs and signatures are
// all hex encoded strings.
package hex

import (
	"encoding/hex"
)

var (
	Enc = hex.EncodeToString
	Dec = hex.DecodeString
)
