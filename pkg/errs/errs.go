// Package errs defines the error classes of the client engine. Components
// wrap these sentinels so callers can sort failures with errors.Is without
// depending on message text.
package errs

import (
	"errors"
	"fmt"
)

var (
	// Validation is malformed input structure, local and never retried.
	Validation = errors.New("validation error")
	// Signature is a cryptographic verification failure, distinct from
	// Validation so callers can tell tampering from malformation.
	Signature = errors.New("signature invalid")
	// Crypto is a key generation, import or signing infrastructure failure,
	// fatal to the attempted operation but not the service.
	Crypto = errors.New("crypto failure")
	// NoRelays means a publish or subscribe found zero connected relays.
	NoRelays = errors.New("no relays available")
	// FeatureDisabled means the operation's capability flag is off.
	FeatureDisabled = errors.New("feature disabled")
	// Initialization means the service failed to reach ready state.
	Initialization = errors.New("initialization failed")
)

// Wrap attaches a class sentinel to a formatted message so that both
// errors.Is(err, class) and the human readable cause survive.
func Wrap(class error, format string, a ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{class}, a...)...)
}
