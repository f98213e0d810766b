package client

import (
	"github.com/nostric/connectr/pkg/errs"
)

// Error classes returned by client operations. Callers discriminate with
// errors.Is; the underlying sentinels live in pkg/errs so every layer of the
// stack wraps the same values.
var (
	ErrValidation      = errs.Validation
	ErrSignature       = errs.Signature
	ErrCrypto          = errs.Crypto
	ErrNoRelays        = errs.NoRelays
	ErrFeatureDisabled = errs.FeatureDisabled
	ErrInitialization  = errs.Initialization
)
