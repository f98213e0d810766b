package keys

import (
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/nostr/event"
	"github.com/nostric/connectr/pkg/nostr/kind"
	"github.com/nostric/connectr/pkg/nostr/tags"
	"github.com/nostric/connectr/pkg/nostr/timestamp"
)

// Signer holds the identity key pair. A watch-only Signer carries only the
// public key and refuses every operation that needs the secret.
type Signer struct {
	secret    string // empty for watch-only identities
	pubkey    string
	createdAt timestamp.T
}

// Generate produces a new random identity.
func Generate() (s *Signer, err error) {
	sk := GeneratePrivateKey()
	if sk == "" {
		return nil, errs.Wrap(errs.Crypto, "random source failed")
	}
	return Import(sk)
}

// Import validates a 64 character hex secret key and derives its public key.
func Import(skHex string) (s *Signer, err error) {
	if len(skHex) != 64 {
		return nil, errs.Wrap(errs.Validation,
			"secret key must be 64 hex characters, got %d", len(skHex))
	}
	if !IsValid32ByteHex(skHex) {
		return nil, errs.Wrap(errs.Validation,
			"secret key is not valid lowercase hex")
	}
	var pk string
	if pk, err = GetPublicKey(skHex); err != nil {
		return nil, errs.Wrap(errs.Crypto, "pubkey derivation: %v", err)
	}
	return &Signer{
		secret:    skHex,
		pubkey:    pk,
		createdAt: timestamp.Now(),
	}, nil
}

// WatchOnly creates a read-only identity from a public key. Signing
// operations on it fail with errs.Crypto.
func WatchOnly(pkHex string) (s *Signer, err error) {
	if !IsValid32ByteHex(pkHex) {
		return nil, errs.Wrap(errs.Validation,
			"public key must be 64 lowercase hex characters")
	}
	return &Signer{pubkey: pkHex, createdAt: timestamp.Now()}, nil
}

// PublicKey returns the x-only public key in hexadecimal.
func (s *Signer) PublicKey() string { return s.pubkey }

// CreatedAt returns when the identity was created or imported.
func (s *Signer) CreatedAt() timestamp.T { return s.createdAt }

// ReadOnly reports whether the identity lacks a secret key.
func (s *Signer) ReadOnly() bool { return s.secret == "" }

// RequireSecret returns the secret key for internal use by the signing
// path. It is the only accessor for the secret material.
func (s *Signer) RequireSecret() (sk string, err error) {
	if s.secret == "" {
		return "", errs.Wrap(errs.Crypto, "identity is watch-only")
	}
	return s.secret, nil
}

// Sign fills in PubKey, ID and Sig on the event using the held secret.
func (s *Signer) Sign(ev *event.T) (err error) {
	var sk string
	if sk, err = s.RequireSecret(); err != nil {
		return
	}
	if err = ev.Sign(sk); err != nil {
		return errs.Wrap(errs.Crypto, "signing: %v", err)
	}
	return nil
}

// Build constructs a signed event of the given kind, stamped with the
// current time.
func (s *Signer) Build(k kind.T, tt tags.T, content string) (ev *event.T,
	err error) {

	ev = &event.T{
		CreatedAt: timestamp.Now(),
		Kind:      k,
		Tags:      tt,
		Content:   content,
	}
	if err = s.Sign(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// String never exposes the secret.
func (s *Signer) String() string { return "signer:" + s.pubkey }
