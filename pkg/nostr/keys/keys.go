// Package keys generates and imports the signing identity and derives the
// public key. The secret key never leaves this package except through the
// signing path.
package keys

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nostric/connectr/pkg/hex"
)

// GeneratePrivateKey returns a random scalar in [1, N-1] as 64 hex
// characters, or an empty string if the random source fails.
func GeneratePrivateKey() string {
	params := btcec.S256().Params()
	one := new(big.Int).SetInt64(1)

	b := make([]byte, params.BitSize/8+8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return ""
	}

	k := new(big.Int).SetBytes(b)
	n := new(big.Int).Sub(params.N, one)
	k.Mod(k, n)
	k.Add(k, one)

	return fmt.Sprintf("%064x", k.Bytes())
}

// GetPublicKey derives the x-only public key from a hex secret key.
func GetPublicKey(sk string) (string, error) {
	b, err := hex.Dec(sk)
	if err != nil {
		return "", err
	}
	_, pk := btcec.PrivKeyFromBytes(b)
	return hex.Enc(schnorr.SerializePubKey(pk)), nil
}

// IsValid32ByteHex reports whether pk is 64 lowercase hex characters
// decoding to 32 bytes, the form of both public keys and event IDs.
func IsValid32ByteHex(pk string) bool {
	if strings.ToLower(pk) != pk {
		return false
	}
	dec, _ := hex.Dec(pk)
	return len(dec) == 32
}
