// Package nip4 implements the encrypted direct message scheme of kind 4
// events: an ECDH shared secret over secp256k1 between the sender's secret
// key and the recipient's public key, AES-256-CBC over the plaintext, and a
// "<base64(ciphertext)>?iv=<base64(iv)>" payload in the event content.
package nip4

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nostric/connectr/pkg/errs"
	"github.com/nostric/connectr/pkg/hex"
	"lukechampine.com/frand"
)

// ComputeSharedSecret derives the 32 byte conversation key between the
// holder of sk and the holder of pub. The derivation is symmetric: both
// parties arrive at the same secret.
func ComputeSharedSecret(pub string, sk string) (secret []byte, err error) {
	var skBytes []byte
	if skBytes, err = hex.Dec(sk); err != nil {
		return nil, errs.Wrap(errs.Crypto, "invalid secret key hex: %v", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(skBytes)

	// x-only pubkey, assume the even-Y point as in BIP-340
	var pubBytes []byte
	if pubBytes, err = hex.Dec("02" + pub); err != nil {
		return nil, errs.Wrap(errs.Crypto, "invalid public key hex: %v", err)
	}
	var pubKey *btcec.PublicKey
	if pubKey, err = btcec.ParsePubKey(pubBytes); err != nil {
		return nil, errs.Wrap(errs.Crypto, "invalid public key: %v", err)
	}
	return btcec.GenerateSharedSecret(privKey, pubKey), nil
}

// Encrypt encrypts the message with the shared secret and returns the
// content string to place in a kind 4 event.
func Encrypt(message string, key []byte) (content string, err error) {
	var block cipher.Block
	if block, err = aes.NewCipher(key); err != nil {
		return "", errs.Wrap(errs.Crypto, "cipher: %v", err)
	}
	iv := frand.Bytes(aes.BlockSize)

	// pkcs5 pad to the block size
	padding := block.BlockSize() - len(message)%block.BlockSize()
	padded := make([]byte, len(message)+padding)
	copy(padded, message)
	for i := len(message); i < len(padded); i++ {
		padded[i] = byte(padding)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext) +
		"?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt. The error distinguishes a malformed payload from
// a failed decryption only in its message; both are reported, never fatal to
// the caller's pipeline.
func Decrypt(content string, key []byte) (message []byte, err error) {
	parts := strings.Split(content, "?iv=")
	if len(parts) < 2 {
		return nil, errs.Wrap(errs.Validation,
			"missing iv separator in encrypted payload")
	}
	var ciphertext, iv []byte
	if ciphertext, err = base64.StdEncoding.DecodeString(parts[0]); err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid base64 ciphertext: %v", err)
	}
	if iv, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
		return nil, errs.Wrap(errs.Validation, "invalid base64 iv: %v", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, errs.Wrap(errs.Validation, "iv must be 16 bytes")
	}
	var block cipher.Block
	if block, err = aes.NewCipher(key); err != nil {
		return nil, errs.Wrap(errs.Crypto, "cipher: %v", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errs.Wrap(errs.Validation,
			"ciphertext length %d is not a multiple of the block size",
			len(ciphertext))
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	padding := int(padded[len(padded)-1])
	if padding == 0 || padding > block.BlockSize() || padding > len(padded) {
		return nil, errs.Wrap(errs.Crypto, "invalid padding after decryption")
	}
	if !bytes.Equal(padded[len(padded)-padding:],
		bytes.Repeat([]byte{byte(padding)}, padding)) {
		return nil, errs.Wrap(errs.Crypto, "invalid padding after decryption")
	}
	return padded[:len(padded)-padding], nil
}

// SharedSecretHint is a short non-reversible tag of a conversation key for
// logging without disclosing it.
func SharedSecretHint(secret []byte) string {
	if len(secret) < 4 {
		return "????"
	}
	return fmt.Sprintf("%x", secret[:2])
}
