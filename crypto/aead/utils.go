// Package aead implements the AEAD primitive the cipher suite exposes:
// AES-256-GCM with a 12-byte nonce and 16-byte tag.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

const (
	KeyLen   = 32
	NonceLen = 12
	TagLen   = 16
)

var ErrCiphertextTooShort = errors.New("aead: ciphertext shorter than tag")

// Encrypt returns ciphertext || tag, so ciphertext_len = plaintext_len + TagLen.
func Encrypt(key [KeyLen]byte, nonce [NonceLen]byte, ad, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce[:], plaintext, ad), nil
}

// Decrypt reverses Encrypt. Returns ErrCiphertextTooShort when ciphertext
// is shorter than TagLen, and the GCM open error when authentication
// fails.
func Decrypt(key [KeyLen]byte, nonce [NonceLen]byte, ad, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < TagLen {
		return nil, ErrCiphertextTooShort
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce[:], ciphertext, ad)
}

func newGCM(key [KeyLen]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceLen)
}
