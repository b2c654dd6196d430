// Package fingerprint derives a human-verifiable safety number for an
// identity key, the same stretched-hash display Signal clients use for
// out-of-band key verification — a natural companion to the
// account/identity-key machinery this repo implements.
package fingerprint

import (
	"crypto/sha512"
	"encoding/binary"

	"e2ee/addr"
	"e2ee/crypto/key25519"
)

// Digits stretches an identity key plus its owner's address into a
// 30-digit decimal fingerprint.
func Digits(pubKey key25519.PublicKey, owner addr.Address) (*[30]int, error) {
	digest := append(pubKey[:], []byte(owner.String())...)
	hash := sha512.New()
	for i := 0; i < 5200; i++ {
		if _, err := hash.Write(digest); err != nil {
			return nil, err
		}
		digest = hash.Sum(nil)
		hash.Reset()
	}

	var result [30]byte
	copy(result[:], digest[:30])

	var out [30]int
	for i := 0; i < 6; i++ {
		chunk := result[i*5 : (i+1)*5]
		num := binary.BigEndian.Uint64(append([]byte{0, 0, 0}, chunk...)) % 100000
		for j := 4; j >= 0; j-- {
			out[i*5+j] = int(num % 10)
			num /= 10
		}
	}

	return &out, nil
}
