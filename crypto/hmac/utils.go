// Package hmac wraps stdlib crypto/hmac behind the hash-constructor
// signature crypto/suite threads through both HKDF and HMAC, so the
// cipher suite never imports crypto/hmac directly.
package hmac

import (
	"crypto/hmac"
	"hash"
)

// Hash returns the HMAC of data under key, using newHash as the
// underlying hash constructor.
func Hash(newHash func() hash.Hash, key, data []byte) []byte {
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil)
}
