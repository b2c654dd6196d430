// Package hkdf wraps golang.org/x/crypto/hkdf behind the hash-constructor
// signature crypto/suite threads through its HKDF method, so the cipher
// suite never imports golang.org/x/crypto/hkdf directly.
package hkdf

import (
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KDF fills buffer with HKDF output derived from keyMaterial under
// salt/info, using newHash as the underlying hash constructor.
func KDF(newHash func() hash.Hash, keyMaterial, salt, info, buffer []byte) (int, error) {
	reader := hkdf.New(newHash, keyMaterial, salt, info)
	return io.ReadFull(reader, buffer)
}
