// Package crypto holds hash-function defaults shared by the concrete
// suite implementations in crypto/suite, so HKDF and HMAC construction
// isn't duplicated per call site.
package crypto

import "crypto/sha256"

// DefaultHashFunc is the hash constructor every default-suite HKDF and
// HMAC call derives its output from.
var DefaultHashFunc = sha256.New

// HMACSHA256Size is the output size of DefaultHashFunc, kept as a named
// constant so callers sizing buffers don't hardcode 32.
const HMACSHA256Size = sha256.Size
