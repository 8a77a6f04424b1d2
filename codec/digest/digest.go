// Package digest implements the message-digest algorithms described in
// original_source/src/pw/pw_digest.h's DigestType enum using Go's
// standard crypto/* hash implementations in place of OpenSSL's EVP_MD.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // kept for parity with pw_digest.h's RIPEMD160 entry
)

// Type mirrors pw::digest::DigestType, trimmed to the algorithms Go's
// standard library (plus x/crypto) still implements; MD2, DSS/DSS1 and
// MDC2 have no supported Go equivalent and are dropped.
type Type int

const (
	Invalid Type = iota
	MD5
	SHA1
	SHA224
	SHA256
	SHA384
	SHA512
	RIPEMD160
)

// New returns a fresh hash.Hash for type, or nil if unsupported.
func New(t Type) hash.Hash {
	switch t {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA224:
		return sha256.New224()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	case RIPEMD160:
		return ripemd160.New()
	default:
		return nil
	}
}

// Size returns the digest size in bytes for type, or 0 if unsupported,
// the Go equivalent of pw::digest::Digest::s_getHashSize.
func Size(t Type) int {
	h := New(t)
	if h == nil {
		return 0
	}
	return h.Size()
}

// Sum is the one-shot convenience wrapper for pw::digest::Digest::s_execute.
func Sum(t Type, in []byte) ([]byte, bool) {
	h := New(t)
	if h == nil {
		return nil, false
	}
	h.Write(in)
	return h.Sum(nil), true
}
