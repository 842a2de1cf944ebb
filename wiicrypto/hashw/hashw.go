// Package hashw wraps the SHA-1 and SHA-256 digests used by the Wii
// hash-tree verifier and the WUD partition table's TOC checksum
// (bodgit-wud's newPartitionTable reads and checks one such SHA-1 sum
// directly against crypto/sha1).
package hashw

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
)

// Size20 and Size32 are the SHA-1 and SHA-256 digest sizes.
const (
	Size20 = sha1.Size
	Size32 = sha256.Size
)

// SHA1 returns the SHA-1 digest of data.
func SHA1(data []byte) [Size20]byte {
	return sha1.Sum(data)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [Size32]byte {
	return sha256.Sum256(data)
}

// EqualSHA1 reports whether digest matches the SHA-1 sum of data,
// without the caller needing to slice a fixed array into a byte slice.
func EqualSHA1(data []byte, digest []byte) bool {
	sum := sha1.Sum(data)
	return bytes.Equal(sum[:], digest)
}

// EqualSHA256 reports whether digest matches the SHA-256 sum of data.
func EqualSHA256(data []byte, digest []byte) bool {
	sum := sha256.Sum256(data)
	return bytes.Equal(sum[:], digest)
}
