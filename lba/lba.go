// Package lba implements the byte-level codec shared by every RVT-H
// on-disk structure: big-endian fixed-width integer access and
// LBA/byte conversion. All multi-byte fields on an RVT-H HDD, in an
// NHCD bank table, and in a Wii partition are big-endian.
package lba

import "encoding/binary"

// Size is the sector size used for every LBA on an RVT-H HDD and in
// standalone disc images.
const Size = 512

// ToBytes converts an LBA count to a byte offset.
func ToBytes(lba uint32) int64 {
	return int64(lba) * Size
}

// FromBytes converts a byte offset to an LBA count, truncating any
// partial sector.
func FromBytes(off int64) uint32 {
	return uint32(off / Size)
}

// GetU16BE reads a big-endian uint16 from the start of b.
func GetU16BE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// PutU16BE writes v as a big-endian uint16 to the start of b.
func PutU16BE(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

// GetU32BE reads a big-endian uint32 from the start of b.
func GetU32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// PutU32BE writes v as a big-endian uint32 to the start of b.
func PutU32BE(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

// GetU64BE reads a big-endian uint64 from the start of b.
func GetU64BE(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// PutU64BE writes v as a big-endian uint64 to the start of b.
func PutU64BE(b []byte, v uint64) {
	binary.BigEndian.PutUint64(b, v)
}

// GetU34Rshift2 reads a 34-bit value stored rshifted by 2 in a
// big-endian uint32, as used for Wii volume-group/partition/partition-header
// offsets, and returns the real byte offset.
func GetU34Rshift2(b []byte) int64 {
	return int64(GetU32BE(b)) << 2
}

// PutU34Rshift2 writes off, rshifted by 2, as a big-endian uint32.
func PutU34Rshift2(b []byte, off int64) {
	PutU32BE(b, uint32(off>>2))
}
