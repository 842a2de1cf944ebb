package transfer

import (
	"fmt"
	"time"

	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/wiicrypto/rsaw"
)

// idExp and idPub are the RSA-2048 public key RVT-H Reader stamps its
// "recrypted by this tool" identifier blocks with — not a Nintendo
// signing key, just this tool's own informational watermark, so unlike
// every other certificate in the signing chain it's safe to embed as a
// literal rather than load from a keystore.
const idExp = 0x00010001

var idPub = [256]byte{
	0xB5, 0xBC, 0x70, 0x4C, 0x75, 0x3D, 0xCF, 0x02, 0x67, 0x04, 0x1A, 0xAB, 0xC3, 0xC8, 0x20, 0xD6,
	0x51, 0xE8, 0xE2, 0xCC, 0x6A, 0x08, 0xCF, 0x70, 0xEE, 0xCF, 0x45, 0x20, 0x27, 0xCC, 0x81, 0x77,
	0x98, 0xBB, 0x22, 0x82, 0x61, 0xA4, 0x1B, 0x52, 0x19, 0xC0, 0x3F, 0x50, 0xAF, 0xCE, 0x6E, 0xAB,
	0x22, 0xF8, 0xC2, 0x23, 0xC0, 0xCF, 0x18, 0x82, 0x72, 0xDD, 0xFC, 0xF9, 0xB9, 0x7C, 0x73, 0x1E,
	0xBF, 0xAB, 0xDF, 0x49, 0x1F, 0xCC, 0x73, 0x53, 0xDF, 0xB9, 0x01, 0xDA, 0x13, 0x5C, 0x11, 0x9E,
	0xA0, 0x1E, 0x7B, 0xFA, 0x61, 0x2F, 0x50, 0xB1, 0xDA, 0x98, 0x8F, 0xB5, 0x29, 0x60, 0x30, 0x44,
	0x80, 0x01, 0x20, 0xE1, 0x03, 0x24, 0xFB, 0xBA, 0xDC, 0x07, 0xA0, 0xBB, 0x57, 0x6F, 0x37, 0x38,
	0xD2, 0xD2, 0x44, 0x81, 0x5C, 0xE5, 0xF4, 0xF6, 0xDC, 0x68, 0x58, 0x19, 0x3D, 0x8B, 0xD8, 0xEC,
	0x5D, 0x8F, 0x46, 0x11, 0x46, 0x0E, 0x2C, 0xDA, 0x00, 0x47, 0x0B, 0xD7, 0x24, 0x70, 0x7E, 0x5B,
	0x6E, 0xEF, 0x7B, 0xF0, 0x3C, 0x5A, 0x55, 0xD4, 0x42, 0xA2, 0x03, 0x88, 0x0C, 0x2C, 0xB2, 0xEB,
	0x98, 0x96, 0x15, 0xAD, 0xEE, 0x99, 0xAD, 0x9D, 0x1B, 0xD6, 0x16, 0xF8, 0x70, 0x55, 0xF1, 0x43,
	0x12, 0x5B, 0x2B, 0x51, 0x1C, 0x09, 0x05, 0xBC, 0xD3, 0xEA, 0xD9, 0x35, 0xEA, 0x20, 0x54, 0x1D,
	0x86, 0xF2, 0xC1, 0xD1, 0x60, 0xEE, 0x66, 0x39, 0xA2, 0x75, 0xCB, 0x65, 0xEC, 0x53, 0x24, 0x5C,
	0x8F, 0x06, 0x25, 0xD9, 0xC1, 0x88, 0x03, 0xEC, 0xC3, 0x0A, 0xC2, 0x72, 0x49, 0x4C, 0x45, 0xEF,
	0xAB, 0x2F, 0x66, 0xA1, 0x3C, 0xDC, 0x28, 0x39, 0xFD, 0x64, 0x33, 0xDF, 0x72, 0x43, 0xD9, 0x65,
	0x2B, 0xDF, 0x94, 0x14, 0x0A, 0x7B, 0xE0, 0xBA, 0x40, 0x29, 0xC5, 0x23, 0x30, 0x2C, 0x14, 0xC1,
}

// idHeaderMagic is the obfuscated prefix every identifier block
// starts with, each byte XORed with 0x69 before being written.
var idHeaderMagic = []byte{0x1B, 0x1F, 0x1D, 0x01, 0x1D, 0x06, 0x06, 0x05, 0x53, 0x49}

// idBlockSize is the size of one identifier block, the RSA-encrypted
// result stamped to disk. The cleartext createID encrypts into it is
// 16 bytes shorter.
const idBlockSize = 256

// createID builds and RSA-encrypts one identifier block: an obfuscated
// magic, a human-readable note plus local timestamp, and the first
// 0x68 bytes of the disc header the block is being stamped into —
// enough to identify which disc a recrypted or extracted image came
// from without exposing anything sensitive, since decrypting it needs
// nobody's key but the tool's own.
func createID(discHeader []byte, extra string) ([idBlockSize]byte, error) {
	var out [idBlockSize]byte

	buf := make([]byte, idBlockSize-16)
	for i := range buf {
		buf[i] = 0xFF
	}

	copy(buf, idHeaderMagic)
	for i := range idHeaderMagic {
		buf[i] ^= 0x69
	}

	now := time.Now()
	_, offset := now.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	tzval := fmt.Sprintf("%s%02d%02d", sign, offset/3600, (offset/60)%60)
	ts := now.Format("2006/01/02 15:04:05")

	var note string
	if extra != "" {
		note = fmt.Sprintf("%s, %s %s", extra, ts, tzval)
	} else {
		note = fmt.Sprintf("%s %s", ts, tzval)
	}
	n := copy(buf[len(idHeaderMagic):0x40], note)
	_ = n

	n2 := copy(buf[0x40:], discHeader)
	_ = n2

	enc, err := rsaw.Encrypt(idPub[:], idExp, buf)
	if err != nil {
		return out, err
	}
	copy(out[:], enc)
	return out, nil
}

// StampID writes a createID block into the last 256 bytes of a Wii
// partition header, iff that area is still all-zero — an already
// recrypted or previously stamped partition is left alone, since
// overwriting a prior note with a new one would lose history for no
// benefit. header must be exactly wii.PartitionHeaderSize bytes, the
// buffer recryptOnePartition is about to write back to disk.
func StampID(bank *disc.BankInfo, pte *disc.PartitionEntry, header []byte) error {
	region := header[len(header)-idBlockSize:]
	if !isAllZero(region) {
		return nil
	}
	extra := fmt.Sprintf("%dp%d -> %dp%d", pte.VG, pte.PTOrig, pte.VG, pte.PT)
	id, err := createID(bank.Header.Bytes()[:0x68], extra)
	if err != nil {
		return err
	}
	copy(region, id[:])
	return nil
}

// StampDiscID writes a createID block at offset 0x480 of a GCN bank's
// disc header (the 256 bytes following the 0x400 sector's first 128
// bytes), iff that area is still all-zero. GCN banks have no
// partition/ticket/TMD structure to hang the stamp off of, so the
// identifier goes straight into the disc header sector instead.
func StampDiscID(bank *disc.BankInfo) error {
	sector := make([]byte, disc.HeaderSize)
	if _, err := bank.Reader.Read(sector, lba.FromBytes(0x400), disc.HeaderSize/lba.Size); err != nil {
		return err
	}
	region := sector[0x80:0x180]
	if !isAllZero(region) {
		return nil
	}
	id, err := createID(bank.Header.Bytes()[:0x68], "")
	if err != nil {
		return err
	}
	copy(region, id[:])
	_, err = bank.Reader.Write(sector, lba.FromBytes(0x400), disc.HeaderSize/lba.Size)
	return err
}
