package cert

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/bodgit/rvth/wiicrypto/hashw"
	"github.com/bodgit/rvth/wiicrypto/rsaw"
)

// Status is the outcome of verifying a ticket/TMD/certificate
// signature, ported from libwiicrypto's Sig_Status bitfield.
type Status int

const (
	StatusOK Status = iota
	StatusInvalid
	StatusFake
	StatusUnknown
)

var (
	pkcs1DERSHA1 = []byte{
		0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2B, 0x0E,
		0x03, 0x02, 0x1A, 0x05, 0x00, 0x04, 0x14,
	}
	pkcs1DERSHA256 = []byte{
		0x30, 0x31, 0x30, 0x0D, 0x06, 0x09, 0x60, 0x86,
		0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05,
		0x00, 0x04, 0x20,
	}
)

// CertLookup resolves an Issuer to its raw certificate bytes; callers
// implement this over a wiicrypto/keystore.Store.
type CertLookup func(issuer Issuer) ([]byte, error)

// Verify checks the RSA signature covering data (a ticket, TMD, or
// certificate whose first sigBlockSize bytes are its own signature
// block), resolving the signing certificate through lookup. It follows
// cert_verify's exact 8-step algorithm: determine the signature
// length, read the issuer name, resolve Root against both PKIs when
// the issuer field is literally "Root", decrypt the signature with the
// issuer's public key, validate the PKCS#1 v1.5 padding, and compare
// the embedded digest against a fresh hash of the signed region.
func Verify(data []byte, lookup CertLookup) (Status, error) {
	if len(data) <= 4 {
		return StatusUnknown, errors.New("cert: data too short to verify")
	}

	sigType := SigType(binary.BigEndian.Uint32(data[0:4]))
	var sigLen int
	var isSHA2 bool
	switch sigType {
	case SigTypeRSA4096SHA1:
		sigLen, isSHA2 = 4096/8, false
	case SigTypeRSA4096SHA256:
		sigLen, isSHA2 = 4096/8, true
	case SigTypeRSA2048SHA1:
		sigLen, isSHA2 = 2048/8, false
	case SigTypeRSA2048SHA256:
		sigLen, isSHA2 = 2048/8, true
	default:
		return StatusUnknown, errors.New("cert: unsupported signature type")
	}

	issuerOff := 4 + sigLen + 0x3C
	if len(data) < issuerOff+64 {
		return StatusUnknown, errShortCert
	}
	issuerName := trimNUL(data[issuerOff : issuerOff+64])

	var issuerCert []byte
	var err error
	if issuerName == "Root" {
		issuerCert, err = lookup(IssuerDpkiRoot)
		if err != nil {
			return StatusUnknown, err
		}
		status, verr := verifyAgainst(issuerCert, data, sigLen, isSHA2)
		if verr != nil {
			return StatusUnknown, verr
		}
		if status == StatusOK {
			return status, nil
		}
		issuerCert, err = lookup(IssuerPpkiRoot)
		if err != nil {
			return status, nil
		}
		return verifyAgainst(issuerCert, data, sigLen, isSHA2)
	}

	issuer := FromName(issuerName)
	if issuer == IssuerUnknown {
		return StatusUnknown, errors.New("cert: unknown issuer " + issuerName)
	}
	issuerCert, err = lookup(issuer)
	if err != nil {
		return StatusUnknown, err
	}
	return verifyAgainst(issuerCert, data, sigLen, isSHA2)
}

// cStringEqualPrefix reports whether a and b agree byte-for-byte up to
// (and including) the first 0x00 byte they share at the same index —
// the C strncmp semantics the original hash-fakesign detection relies
// on, as opposed to a fixed-length comparison.
func cStringEqualPrefix(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
		if a[i] == 0 {
			return true
		}
	}
	return true
}

func verifyAgainst(issuerCert, data []byte, sigLen int, isSHA2 bool) (Status, error) {
	pub, err := ParsePublicKey(issuerCert)
	if err != nil {
		return StatusUnknown, err
	}
	if len(pub.Modulus) != sigLen {
		return StatusUnknown, errors.New("cert: issuer key length does not match signature length")
	}

	sig := data[4 : 4+sigLen]
	buf, err := rsaw.DecryptSignature(pub.Modulus, pub.Exponent, sig)
	if err != nil {
		return StatusUnknown, err
	}

	der := pkcs1DERSHA1
	digestSize := hashw.Size20
	if isSHA2 {
		der = pkcs1DERSHA256
		digestSize = hashw.Size32
	}

	derOffset := sigLen - 1 - len(der) - digestSize
	hashOffset := sigLen - digestSize
	dataHashOffset := 4 + sigLen + 0x3C

	invalid := false

	if buf[0] != 0x00 || buf[1] > 0x02 {
		invalid = true
	} else if buf[1] < 0x02 {
		ps := byte(0x00)
		if buf[1] == 0x01 {
			ps = 0xFF
		}
		for i := 2; i < derOffset; i++ {
			if buf[i] != ps {
				invalid = true
				break
			}
		}
	}

	if buf[1] == 0x02 {
		if buf[hashOffset-1] != 0x00 {
			invalid = true
		}
	} else {
		if buf[derOffset] != 0x00 {
			invalid = true
		}
		if !bytes.Equal(buf[derOffset+1:derOffset+1+len(der)], der) {
			invalid = true
		}
	}

	var digest []byte
	if isSHA2 {
		d := hashw.SHA256(data[dataHashOffset:])
		digest = d[:]
	} else {
		d := hashw.SHA1(data[dataHashOffset:])
		digest = d[:]
	}

	if !bytes.Equal(digest, buf[hashOffset:hashOffset+digestSize]) {
		// The original firmware bug this mirrors compared the embedded
		// hash as a NUL-terminated C string (strncmp) rather than a
		// fixed-length buffer (memcmp): a signature whose brute-forced
		// digest happens to share a common leading run with the real
		// hash up to a shared 0x00 byte was accepted regardless of
		// what followed. Fakesigned tickets/TMDs exploit exactly that.
		if !isSHA2 && cStringEqualPrefix(digest, buf[hashOffset:hashOffset+digestSize]) {
			return StatusFake, nil
		}
		return StatusInvalid, nil
	}

	if invalid {
		return StatusInvalid, nil
	}
	return StatusOK, nil
}
