// Package rsaw wraps the raw RSA public-key "decrypt signature"
// operation and the RSA-2048 private-key signing operation the Wii
// certificate chain uses, ported from libwiicrypto/rsaw_nettle.c. The
// library deliberately operates on raw big-endian modulus/exponent
// bytes rather than crypto/rsa.PublicKey/PrivateKey, since the on-disk
// certificate format stores exactly that and nothing resembling a
// standard ASN.1 key.
//
// No third-party RSA/bignum library appears anywhere in the example
// corpus — none of the disc-image or ROM-identification tools handle
// public-key crypto at all — so this package is built directly on
// math/big, crypto/rand, and (for Encrypt's PKCS#1 v1.5 padding)
// crypto/rsa, the ecosystem-standard choice absent a pack idiom to
// follow.
package rsaw

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"math/big"
)

// DecryptSignature performs the raw RSA public-key operation
// sig^exponent mod modulus, the "decryption" step used to recover the
// PKCS#1-padded digest from a certificate/ticket/TMD signature.
func DecryptSignature(modulus []byte, exponent uint32, sig []byte) ([]byte, error) {
	if len(sig) != len(modulus) {
		return nil, errors.New("rsaw: signature size does not match modulus size")
	}

	n := new(big.Int).SetBytes(modulus)
	e := new(big.Int).SetUint64(uint64(exponent))
	c := new(big.Int).SetBytes(sig)

	m := new(big.Int).Exp(c, e, n)

	out := make([]byte, len(modulus))
	b := m.Bytes()
	if len(b) > len(out) {
		return nil, errors.New("rsaw: decrypted value too large for modulus size")
	}
	copy(out[len(out)-len(b):], b)
	return out, nil
}

// Encrypt PKCS#1 v1.5 type-2 pads cleartext and performs the RSA
// public-key encryption operation against modulus/exponent, matching
// rsaw_encrypt, which seeds a yarrow-256 CSPRNG and calls nettle's
// rsa_encrypt for genuine randomized type-2 padding rather than a bare
// modexp. crypto/rand stands in for the original's yarrow256 instance.
func Encrypt(modulus []byte, exponent uint32, cleartext []byte) ([]byte, error) {
	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: int(exponent),
	}
	return rsa.EncryptPKCS1v15(rand.Reader, pub, cleartext)
}

// PrivateKey2048 is an RSA-2048 private key in the same (p, q, e) form
// libwiicrypto's RSA2048PrivateKey stores; d, and the CRT parameters,
// are derived at use time rather than stored.
type PrivateKey2048 struct {
	P []byte // 128 bytes
	Q []byte // 128 bytes
	E uint32
}

// pkcs1DERSHA1 and pkcs1DERSHA256 are the ASN.1 DigestInfo prefixes
// PKCS#1 v1.5 signatures embed before the raw hash, identical to the
// tables cert.c hard-codes.
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

// Sign2048 produces a PKCS#1 v1.5, block-type-0x01 RSA-2048 signature
// (buf must be 256 bytes) of hash, using key's p/q/e to derive the
// private exponent d = e^-1 mod (p-1)(q-1).
func Sign2048(buf []byte, key *PrivateKey2048, hash []byte, sha256 bool) error {
	if len(buf) != 256 {
		return errors.New("rsaw: signature buffer must be 256 bytes")
	}

	der := pkcs1DERSHA1
	if sha256 {
		der = pkcs1DERSHA256
	}

	em, err := emsaPKCS1v15Encode(der, hash, len(buf))
	if err != nil {
		return err
	}

	p := new(big.Int).SetBytes(key.P)
	q := new(big.Int).SetBytes(key.Q)
	e := new(big.Int).SetUint64(uint64(key.E))
	n := new(big.Int).Mul(p, q)

	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)
	phi := new(big.Int).Mul(pMinus1, qMinus1)

	d := new(big.Int).ModInverse(e, phi)
	if d == nil {
		return errors.New("rsaw: exponent has no inverse mod phi(n); invalid key")
	}

	m := new(big.Int).SetBytes(em)
	s := new(big.Int).Exp(m, d, n)

	b := s.Bytes()
	if len(b) > len(buf) {
		return errors.New("rsaw: signature overflowed buffer")
	}
	for i := range buf {
		buf[i] = 0
	}
	copy(buf[len(buf)-len(b):], b)
	return nil
}

// emsaPKCS1v15Encode builds the 0x00 0x01 0xFF..0xFF 0x00 DER hash
// block-type-1 encoding cert_realsign_ticketOrTMD relies on.
func emsaPKCS1v15Encode(der, hash []byte, emLen int) ([]byte, error) {
	tLen := len(der) + len(hash)
	if emLen < tLen+11 {
		return nil, errors.New("rsaw: intended encoded message length too short")
	}
	em := make([]byte, emLen)
	em[0] = 0x00
	em[1] = 0x01
	psLen := emLen - tLen - 3
	for i := 0; i < psLen; i++ {
		em[2+i] = 0xFF
	}
	em[2+psLen] = 0x00
	copy(em[3+psLen:], der)
	copy(em[3+psLen+len(der):], hash)
	return em, nil
}

// GenerateKey2048 is a test/tooling helper that produces a fresh
// RSA-2048 key in the raw p/q/e form Sign2048 consumes. Not used by
// any on-disk format (real Nintendo signing keys can never be
// regenerated), but useful for round-trip testing of Sign2048 and
// DecryptSignature against each other.
func GenerateKey2048() (*PrivateKey2048, []byte, error) {
	const bits = 1024
	p, err := rand.Prime(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	q, err := rand.Prime(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	n := new(big.Int).Mul(p, q)

	pb := make([]byte, 128)
	qb := make([]byte, 128)
	copy(pb[128-len(p.Bytes()):], p.Bytes())
	copy(qb[128-len(q.Bytes()):], q.Bytes())

	modulus := make([]byte, 256)
	nb := n.Bytes()
	copy(modulus[256-len(nb):], nb)

	return &PrivateKey2048{P: pb, Q: qb, E: 0x10001}, modulus, nil
}
