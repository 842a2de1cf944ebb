// Package sigtools implements the ticket/TMD re-encryption, fakesigning,
// and real-signing operations layered on top of wiicrypto/cert and
// wiicrypto/rsaw, ported from libwiicrypto/sig_tools.c and cert.c's
// cert_fakesign_*/cert_realsign_ticketOrTMD.
package sigtools

import (
	"encoding/binary"
	"errors"

	"github.com/bodgit/rvth/wiicrypto/aesw"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/hashw"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/rsaw"
	"github.com/bodgit/rvth/wiicrypto/wii"
)

// CryptoType tags which AES keyset and issuer a ticket's title key is
// currently encrypted under, mirroring RVL_CryptoType_e.
type CryptoType int

const (
	CryptoUnknown CryptoType = iota
	CryptoNone
	CryptoDebug
	CryptoRetail
	CryptoKorean
	CryptoVWii
)

func (c CryptoType) String() string {
	switch c {
	case CryptoNone:
		return "None"
	case CryptoDebug:
		return "Debug"
	case CryptoRetail:
		return "Retail"
	case CryptoKorean:
		return "Korean"
	case CryptoVWii:
		return "vWii"
	default:
		return "Unknown"
	}
}

// SigType tags whether a signature was produced with the devel (debug)
// or retail signing key, mirroring RVL_SigType_e.
type SigType int

const (
	SigTypeUnknown SigType = iota
	SigTypeDebug
	SigTypeRetail
)

// fromKeyForIssuerAndIndex implements sig_recrypt_ticket's 'from' key
// inference: which of the eight common keys a ticket's title key is
// currently encrypted under, derived from its issuer string and
// common-key-index byte.
func fromKeyForIssuerAndIndex(issuer cert.Issuer, commonKeyIndex byte) (keystore.KeyName, error) {
	switch issuer {
	case cert.IssuerPpkiTicket:
		switch commonKeyIndex {
		case wii.CommonKeyIndexKorean:
			return keystore.KeyKorean, nil
		case wii.CommonKeyIndexVWii:
			return keystore.KeyVWiiRetail, nil
		default:
			return keystore.KeyRetail, nil
		}
	case cert.IssuerDpkiTicket:
		switch commonKeyIndex {
		case wii.CommonKeyIndexKorean:
			return keystore.KeyKoreanDebug, nil
		case wii.CommonKeyIndexVWii:
			return keystore.KeyVWiiDebug, nil
		default:
			return keystore.KeyDebug, nil
		}
	case cert.IssuerWUPPpkiTicket:
		return keystore.KeyWUPRetail, nil
	case cert.IssuerWUPDpkiTicket:
		return keystore.KeyWUPDebug, nil
	default:
		return "", errors.New("sigtools: unknown ticket issuer")
	}
}

// issuerForToKey returns the issuer string a ticket must declare once
// its title key is encrypted under toKey.
func issuerForToKey(toKey keystore.KeyName) (cert.Issuer, error) {
	switch toKey {
	case keystore.KeyRetail, keystore.KeyKorean, keystore.KeyVWiiRetail:
		return cert.IssuerPpkiTicket, nil
	case keystore.KeyDebug, keystore.KeyKoreanDebug, keystore.KeyVWiiDebug:
		return cert.IssuerDpkiTicket, nil
	case keystore.KeyWUPRetail:
		return cert.IssuerWUPPpkiTicket, nil
	case keystore.KeyWUPDebug:
		return cert.IssuerWUPDpkiTicket, nil
	default:
		return cert.IssuerUnknown, errors.New("sigtools: unsupported target key")
	}
}

// DecryptTitleKey decrypts and returns the 16-byte title key embedded
// in ticket, per decrypt_title_key: the encrypting common key is
// selected from the ticket's issuer and common-key-index fields, and
// the IV is the 64-bit title ID followed by eight zero bytes.
func DecryptTitleKey(ticket []byte, store *keystore.Store) ([]byte, error) {
	if len(ticket) < wii.TicketSize {
		return nil, errors.New("sigtools: ticket buffer too short")
	}

	issuerName := trimNUL(ticket[wii.TicketOffIssuer : wii.TicketOffIssuer+wii.TicketOffIssuerLen])
	issuer := cert.FromName(issuerName)
	commonKeyIndex := ticket[wii.TicketOffCommonKeyIdx]

	fromKey, err := fromKeyForIssuerAndIndex(issuer, commonKeyIndex)
	if err != nil {
		return nil, err
	}
	key, err := store.Key(fromKey)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, 16)
	copy(iv, ticket[wii.TicketOffTitleID:wii.TicketOffTitleID+8])

	titleKey := make([]byte, 16)
	copy(titleKey, ticket[wii.TicketOffEncTitleKey:wii.TicketOffEncTitleKey+16])

	block, err := aesw.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if err := aesw.DecryptBlock(titleKey, block, iv); err != nil {
		return nil, err
	}
	return titleKey, nil
}

// RecryptTicket re-encrypts ticket's title key (the 16 bytes at
// wii.TicketOffEncTitleKey) from its current common key to toKey,
// updating the issuer field to match, but does NOT re-sign the
// ticket — callers must call FakesignTicket or RealsignTicketOrTMD
// afterwards, exactly as sig_recrypt_ticket documents.
func RecryptTicket(ticket []byte, store *keystore.Store, toKey keystore.KeyName) error {
	if len(ticket) < wii.TicketSize {
		return errors.New("sigtools: ticket buffer too short")
	}

	issuerName := trimNUL(ticket[wii.TicketOffIssuer : wii.TicketOffIssuer+wii.TicketOffIssuerLen])
	issuer := cert.FromName(issuerName)
	commonKeyIndex := ticket[wii.TicketOffCommonKeyIdx]

	fromKey, err := fromKeyForIssuerAndIndex(issuer, commonKeyIndex)
	if err != nil {
		return err
	}
	if fromKey == toKey {
		return nil
	}

	titleKey, err := DecryptTitleKey(ticket, store)
	if err != nil {
		return err
	}

	keyTo, err := store.Key(toKey)
	if err != nil {
		return err
	}
	toIssuer, err := issuerForToKey(toKey)
	if err != nil {
		return err
	}

	// IV is the 64-bit title ID followed by zeroes.
	iv := make([]byte, 16)
	copy(iv, ticket[wii.TicketOffTitleID:wii.TicketOffTitleID+8])

	blockTo, err := aesw.NewCipher(keyTo)
	if err != nil {
		return err
	}
	if err := aesw.EncryptBlock(titleKey, blockTo, iv); err != nil {
		return err
	}

	copy(ticket[wii.TicketOffEncTitleKey:wii.TicketOffEncTitleKey+16], titleKey)

	clearIssuer(ticket[wii.TicketOffIssuer : wii.TicketOffIssuer+wii.TicketOffIssuerLen])
	copy(ticket[wii.TicketOffIssuer:], []byte(toIssuer.Name()))

	return nil
}

func clearIssuer(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// ticketBruteForceOffset is the byte offset, within a ticket, of the 4-byte
// counter fakesigning brute-forces; sig_tools/cert.c use an unused
// region of the content-access-permission bitfield since disc
// partitions have only one content.
const ticketBruteForceOffset = wii.TicketOffContentAccess + 0x3A

// tmdBruteForceOffset is the equivalent offset within a TMD header's
// reserved region.
const tmdBruteForceOffset = wii.TMDOffReserved + 2*4

// FakesignTicket zeroes ticket's signature and brute-forces the 4-byte
// counter at the (otherwise unused) content-access-permission offset
// until the SHA-1 hash of the signed region starts with a 0x00 byte,
// exploiting the same NUL-terminated-string comparison bug
// cert.Verify's fakesigned-detection models.
func FakesignTicket(ticket []byte) error {
	if len(ticket) < wii.TicketSize {
		return errors.New("sigtools: ticket buffer too short")
	}
	if binary.BigEndian.Uint32(ticket[0:4]) != uint32(cert.SigTypeRSA2048SHA1) {
		return errors.New("sigtools: only RSA-2048/SHA-1 tickets can be fakesigned")
	}

	clearRange(ticket, 4, 4+256)
	clearRange(ticket, 4+256, 4+256+0x3C)

	return bruteForceZeroPrefix(ticket, wii.TicketOffIssuer, ticketBruteForceOffset)
}

// FakesignTMD is FakesignTicket's TMD-header counterpart.
func FakesignTMD(tmd []byte) error {
	if len(tmd) < wii.TMDHeaderSize {
		return errors.New("sigtools: TMD buffer too short")
	}
	if binary.BigEndian.Uint32(tmd[0:4]) != uint32(cert.SigTypeRSA2048SHA1) {
		return errors.New("sigtools: only RSA-2048/SHA-1 TMDs can be fakesigned")
	}

	clearRange(tmd, 4, 4+256)
	clearRange(tmd, 4+256, 4+256+0x3C)

	return bruteForceZeroPrefix(tmd, wii.TMDOffIssuer, tmdBruteForceOffset)
}

func clearRange(buf []byte, start, end int) {
	for i := start; i < end; i++ {
		buf[i] = 0
	}
}

// bruteForceZeroPrefix increments the big-endian uint32 counter at
// counterOffset until sha1(buf[signOffset:]) starts with 0x00,
// matching sig_tools.c's do/while brute-force loop. It gives up (and
// returns an error) if the counter wraps back to zero, which for a
// true 1/256 chance per attempt essentially never happens in practice
// but is the honest failure mode of an unbounded brute force.
func bruteForceZeroPrefix(buf []byte, signOffset, counterOffset int) error {
	var counter uint32
	for {
		binary.BigEndian.PutUint32(buf[counterOffset:counterOffset+4], counter)
		digest := hashw.SHA1(buf[signOffset:])
		if digest[0] == 0 {
			return nil
		}
		counter++
		if counter == 0 {
			return errors.New("sigtools: brute force counter wrapped without finding a zero-prefixed hash")
		}
	}
}

// RealsignTicketOrTMD writes an RSA-2048 signature into the signature
// block that occupies the first 0x140 bytes of data (a ticket or TMD),
// per cert_realsign_ticketOrTMD: the signature type selects SHA-1 or
// SHA-256, the padding is zeroed, and the signed hash covers
// data[0x140:], the issuer onwards.
func RealsignTicketOrTMD(data []byte, key *rsaw.PrivateKey2048) error {
	if len(data) < 0x140 {
		return errors.New("sigtools: data too short to sign")
	}

	sigType := cert.SigType(binary.BigEndian.Uint32(data[0:4]))
	var sha256 bool
	switch sigType {
	case cert.SigTypeRSA2048SHA1:
		sha256 = false
	case cert.SigTypeRSA2048SHA256:
		sha256 = true
	default:
		return errors.New("sigtools: unsupported signature type for real signing")
	}

	clearRange(data, 4+256, 4+256+0x3C)

	var digest []byte
	if sha256 {
		d := hashw.SHA256(data[0x140:])
		digest = d[:]
	} else {
		d := hashw.SHA1(data[0x140:])
		digest = d[:]
	}

	return rsaw.Sign2048(data[4:4+256], key, digest, sha256)
}
