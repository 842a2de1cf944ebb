// Package cert implements the Wii/Wii U certificate-chain types and
// issuer table: the signature/public-key binary layouts and the
// devel(dpki)/retail(ppki) issuer enumeration a ticket or TMD's
// "Issuer" field is matched against, ported from
// libwiicrypto/cert_store.h.
package cert

import "errors"

// ErrUnknownIssuer is returned when a ticket or TMD names an issuer
// that isn't in the PKI table, or isn't valid for that use (e.g. a TMD
// issuer string where a ticket issuer was expected).
var ErrUnknownIssuer = errors.New("cert: unknown or invalid issuer")

// Issuer enumerates every certificate issuer RVT-H Reader images
// reference, split across the Wii and Wii U, devel (dpki) and retail
// (ppki) public-key infrastructures.
type Issuer int

const (
	IssuerUnknown Issuer = iota

	// Root certificates.
	IssuerDpkiRoot
	IssuerPpkiRoot

	// Wii dpki (devel/debug).
	IssuerDpkiCA
	IssuerDpkiTicket
	IssuerDpkiTMD
	IssuerDpkiMS
	IssuerDpkiXS04
	IssuerDpkiCP05

	// Wii ppki (prod/retail).
	IssuerPpkiCA
	IssuerPpkiTicket
	IssuerPpkiTMD

	// Wii U dpki (devel/debug).
	IssuerWUPDpkiCA
	IssuerWUPDpkiTicket
	IssuerWUPDpkiTMD
	IssuerWUPDpkiSP

	// Wii U ppki (prod/retail).
	IssuerWUPPpkiCA
	IssuerWUPPpkiTicket
	IssuerWUPPpkiTMD

	issuerMax
)

// PKI identifies which public-key infrastructure an Issuer belongs to.
type PKI int

const (
	PKIUnknown PKI = iota
	PKIDpki
	PKIPpki
)

// issuerNames maps an Issuer to the exact ASCII string stored in a
// ticket or TMD's Issuer field, in the same order as
// libwiicrypto's RVL_Cert_Issuers table.
var issuerNames = map[Issuer]string{
	IssuerDpkiRoot:      "Root",
	IssuerPpkiRoot:      "Root",
	IssuerDpkiCA:        "Root-CA00000002",
	IssuerDpkiTicket:    "Root-CA00000002-XS00000006",
	IssuerDpkiTMD:       "Root-CA00000002-CP00000007",
	IssuerDpkiMS:        "Root-CA00000002-MS00000003",
	IssuerDpkiXS04:      "Root-CA00000002-XS00000004",
	IssuerDpkiCP05:      "Root-CA00000002-CP00000005",
	IssuerPpkiCA:        "Root-CA00000001",
	IssuerPpkiTicket:    "Root-CA00000001-XS00000003",
	IssuerPpkiTMD:       "Root-CA00000001-CP00000004",
	IssuerWUPDpkiCA:     "Root-CA00000004",
	IssuerWUPDpkiTicket: "Root-CA00000004-XS00000009",
	IssuerWUPDpkiTMD:    "Root-CA00000004-CP0000000a",
	IssuerWUPDpkiSP:     "Root-CA00000004-SP00000009",
	IssuerWUPPpkiCA:     "Root-CA00000003",
	IssuerWUPPpkiTicket: "Root-CA00000003-XS0000000c",
	IssuerWUPPpkiTMD:    "Root-CA00000003-CP0000000b",
}

var namesToIssuer = func() map[string]Issuer {
	m := make(map[string]Issuer, len(issuerNames))
	for issuer, name := range issuerNames {
		// Root is ambiguous between dpki/ppki; resolved by PKI hint in
		// FromNameWithPKI, so don't let the unqualified map pick one
		// arbitrarily for plain FromName lookups of "Root".
		if name == "Root" {
			continue
		}
		m[name] = issuer
	}
	return m
}()

// issuerPKI maps each Issuer to its owning PKI.
var issuerPKI = map[Issuer]PKI{
	IssuerDpkiRoot:      PKIDpki,
	IssuerDpkiCA:        PKIDpki,
	IssuerDpkiTicket:    PKIDpki,
	IssuerDpkiTMD:       PKIDpki,
	IssuerDpkiMS:        PKIDpki,
	IssuerDpkiXS04:      PKIDpki,
	IssuerDpkiCP05:      PKIDpki,
	IssuerPpkiRoot:      PKIPpki,
	IssuerPpkiCA:        PKIPpki,
	IssuerPpkiTicket:    PKIPpki,
	IssuerPpkiTMD:       PKIPpki,
	IssuerWUPDpkiCA:     PKIDpki,
	IssuerWUPDpkiTicket: PKIDpki,
	IssuerWUPDpkiTMD:    PKIDpki,
	IssuerWUPDpkiSP:     PKIDpki,
	IssuerWUPPpkiCA:     PKIPpki,
	IssuerWUPPpkiTicket: PKIPpki,
	IssuerWUPPpkiTMD:    PKIPpki,
}

// Name returns issuer's exact on-disk ASCII representation.
func (i Issuer) Name() string {
	return issuerNames[i]
}

// PKI returns the public-key infrastructure that owns issuer.
func (i Issuer) PKI() PKI {
	return issuerPKI[i]
}

// FromNameWithPKI resolves an issuer string to an Issuer, disambiguating
// "Root" by the given PKI hint; pass PKIUnknown to search every PKI
// (returns IssuerUnknown if the name matches more than one PKI's root
// under that search, since "Root" alone is ambiguous without a hint).
func FromNameWithPKI(name string, pki PKI) Issuer {
	if name == "Root" {
		switch pki {
		case PKIDpki:
			return IssuerDpkiRoot
		case PKIPpki:
			return IssuerPpkiRoot
		default:
			return IssuerUnknown
		}
	}
	if issuer, ok := namesToIssuer[name]; ok {
		if pki == PKIUnknown || issuer.PKI() == pki {
			return issuer
		}
	}
	return IssuerUnknown
}

// FromName resolves an issuer string without a PKI hint. "Root" is not
// resolvable this way; use FromNameWithPKI.
func FromName(name string) Issuer {
	return FromNameWithPKI(name, PKIUnknown)
}

// SigType enumerates the certificate/ticket/TMD signature algorithms.
type SigType uint32

const (
	SigTypeRSA4096SHA1    SigType = 0x00010000
	SigTypeRSA2048SHA1    SigType = 0x00010001
	SigTypeECC            SigType = 0x00010002
	SigTypeRSA4096SHA256  SigType = 0x00010003
	SigTypeRSA2048SHA256  SigType = 0x00010004
	SigTypeFlagDiscTicket SigType = 0x00020000
)

// Signature payload lengths, in bytes, excluding the 4-byte type field.
const (
	SigLengthRSA4096 = 512
	SigLengthRSA2048 = 256
	SigLengthECC     = 64
)

// Full on-disk signature block sizes: type + sig + padding + 64-byte
// issuer, padded to a 64-byte boundary.
const (
	SigBlockSizeRSA4096 = 4 + SigLengthRSA4096 + 0x3C + 64 // 0x280
	SigBlockSizeRSA2048 = 4 + SigLengthRSA2048 + 0x3C + 64 // 0x180
)
