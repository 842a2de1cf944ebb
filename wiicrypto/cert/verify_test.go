package cert

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/bodgit/rvth/wiicrypto/hashw"
	"github.com/bodgit/rvth/wiicrypto/rsaw"
)

var errNoSuchIssuer = errors.New("no such issuer in test fixture")

// buildRSA2048Cert assembles a minimal RVL_Cert_RSA2048-shaped buffer:
// a dummy (unsigned) signature block naming issuer "Root", followed by
// an RSA-2048 public key block for modulus/exponent.
func buildRSA2048Cert(issuer string, modulus []byte, exponent uint32) []byte {
	const dummySigSize = 0x80
	buf := make([]byte, dummySigSize+0x180)
	// Dummy signature: type=0, padding, issuer at 0x040.
	copy(buf[0x040:], issuer)
	// Public key block immediately follows the dummy signature.
	binary.BigEndian.PutUint32(buf[dummySigSize:], uint32(KeyTypeRSA2048))
	copy(buf[dummySigSize+4+64+4:], modulus)
	binary.BigEndian.PutUint32(buf[dummySigSize+4+64+4+256:], exponent)
	return buf
}

func TestVerifyRealsignedTicket(t *testing.T) {
	key, modulus, err := rsaw.GenerateKey2048()
	if err != nil {
		t.Fatalf("GenerateKey2048: %v", err)
	}

	rootCert := buildRSA2048Cert("Root", modulus, key.E)

	ticket := make([]byte, 0x2A4)
	binary.BigEndian.PutUint32(ticket[0:4], uint32(SigTypeRSA2048SHA1))
	copy(ticket[0x140:], "Root")

	digest := hashw.SHA1(ticket[0x140:])
	if err := rsaw.Sign2048(ticket[4:4+256], key, digest[:], false); err != nil {
		t.Fatalf("Sign2048: %v", err)
	}

	lookup := func(issuer Issuer) ([]byte, error) {
		if issuer == IssuerDpkiRoot {
			return rootCert, nil
		}
		return nil, errNoSuchIssuer
	}

	status, err := Verify(ticket, lookup)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status != StatusOK {
		t.Errorf("Verify status = %v, want StatusOK", status)
	}
}

func TestVerifyTamperedTicketFails(t *testing.T) {
	key, modulus, err := rsaw.GenerateKey2048()
	if err != nil {
		t.Fatalf("GenerateKey2048: %v", err)
	}

	rootCert := buildRSA2048Cert("Root", modulus, key.E)

	ticket := make([]byte, 0x2A4)
	binary.BigEndian.PutUint32(ticket[0:4], uint32(SigTypeRSA2048SHA1))
	copy(ticket[0x140:], "Root")

	digest := hashw.SHA1(ticket[0x140:])
	if err := rsaw.Sign2048(ticket[4:4+256], key, digest[:], false); err != nil {
		t.Fatalf("Sign2048: %v", err)
	}

	// Tamper with signed data after signing.
	ticket[0x200] ^= 0xFF

	lookup := func(issuer Issuer) ([]byte, error) {
		if issuer == IssuerDpkiRoot {
			return rootCert, nil
		}
		return nil, errNoSuchIssuer
	}

	status, err := Verify(ticket, lookup)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if status == StatusOK {
		t.Errorf("Verify status = OK for tampered ticket, want non-OK")
	}
}
