package cert

import (
	"encoding/binary"
	"errors"
)

// KeyType enumerates the public-key algorithms a certificate's public
// key block can hold.
type KeyType uint32

const (
	KeyTypeRSA4096 KeyType = 0
	KeyTypeRSA2048 KeyType = 1
	KeyTypeECC     KeyType = 2
)

// PublicKey is a parsed certificate public key: enough to perform the
// raw RSA decrypt-signature operation against it.
type PublicKey struct {
	Type     KeyType
	Modulus  []byte
	Exponent uint32
}

var errShortCert = errors.New("cert: certificate buffer is too short")

// sigBlockSize returns the signature block size (type + sig + padding
// + issuer) for a certificate/ticket/TMD whose leading 4 bytes declare
// sigType, or an error if the type is unsupported. isDummy reports whether
// sigType is the "dummy" (unsigned root) type, in which case the
// dummy-sized block is returned instead.
func sigBlockSize(sigType SigType) (size int, isDummy bool, err error) {
	switch sigType {
	case 0:
		return 4 + 0x3C + 64, true, nil // RVL_Sig_Dummy
	case SigTypeRSA4096SHA1, SigTypeRSA4096SHA256:
		return SigBlockSizeRSA4096, false, nil
	case SigTypeRSA2048SHA1, SigTypeRSA2048SHA256:
		return SigBlockSizeRSA2048, false, nil
	default:
		return 0, false, errors.New("cert: unsupported signature type")
	}
}

// ParsePublicKey parses the public-key block of a raw certificate
// buffer, skipping over its own leading signature block.
func ParsePublicKey(certBuf []byte) (*PublicKey, error) {
	if len(certBuf) < 4 {
		return nil, errShortCert
	}
	sigType := SigType(binary.BigEndian.Uint32(certBuf[0:4]))
	sigSize, _, err := sigBlockSize(sigType)
	if err != nil {
		return nil, err
	}
	if len(certBuf) < sigSize+4 {
		return nil, errShortCert
	}
	pub := certBuf[sigSize:]
	if len(pub) < 4 {
		return nil, errShortCert
	}
	keyType := KeyType(binary.BigEndian.Uint32(pub[0:4]))

	// Public key block layout: type(4) + child_cert_identity(64) +
	// unknown(4) + modulus(N) + exponent(4) + padding.
	const headerLen = 4 + 64 + 4
	switch keyType {
	case KeyTypeRSA4096:
		if len(pub) < headerLen+512+4 {
			return nil, errShortCert
		}
		modulus := pub[headerLen : headerLen+512]
		exponent := binary.BigEndian.Uint32(pub[headerLen+512 : headerLen+512+4])
		return &PublicKey{Type: keyType, Modulus: modulus, Exponent: exponent}, nil
	case KeyTypeRSA2048:
		if len(pub) < headerLen+256+4 {
			return nil, errShortCert
		}
		modulus := pub[headerLen : headerLen+256]
		exponent := binary.BigEndian.Uint32(pub[headerLen+256 : headerLen+256+4])
		return &PublicKey{Type: keyType, Modulus: modulus, Exponent: exponent}, nil
	default:
		return nil, errors.New("cert: unsupported public key type")
	}
}

// SignatureIssuer extracts the 64-byte, NUL-padded issuer field following the
// signature block of a ticket, TMD, or certificate buffer whose
// leading 4 bytes declare its own signature type.
func SignatureIssuer(buf []byte) (string, error) {
	if len(buf) < 4 {
		return "", errShortCert
	}
	sigType := SigType(binary.BigEndian.Uint32(buf[0:4]))
	sigSize, _, err := sigBlockSize(sigType)
	if err != nil {
		return "", err
	}
	issuerOff := sigSize - 64
	if len(buf) < issuerOff+64 {
		return "", errShortCert
	}
	return trimNUL(buf[issuerOff : issuerOff+64]), nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
