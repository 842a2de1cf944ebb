// Package keystore loads the AES common keys and certificate-chain
// files the Wii/Wii U crypto pipeline needs, from a directory on disk
// rather than compiling Nintendo's proprietary key material into the
// binary.
//
// This generalizes bodgit-wud's own convention (cmd/wud's extract
// command reads "common.key" and "game.key" next to the source image,
// afero.ReadFile'd on demand) to the larger key/cert set the Wii
// signing chain requires: one small file per AES-128 common key, named
// "<KeyName>.key", plus one file per certificate and per RSA private
// key, named after its Issuer.
package keystore

import (
	"fmt"

	"github.com/bodgit/rvth/wiicrypto/aesw"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/rsaw"
	"github.com/spf13/afero"
)

// KeyName identifies one of the eight AES-128 common keys used across
// the Wii and Wii U, devel and retail PKIs.
type KeyName string

const (
	KeyDebug        KeyName = "debug"
	KeyRetail       KeyName = "retail"
	KeyKorean       KeyName = "korean"
	KeyKoreanDebug  KeyName = "korean-debug"
	KeyVWiiDebug    KeyName = "vwii-debug"
	KeyVWiiRetail   KeyName = "vwii-retail"
	KeyWUPDebug     KeyName = "wup-debug"
	KeyWUPRetail    KeyName = "wup-retail"
)

// Store holds the keys and certificates loaded from a directory,
// keyed by their logical name.
type Store struct {
	fs      afero.Fs
	dir     string
	keys    map[KeyName][]byte
	cert    map[cert.Issuer][]byte
	privkey map[cert.Issuer]*rsaw.PrivateKey2048
}

// Open prepares a Store rooted at dir on filesystem. Nothing is read
// from disk until Key, Cert or PrivateKey is called, so a Store can be constructed
// speculatively and only the keys actually needed get touched.
func Open(filesystem afero.Fs, dir string) *Store {
	return &Store{
		fs:      filesystem,
		dir:     dir,
		keys:    make(map[KeyName][]byte),
		cert:    make(map[cert.Issuer][]byte),
		privkey: make(map[cert.Issuer]*rsaw.PrivateKey2048),
	}
}

// Key returns the 16-byte AES common key named name, reading
// "<dir>/<name>.key" on first use and caching the result.
func (s *Store) Key(name KeyName) ([]byte, error) {
	if k, ok := s.keys[name]; ok {
		return k, nil
	}
	path := fmt.Sprintf("%s/%s.key", s.dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading %s: %w", path, err)
	}
	if len(data) != aesw.KeySize {
		return nil, fmt.Errorf("keystore: %s is %d bytes, want %d", path, len(data), aesw.KeySize)
	}
	s.keys[name] = data
	return data, nil
}

// certFileNames maps each Issuer to the on-disk filename its
// certificate is stored under.
var certFileNames = map[cert.Issuer]string{
	cert.IssuerDpkiRoot:      "dpki-root.cert",
	cert.IssuerPpkiRoot:      "ppki-root.cert",
	cert.IssuerDpkiCA:        "dpki-ca.cert",
	cert.IssuerDpkiTicket:    "dpki-xs.cert",
	cert.IssuerDpkiTMD:       "dpki-cp.cert",
	cert.IssuerDpkiMS:        "dpki-ms.cert",
	cert.IssuerDpkiXS04:      "dpki-xs04.cert",
	cert.IssuerDpkiCP05:      "dpki-cp05.cert",
	cert.IssuerPpkiCA:        "ppki-ca.cert",
	cert.IssuerPpkiTicket:    "ppki-xs.cert",
	cert.IssuerPpkiTMD:       "ppki-cp.cert",
	cert.IssuerWUPDpkiCA:     "wup-dpki-ca.cert",
	cert.IssuerWUPDpkiTicket: "wup-dpki-xs.cert",
	cert.IssuerWUPDpkiTMD:    "wup-dpki-cp.cert",
	cert.IssuerWUPDpkiSP:     "wup-dpki-sp.cert",
	cert.IssuerWUPPpkiCA:     "wup-ppki-ca.cert",
	cert.IssuerWUPPpkiTicket: "wup-ppki-xs.cert",
	cert.IssuerWUPPpkiTMD:    "wup-ppki-cp.cert",
}

// Cert returns the raw certificate bytes for issuer, reading
// "<dir>/<issuer-file>" on first use and caching the result.
func (s *Store) Cert(issuer cert.Issuer) ([]byte, error) {
	if c, ok := s.cert[issuer]; ok {
		return c, nil
	}
	name, ok := certFileNames[issuer]
	if !ok {
		return nil, fmt.Errorf("keystore: no file mapping for issuer %v", issuer)
	}
	path := fmt.Sprintf("%s/%s", s.dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading %s: %w", path, err)
	}
	s.cert[issuer] = data
	return data, nil
}

// privKeyFileNames maps an Issuer to the on-disk filename its
// RSA-2048 real-signing private key is stored under. Only devel
// (dpki) ticket/TMD issuers ever need a private key loaded: real
// Nintendo signing keys for any other issuer cannot be regenerated,
// and recryption to a retail/Korean/vWii target fakesigns instead.
var privKeyFileNames = map[cert.Issuer]string{
	cert.IssuerDpkiTicket: "dpki-xs.privkey",
	cert.IssuerDpkiTMD:    "dpki-cp.privkey",
}

// PrivateKey returns the RSA-2048 real-signing private key for issuer,
// reading "<dir>/<issuer-file>" on first use and caching the result.
// The on-disk format is the raw 128-byte P, 128-byte Q, and 4-byte
// big-endian E fields back to back (260 bytes total), matching
// rsaw.PrivateKey2048's fields in order.
func (s *Store) PrivateKey(issuer cert.Issuer) (*rsaw.PrivateKey2048, error) {
	if k, ok := s.privkey[issuer]; ok {
		return k, nil
	}
	name, ok := privKeyFileNames[issuer]
	if !ok {
		return nil, fmt.Errorf("keystore: no private key file mapping for issuer %v", issuer)
	}
	path := fmt.Sprintf("%s/%s", s.dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("keystore: reading %s: %w", path, err)
	}
	if len(data) != 128+128+4 {
		return nil, fmt.Errorf("keystore: %s is %d bytes, want %d", path, len(data), 128+128+4)
	}
	key := &rsaw.PrivateKey2048{
		P: append([]byte(nil), data[0:128]...),
		Q: append([]byte(nil), data[128:256]...),
		E: uint32(data[256])<<24 | uint32(data[257])<<16 | uint32(data[258])<<8 | uint32(data[259]),
	}
	s.privkey[issuer] = key
	return key, nil
}
