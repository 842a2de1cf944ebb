package keystore

import (
	"bytes"
	"testing"

	"github.com/bodgit/rvth/wiicrypto/aesw"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/spf13/afero"
)

func TestKeyReadsAndCaches(t *testing.T) {
	mem := afero.NewMemMapFs()
	want := bytes.Repeat([]byte{0x7}, aesw.KeySize)
	if err := afero.WriteFile(mem, "/keys/retail.key", want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := Open(mem, "/keys")
	got, err := s.Key(KeyRetail)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Key = %x, want %x", got, want)
	}

	// remove the backing file; a cached Store must not need it again.
	if err := mem.Remove("/keys/retail.key"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Key(KeyRetail); err != nil {
		t.Errorf("Key (cached): %v", err)
	}
}

func TestKeyRejectsWrongSize(t *testing.T) {
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/keys/debug.key", []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := Open(mem, "/keys")
	if _, err := s.Key(KeyDebug); err == nil {
		t.Error("Key(wrong size): want error, got nil")
	}
}

func TestKeyMissingFile(t *testing.T) {
	s := Open(afero.NewMemMapFs(), "/keys")
	if _, err := s.Key(KeyKorean); err == nil {
		t.Error("Key(missing file): want error, got nil")
	}
}

func TestCertReadsKnownIssuer(t *testing.T) {
	mem := afero.NewMemMapFs()
	want := []byte("a certificate")
	if err := afero.WriteFile(mem, "/keys/ppki-ca.cert", want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := Open(mem, "/keys")
	got, err := s.Cert(cert.IssuerPpkiCA)
	if err != nil {
		t.Fatalf("Cert: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Cert = %q, want %q", got, want)
	}
}

func TestCertUnknownIssuer(t *testing.T) {
	s := Open(afero.NewMemMapFs(), "/keys")
	if _, err := s.Cert(cert.Issuer(9999)); err == nil {
		t.Error("Cert(unknown issuer): want error, got nil")
	}
}

func TestPrivateKeyReadsAndParses(t *testing.T) {
	mem := afero.NewMemMapFs()
	p := bytes.Repeat([]byte{0x11}, 128)
	q := bytes.Repeat([]byte{0x22}, 128)
	e := []byte{0x00, 0x01, 0x00, 0x01}
	data := append(append(append([]byte(nil), p...), q...), e...)
	if err := afero.WriteFile(mem, "/keys/dpki-xs.privkey", data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := Open(mem, "/keys")
	key, err := s.PrivateKey(cert.IssuerDpkiTicket)
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if !bytes.Equal(key.P, p) || !bytes.Equal(key.Q, q) || key.E != 0x10001 {
		t.Errorf("PrivateKey = %+v, want P/Q above and E=0x10001", key)
	}
}

func TestPrivateKeyRejectsWrongSize(t *testing.T) {
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/keys/dpki-xs.privkey", []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := Open(mem, "/keys")
	if _, err := s.PrivateKey(cert.IssuerDpkiTicket); err == nil {
		t.Error("PrivateKey(wrong size): want error, got nil")
	}
}

func TestPrivateKeyNoMappingForIssuer(t *testing.T) {
	s := Open(afero.NewMemMapFs(), "/keys")
	if _, err := s.PrivateKey(cert.IssuerPpkiTicket); err == nil {
		t.Error("PrivateKey(no mapping): want error, got nil")
	}
}
