package sigtools

import (
	"encoding/binary"
	"testing"

	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/hashw"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/wii"
	"github.com/spf13/afero"
)

func newTestStore(t *testing.T) *keystore.Store {
	t.Helper()
	mem := afero.NewMemMapFs()
	dir := "/keys"
	for _, name := range []keystore.KeyName{
		keystore.KeyRetail, keystore.KeyKorean, keystore.KeyDebug,
	} {
		key := make([]byte, 16)
		key[0] = byte(len(name))
		if err := afero.WriteFile(mem, dir+"/"+string(name)+".key", key, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return keystore.Open(mem, dir)
}

func TestRecryptTicketNoopSameKey(t *testing.T) {
	store := newTestStore(t)
	ticket := make([]byte, wii.TicketSize)
	copy(ticket[wii.TicketOffIssuer:], cert.IssuerPpkiTicket.Name())
	ticket[wii.TicketOffCommonKeyIdx] = wii.CommonKeyIndexDefault

	before := append([]byte(nil), ticket...)
	if err := RecryptTicket(ticket, store, keystore.KeyRetail); err != nil {
		t.Fatalf("RecryptTicket: %v", err)
	}
	for i := range before {
		if before[i] != ticket[i] {
			t.Fatalf("ticket changed on a no-op recrypt at offset %d", i)
			break
		}
	}
}

func TestRecryptTicketChangesIssuerAndKey(t *testing.T) {
	store := newTestStore(t)
	ticket := make([]byte, wii.TicketSize)
	copy(ticket[wii.TicketOffIssuer:], cert.IssuerPpkiTicket.Name())
	ticket[wii.TicketOffCommonKeyIdx] = wii.CommonKeyIndexDefault
	copy(ticket[wii.TicketOffEncTitleKey:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

	if err := RecryptTicket(ticket, store, keystore.KeyDebug); err != nil {
		t.Fatalf("RecryptTicket: %v", err)
	}

	gotIssuer := trimNUL(ticket[wii.TicketOffIssuer : wii.TicketOffIssuer+wii.TicketOffIssuerLen])
	if gotIssuer != cert.IssuerDpkiTicket.Name() {
		t.Errorf("issuer = %q, want %q", gotIssuer, cert.IssuerDpkiTicket.Name())
	}
	if string(ticket[wii.TicketOffEncTitleKey:wii.TicketOffEncTitleKey+16]) == string([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}) {
		t.Error("encrypted title key unchanged after recrypting to a different common key")
	}
}

func TestFakesignTicketZeroesSignatureAndFindsZeroPrefix(t *testing.T) {
	ticket := make([]byte, wii.TicketSize)
	binary.BigEndian.PutUint32(ticket[0:4], uint32(cert.SigTypeRSA2048SHA1))
	for i := range ticket[4 : 4+256] {
		ticket[4+i] = 0xAB
	}

	if err := FakesignTicket(ticket); err != nil {
		t.Fatalf("FakesignTicket: %v", err)
	}

	for _, b := range ticket[4 : 4+256] {
		if b != 0 {
			t.Fatalf("signature not zeroed after fakesign")
		}
	}

	digest := hashw.SHA1(ticket[wii.TicketOffIssuer:])
	if digest[0] != 0 {
		t.Errorf("fakesigned ticket's signed-region hash does not start with 0x00: %x", digest[0])
	}
}
