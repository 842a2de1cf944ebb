package disc

import (
	"testing"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/gcn"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/spf13/afero"
)

func newRegionReader(t *testing.T, totalLBA uint32, absoluteRegionByteOffset int64, region byte) reader.Reader {
	t.Helper()
	buf := make([]byte, lba.ToBytes(totalLBA))
	buf[absoluteRegionByteOffset] = region

	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/region.bin", buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/region.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	r, err := reader.NewPlain(f, 0, totalLBA)
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}
	return r
}

func TestInitRegionGCN(t *testing.T) {
	const offset = gcn.BootInfoAddress + gcn.BI2OffRegionCode + 3
	r := newRegionReader(t, 8, offset, 2)

	got, err := InitRegion(r, BankTypeGCN)
	if err != nil {
		t.Fatalf("InitRegion: %v", err)
	}
	if got != 2 {
		t.Errorf("InitRegion(GCN) = %d, want 2", got)
	}
}

func TestInitRegionWii(t *testing.T) {
	const offset = gcn.RegionSettingAddress + 3
	r := newRegionReader(t, 1200, offset, 1)

	got, err := InitRegion(r, BankTypeWiiSL)
	if err != nil {
		t.Fatalf("InitRegion: %v", err)
	}
	if got != 1 {
		t.Errorf("InitRegion(Wii) = %d, want 1", got)
	}
}

func TestInitRegionRejectsEmptyUnknownDL2(t *testing.T) {
	for _, bt := range []BankType{BankTypeEmpty, BankTypeUnknown, BankTypeWiiDLBank2} {
		if _, err := InitRegion(nil, bt); err == nil {
			t.Errorf("InitRegion(%v): want error, got nil", bt)
		}
	}
}

func TestInitCryptoGCNIsAlwaysCryptoNone(t *testing.T) {
	info, err := InitCrypto(nil, BankTypeGCN, nil, nil, nil)
	if err != nil {
		t.Fatalf("InitCrypto: %v", err)
	}
	if info.CryptoType != sigtools.CryptoNone {
		t.Errorf("CryptoType = %v, want CryptoNone", info.CryptoType)
	}
	if info.Ticket != (SigResult{}) {
		t.Errorf("Ticket = %+v, want the zero value", info.Ticket)
	}
}

func TestInitCryptoRejectsEmptyUnknownDL2(t *testing.T) {
	for _, bt := range []BankType{BankTypeEmpty, BankTypeUnknown, BankTypeWiiDLBank2} {
		if _, err := InitCrypto(nil, bt, nil, nil, nil); err == nil {
			t.Errorf("InitCrypto(%v): want error, got nil", bt)
		}
	}
}

func TestInitCryptoWiiNoGamePartitionErrors(t *testing.T) {
	pt := &PartitionTable{}
	if _, err := InitCrypto(nil, BankTypeWiiSL, &Header{}, pt, nil); err == nil {
		t.Error("InitCrypto with no Game partition: want error, got nil")
	}
}

func TestSigningTierOf(t *testing.T) {
	if got := signingTierOf(cert.IssuerPpkiTicket); got != sigtools.SigTypeRetail {
		t.Errorf("signingTierOf(PpkiTicket) = %v, want SigTypeRetail", got)
	}
	if got := signingTierOf(cert.IssuerDpkiTMD); got != sigtools.SigTypeDebug {
		t.Errorf("signingTierOf(DpkiTMD) = %v, want SigTypeDebug", got)
	}
}
