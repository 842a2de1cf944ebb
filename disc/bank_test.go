package disc

import (
	"testing"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/wiicrypto/gcn"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/spf13/afero"
)

// newGCNBankFile assembles a small standalone GameCube bank with a
// valid disc header at LBA 0 and a boot block at LBA 2 whose DOL (at
// LBA 5) trivially passes every InitAppLoader check, so InitBank can
// run its full region/crypto/AppLoader pipeline against it.
func newGCNBankFile(t *testing.T, id6 string) *reffile.RefFile {
	t.Helper()

	const totalLBA = 16
	buf := make([]byte, lba.ToBytes(totalLBA))

	copy(buf[gcn.HeaderOffID6:], id6)
	lba.PutU32BE(buf[gcn.HeaderOffMagicGCN:], gcn.GCNMagic)

	boot := buf[lba.ToBytes(2)+0x20:]
	const bootFilePosition = 5 * lba.Size
	lba.PutU32BE(boot[gcn.BB2OffBootFilePosition:], bootFilePosition)
	lba.PutU32BE(boot[gcn.BB2OffFSTPosition:], bootFilePosition+lba.Size)

	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/gcn.bin", buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/gcn.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	return f
}

func TestInitBankGCN(t *testing.T) {
	f := newGCNBankFile(t, "GALE01")

	info, err := InitBank(f, BankTypeGCN, 0, 16, "20260730120000", nil, nil)
	if err != nil {
		t.Fatalf("InitBank: %v", err)
	}

	if info.Type != BankTypeGCN {
		t.Errorf("Type = %v, want BankTypeGCN", info.Type)
	}
	if info.IsDeleted {
		t.Error("IsDeleted = true, want false")
	}
	if got := info.Header.ID6(); got != "GALE01" {
		t.Errorf("Header.ID6() = %q, want %q", got, "GALE01")
	}
	if !info.HasTimestamp {
		t.Error("HasTimestamp = false, want true")
	}
	if info.Crypto == nil || info.Crypto.CryptoType != sigtools.CryptoNone {
		t.Errorf("Crypto = %+v, want CryptoNone", info.Crypto)
	}
	if info.AppLoader == nil || info.AppLoader.Error != AppLoaderOK {
		t.Errorf("AppLoader = %+v, want AppLoaderOK", info.AppLoader)
	}
	if info.PartitionTable != nil {
		t.Error("PartitionTable set for a GameCube bank, want nil")
	}
}

func TestInitBankUnknownPassesThrough(t *testing.T) {
	info, err := InitBank(nil, BankTypeUnknown, 0, 0, "", nil, nil)
	if err != nil {
		t.Fatalf("InitBank: %v", err)
	}
	if info.Type != BankTypeUnknown {
		t.Errorf("Type = %v, want BankTypeUnknown", info.Type)
	}
	if info.Reader != nil {
		t.Error("Reader set for an Unknown bank, want nil")
	}
}

func TestInitBankWiiDLBank2PassesThrough(t *testing.T) {
	info, err := InitBank(nil, BankTypeWiiDLBank2, 0, 0, "", nil, nil)
	if err != nil {
		t.Fatalf("InitBank: %v", err)
	}
	if info.Type != BankTypeWiiDLBank2 {
		t.Errorf("Type = %v, want BankTypeWiiDLBank2", info.Type)
	}
}

func TestInitBankEmpty(t *testing.T) {
	const totalLBA = 4
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/empty.bin", make([]byte, lba.ToBytes(totalLBA)), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/empty.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}

	info, err := InitBank(f, BankTypeEmpty, 0, totalLBA, "", nil, nil)
	if err != nil {
		t.Fatalf("InitBank: %v", err)
	}
	if info.Type != BankTypeEmpty {
		t.Errorf("Type = %v, want BankTypeEmpty", info.Type)
	}
	if info.Crypto != nil {
		t.Error("Crypto set for an Empty bank, want nil")
	}
}
