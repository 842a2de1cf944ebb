package disc

import (
	"testing"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/wiicrypto/gcn"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/spf13/afero"
)

// buildGCNAppLoaderBank assembles a minimal GameCube bank whose boot
// block (LBA 2) points a zero-length, zero-offset DOL at LBA 5, with
// debugMonSize as given so callers can flip it out of 32-byte
// alignment to exercise the first failure case.
func buildGCNAppLoaderBank(t *testing.T, debugMonSize uint32) reader.Reader {
	t.Helper()

	const totalLBA = 16
	buf := make([]byte, lba.ToBytes(totalLBA))

	boot := buf[lba.ToBytes(2)+0x20:]
	const bootFilePosition = 5 * lba.Size
	lba.PutU32BE(boot[gcn.BB2OffBootFilePosition:], bootFilePosition)
	lba.PutU32BE(boot[gcn.BB2OffFSTPosition:], bootFilePosition+lba.Size)
	lba.PutU32BE(boot[gcn.BB2OffFSTLength:], 0)
	lba.PutU32BE(boot[gcn.BB2OffFSTMaxLength:], 0)
	lba.PutU32BE(boot[gcn.BB2OffFSTAddress:], 0)

	bi2 := boot[gcn.BootBlockSize:]
	lba.PutU32BE(bi2[gcn.BI2OffDebugMonSize:], debugMonSize)
	lba.PutU32BE(bi2[gcn.BI2OffSimMemSize:], 0)
	lba.PutU32BE(bi2[gcn.BI2OffDolLimit:], 0)

	// DOL header at LBA 5: every offset field left zero, so
	// InitAppLoader's per-segment address-limit checks are all
	// trivially skipped.

	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/gcn.bin", buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/gcn.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	r, err := reader.NewPlain(f, 0, totalLBA)
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}
	return r
}

func TestInitAppLoaderOK(t *testing.T) {
	r := buildGCNAppLoaderBank(t, 0)

	result, err := InitAppLoader(r, BankTypeGCN, sigtools.CryptoNone, 0)
	if err != nil {
		t.Fatalf("InitAppLoader: %v", err)
	}
	if result.Error != AppLoaderOK {
		t.Errorf("Error = %v, want AppLoaderOK (vals %v)", result.Error, result.Vals)
	}
}

func TestInitAppLoaderDebugMonSizeUnaligned(t *testing.T) {
	r := buildGCNAppLoaderBank(t, 5)

	result, err := InitAppLoader(r, BankTypeGCN, sigtools.CryptoNone, 0)
	if err != nil {
		t.Fatalf("InitAppLoader: %v", err)
	}
	if result.Error != AppLoaderDebugMonSizeUnaligned {
		t.Errorf("Error = %v, want AppLoaderDebugMonSizeUnaligned", result.Error)
	}
	if result.Vals[0] != 5 {
		t.Errorf("Vals[0] = %d, want 5", result.Vals[0])
	}
}

func TestInitAppLoaderRejectsEmptyAndUnknownBanks(t *testing.T) {
	if _, err := InitAppLoader(nil, BankTypeEmpty, sigtools.CryptoNone, 0); err == nil {
		t.Error("InitAppLoader(Empty): want error, got nil")
	}
	if _, err := InitAppLoader(nil, BankTypeUnknown, sigtools.CryptoNone, 0); err == nil {
		t.Error("InitAppLoader(Unknown): want error, got nil")
	}
	if _, err := InitAppLoader(nil, BankTypeWiiDLBank2, sigtools.CryptoNone, 0); err == nil {
		t.Error("InitAppLoader(WiiDLBank2): want error, got nil")
	}
}

func TestInitAppLoaderRejectsEncryptedWii(t *testing.T) {
	if _, err := InitAppLoader(nil, BankTypeWiiSL, sigtools.CryptoRetail, 0); err == nil {
		t.Error("InitAppLoader(encrypted Wii): want error, got nil")
	}
}
