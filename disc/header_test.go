package disc

import (
	"testing"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/wiicrypto/gcn"
	"github.com/bodgit/rvth/wiicrypto/wii"
	"github.com/spf13/afero"
)

func newDiscReader(t *testing.T, data []byte) reader.Reader {
	t.Helper()
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/d.bin", data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/d.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	r, err := reader.NewPlain(f, 0, lba.FromBytes(int64(len(data))))
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}
	return r
}

func TestIdentifyHeader(t *testing.T) {
	wii := make([]byte, HeaderSize)
	lba.PutU32BE(wii[gcn.HeaderOffMagicWii:], gcn.WiiMagic)
	if got := IdentifyHeader(wii); got != BankTypeWiiSL {
		t.Errorf("IdentifyHeader(wii) = %v, want BankTypeWiiSL", got)
	}

	gcnHdr := make([]byte, HeaderSize)
	lba.PutU32BE(gcnHdr[gcn.HeaderOffMagicGCN:], gcn.GCNMagic)
	if got := IdentifyHeader(gcnHdr); got != BankTypeGCN {
		t.Errorf("IdentifyHeader(gcn) = %v, want BankTypeGCN", got)
	}

	ndDemo := make([]byte, HeaderSize)
	copy(ndDemo, gcn.NDDEMOHeader[:])
	if got := IdentifyHeader(ndDemo); got != BankTypeGCN {
		t.Errorf("IdentifyHeader(nddemo) = %v, want BankTypeGCN", got)
	}

	unknown := make([]byte, HeaderSize)
	if got := IdentifyHeader(unknown); got != BankTypeUnknown {
		t.Errorf("IdentifyHeader(zero) = %v, want BankTypeUnknown", got)
	}

	if got := IdentifyHeader(make([]byte, 4)); got != BankTypeUnknown {
		t.Errorf("IdentifyHeader(short) = %v, want BankTypeUnknown", got)
	}
}

func TestHeaderAccessors(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[gcn.HeaderOffID6:], "GALE01")
	lba.PutU32BE(buf[gcn.HeaderOffMagicWii:], gcn.WiiMagic)
	lba.PutU32BE(buf[gcn.HeaderOffMagicGCN:], gcn.GCNMagic)
	buf[gcn.HeaderOffHashVerify] = 1
	buf[gcn.HeaderOffDiscNoCrypt] = 1

	var h Header
	copy(h.Bytes(), buf)

	if got := h.ID6(); got != "GALE01" {
		t.Errorf("ID6() = %q, want %q", got, "GALE01")
	}
	if got := h.MagicWii(); got != gcn.WiiMagic {
		t.Errorf("MagicWii() = %#x, want %#x", got, gcn.WiiMagic)
	}
	if got := h.MagicGCN(); got != gcn.GCNMagic {
		t.Errorf("MagicGCN() = %#x, want %#x", got, gcn.GCNMagic)
	}
	if !h.HashVerify() {
		t.Error("HashVerify() = false, want true")
	}
	if !h.DiscNoCrypt() {
		t.Error("DiscNoCrypt() = false, want true")
	}
}

func TestHeaderGetIdentifiesKnownMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf[gcn.HeaderOffID6:], "GALE01")
	lba.PutU32BE(buf[gcn.HeaderOffMagicGCN:], gcn.GCNMagic)
	r := newDiscReader(t, buf)

	result, err := HeaderGet(r, nil)
	if err != nil {
		t.Fatalf("HeaderGet: %v", err)
	}
	if result.Type != BankTypeGCN {
		t.Errorf("Type = %v, want BankTypeGCN", result.Type)
	}
	if result.IsDeleted {
		t.Error("IsDeleted = true for a freshly-identified header")
	}
}

func TestHeaderGetAllZeroWithNoPartitionTableIsEmpty(t *testing.T) {
	size := int64(wii.VolumeGroupTableAddress) + 2*lba.Size
	r := newDiscReader(t, make([]byte, size))

	result, err := HeaderGet(r, nil)
	if err != nil {
		t.Fatalf("HeaderGet: %v", err)
	}
	if result.Type != BankTypeEmpty {
		t.Errorf("Type = %v, want BankTypeEmpty", result.Type)
	}
}

func TestHeaderGetNonZeroUnknownIsEmpty(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0xFF
	r := newDiscReader(t, buf)

	result, err := HeaderGet(r, nil)
	if err != nil {
		t.Fatalf("HeaderGet: %v", err)
	}
	if result.Type != BankTypeEmpty {
		t.Errorf("Type = %v, want BankTypeEmpty", result.Type)
	}
}

func TestLooksLikeHomebrew(t *testing.T) {
	if !LooksLikeHomebrew("ID5E01") {
		t.Error(`LooksLikeHomebrew("ID5E01") = false, want true`)
	}
	if LooksLikeHomebrew("GALE01") {
		t.Error(`LooksLikeHomebrew("GALE01") = true, want false`)
	}
	if LooksLikeHomebrew("I") {
		t.Error(`LooksLikeHomebrew("I") = true, want false`)
	}
}
