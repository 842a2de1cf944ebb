package disc

import (
	"testing"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/wiicrypto/wii"
	"github.com/spf13/afero"
)

// buildPartitionTableBank writes a volume-group/partition table with a
// Game partition at LBA 0 and an Update partition immediately after it
// into a buffer of bankLBALen LBAs, and returns a writable reader over
// it.
func buildPartitionTableBank(t *testing.T, updateLBAStart, bankLBALen uint32) reader.Reader {
	t.Helper()

	buf := make([]byte, lba.ToBytes(bankLBALen))
	entriesOff := wii.VolumeGroupCount * wii.VolumeGroupEntrySize
	volBuf := buf[wii.VolumeGroupTableAddress:]

	lba.PutU32BE(volBuf, 2)
	lba.PutU34Rshift2(volBuf[4:], int64(wii.VolumeGroupTableAddress)+int64(entriesOff))

	lba.PutU34Rshift2(volBuf[entriesOff:], 0)
	lba.PutU32BE(volBuf[entriesOff+4:], uint32(wii.PartitionTypeGame))

	lba.PutU34Rshift2(volBuf[entriesOff+wii.PartitionTableEntrySize:], lba.ToBytes(updateLBAStart))
	lba.PutU32BE(volBuf[entriesOff+wii.PartitionTableEntrySize+4:], uint32(wii.PartitionTypeUpdate))

	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/bank.bin", buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/bank.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	if err := f.MakeWritable(); err != nil {
		t.Fatalf("MakeWritable: %v", err)
	}
	r, err := reader.NewPlain(f, 0, bankLBALen)
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}
	return r
}

func TestLoadPartitionTable(t *testing.T) {
	const bankLBALen = uint32(0x200 + 10)
	const updateLBAStart = uint32(5)
	r := buildPartitionTableBank(t, updateLBAStart, bankLBALen)

	pt, err := LoadPartitionTable(r, bankLBALen)
	if err != nil {
		t.Fatalf("LoadPartitionTable: %v", err)
	}
	if len(pt.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(pt.Entries))
	}

	if pt.Entries[0].LBAStart != 0 || pt.Entries[0].Type != wii.PartitionTypeGame {
		t.Errorf("Entries[0] = %+v, want Game at LBA 0", pt.Entries[0])
	}
	if pt.Entries[0].LBALen != updateLBAStart {
		t.Errorf("Entries[0].LBALen = %d, want %d", pt.Entries[0].LBALen, updateLBAStart)
	}
	if pt.Entries[1].LBAStart != updateLBAStart || pt.Entries[1].Type != wii.PartitionTypeUpdate {
		t.Errorf("Entries[1] = %+v, want Update at LBA %d", pt.Entries[1], updateLBAStart)
	}
	if want := bankLBALen - updateLBAStart; pt.Entries[1].LBALen != want {
		t.Errorf("Entries[1].LBALen = %d, want %d", pt.Entries[1].LBALen, want)
	}

	game, ok := pt.FindGamePartition()
	if !ok || game.LBAStart != 0 {
		t.Errorf("FindGamePartition() = %+v, %v, want the LBA-0 entry", game, ok)
	}

	pt.RemoveUpdatePartitions()
	if len(pt.Entries) != 1 || pt.Entries[0].Type != wii.PartitionTypeGame {
		t.Errorf("after RemoveUpdatePartitions: %+v, want only the Game entry", pt.Entries)
	}
}

func TestLoadPartitionTableEmpty(t *testing.T) {
	const bankLBALen = uint32(0x200 + 2)
	buf := make([]byte, lba.ToBytes(bankLBALen))
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/empty.bin", buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, "/empty.bin")
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	r, err := reader.NewPlain(f, 0, bankLBALen)
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}

	pt, err := LoadPartitionTable(r, bankLBALen)
	if err != nil {
		t.Fatalf("LoadPartitionTable: %v", err)
	}
	if len(pt.Entries) != 0 {
		t.Errorf("Entries = %+v, want none", pt.Entries)
	}
	if _, ok := pt.FindGamePartition(); ok {
		t.Error("FindGamePartition() on an empty table: want false")
	}
}

func TestWritePartitionTableRoundTrip(t *testing.T) {
	const bankLBALen = uint32(0x200 + 10)
	const updateLBAStart = uint32(5)
	r := buildPartitionTableBank(t, updateLBAStart, bankLBALen)

	pt, err := LoadPartitionTable(r, bankLBALen)
	if err != nil {
		t.Fatalf("LoadPartitionTable: %v", err)
	}

	pt.RemoveUpdatePartitions()
	if err := WritePartitionTable(r, pt); err != nil {
		t.Fatalf("WritePartitionTable: %v", err)
	}

	reloaded, err := LoadPartitionTable(r, bankLBALen)
	if err != nil {
		t.Fatalf("LoadPartitionTable (reload): %v", err)
	}
	if len(reloaded.Entries) != 1 {
		t.Fatalf("reloaded Entries = %+v, want 1 entry", reloaded.Entries)
	}
	if reloaded.Entries[0].LBAStart != 0 || reloaded.Entries[0].Type != wii.PartitionTypeGame {
		t.Errorf("reloaded Entries[0] = %+v, want Game at LBA 0", reloaded.Entries[0])
	}
}

func TestParseVolumeGroupTableTooShort(t *testing.T) {
	if _, err := ParseVolumeGroupTable(make([]byte, 4)); err == nil {
		t.Error("ParseVolumeGroupTable(short buffer): want error, got nil")
	}
}
