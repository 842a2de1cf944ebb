package transfer

import (
	"bytes"
	"testing"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/spf13/afero"
)

func newPlainReader(t *testing.T, mem afero.Fs, path string, data []byte) reader.Reader {
	t.Helper()
	if err := afero.WriteFile(mem, path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := reffile.OpenOnFs(mem, path)
	if err != nil {
		t.Fatalf("OpenOnFs: %v", err)
	}
	r, err := reader.NewPlain(f, 0, lba.FromBytes(int64(len(data))))
	if err != nil {
		t.Fatalf("NewPlain: %v", err)
	}
	return r
}

func TestIsAllZero(t *testing.T) {
	if !isAllZero(make([]byte, 16)) {
		t.Error("isAllZero(zeroes) = false, want true")
	}
	if isAllZero([]byte{0, 0, 1, 0}) {
		t.Error("isAllZero(non-zero) = true, want false")
	}
	if !isAllZero(nil) {
		t.Error("isAllZero(nil) = false, want true")
	}
}

func TestCopySparseElidesZeroBlocks(t *testing.T) {
	mem := afero.NewMemMapFs()

	lbaCount := uint32(10)
	src := make([]byte, lba.ToBytes(lbaCount))
	copy(src[0:lba.Size], bytes.Repeat([]byte{0xAB}, lba.Size))
	// LBAs 1..8 stay zero.
	copy(src[lba.ToBytes(9):], bytes.Repeat([]byte{0xCD}, lba.Size))

	srcReader := newPlainReader(t, mem, "/src.bin", src)

	if err := afero.WriteFile(mem, "/dst.bin", make([]byte, lba.ToBytes(lbaCount)), 0o644); err != nil {
		t.Fatalf("WriteFile dst: %v", err)
	}
	dstFile, err := reffile.OpenOnFs(mem, "/dst.bin")
	if err != nil {
		t.Fatalf("OpenOnFs dst: %v", err)
	}
	dstReader, err := reader.NewPlain(dstFile, 0, lbaCount)
	if err != nil {
		t.Fatalf("NewPlain dst: %v", err)
	}

	var processed uint32
	if err := copySparse(dstReader, srcReader, 0, 0, lbaCount, nil, PhaseExtract, nil, &processed, lbaCount); err != nil {
		t.Fatalf("copySparse: %v", err)
	}
	if processed != lbaCount {
		t.Errorf("processed = %d, want %d", processed, lbaCount)
	}

	got := make([]byte, lba.ToBytes(lbaCount))
	if _, err := dstReader.Read(got, 0, lbaCount); err != nil {
		t.Fatalf("Read back: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("copied content mismatch: got %x, want %x", got, src)
	}
}

func TestCopySparseAlwaysWritesFinalLBA(t *testing.T) {
	mem := afero.NewMemMapFs()

	lbaCount := uint32(4)
	src := make([]byte, lba.ToBytes(lbaCount)) // entirely zero
	srcReader := newPlainReader(t, mem, "/src2.bin", src)

	// Pre-fill the destination with a non-zero marker so we can tell
	// whether the final LBA really got (over)written with zeroes.
	initial := bytes.Repeat([]byte{0xFF}, int(lba.ToBytes(lbaCount)))
	if err := afero.WriteFile(mem, "/dst2.bin", initial, 0o644); err != nil {
		t.Fatalf("WriteFile dst: %v", err)
	}
	dstFile, err := reffile.OpenOnFs(mem, "/dst2.bin")
	if err != nil {
		t.Fatalf("OpenOnFs dst: %v", err)
	}
	dstReader, err := reader.NewPlain(dstFile, 0, lbaCount)
	if err != nil {
		t.Fatalf("NewPlain dst: %v", err)
	}

	var processed uint32
	if err := copySparse(dstReader, srcReader, 0, 0, lbaCount, nil, PhaseExtract, nil, &processed, lbaCount); err != nil {
		t.Fatalf("copySparse: %v", err)
	}

	last := make([]byte, lba.Size)
	if _, err := dstReader.Read(last, lbaCount-1, 1); err != nil {
		t.Fatalf("Read last LBA: %v", err)
	}
	if !isAllZero(last) {
		t.Errorf("final LBA = %x, want all-zero (explicitly written, not left as stale marker)", last)
	}
}
