package reader

import (
	"io"
	"syscall"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
	"go4.org/readerutil"
)

// WBFS is a read-only reader for the WBFS disc-image container:
// fixed-size WBFS sectors, mapped per logical-to-physical via a
// per-disc big-endian u16 table. Only disc index 0 is opened, per
// spec.md §4.3. Like CISO, the logical LBA space is composed once at
// open time into a single readerutil.SizeReaderAt (a section reader
// per present WBFS sector, a zeroReaderAt per unmapped one).
type WBFS struct {
	Base
	sr readerutil.SizeReaderAt
}

// isWBFSHeader reports whether sbuf starts with the WBFS magic and a
// sane sector-size shift.
func isWBFSHeader(sbuf []byte) bool {
	if len(sbuf) < lba.Size || string(sbuf[0:4]) != "WBFS" {
		return false
	}
	hdSecSzS := sbuf[8]
	return hdSecSzS >= 9
}

// OpenWBFS parses the WBFS head at lbaStart and the disc-0 WLBA table,
// returning a Reader over the expanded logical LBA space.
func OpenWBFS(file *reffile.RefFile, lbaStart uint32) (*WBFS, error) {
	head := make([]byte, lba.Size)
	if n, err := file.ReadAt(head, lba.ToBytes(lbaStart)); err != nil || n != len(head) {
		return nil, &rvtherrors.Error{Errno: syscall.EIO}
	}
	if !isWBFSHeader(head) {
		return nil, rvtherrors.New(rvtherrors.UnrecognizedFile)
	}

	hdSecSzS := head[8]
	wbfsSecSzS := head[9]
	hdSecSz := uint32(1) << hdSecSzS
	wbfsSecSz := uint32(1) << wbfsSecSzS
	wbfsSecSzLBA := wbfsSecSz / lba.Size

	// 143432 Wii sectors (0x8000 bytes each) per disc, doubled for DL.
	const nWiiSecPerDisc = uint32(143432 * 2)
	const wiiSecSzS = uint32(15) // 0x8000 == 1<<15
	nWbfsSecPerDisc := nWiiSecPerDisc >> (uint32(wbfsSecSzS) - wiiSecSzS)

	// The disc table (one presence byte per disc slot) lives inside the
	// head sector at byte 12, after magic, n_hd_sec, the two size
	// shifts, and two padding bytes.
	const discTableOffset = 12
	if head[discTableOffset] == 0 {
		return nil, rvtherrors.New(rvtherrors.UnrecognizedFile)
	}

	// disc_info_sz rounded up to the next hd sector.
	const discInfoHeaderSize = 7 // wbfs_disc_info_t fixed fields (disc_id[6]+region_code)
	discInfoSz := alignUp(uint32(discInfoHeaderSize)+nWbfsSecPerDisc*2, hdSecSz)

	// Disc 0's info immediately follows the head+disc-table sector.
	discInfoOffset := lba.ToBytes(lbaStart) + int64(hdSecSz)

	discInfo := make([]byte, discInfoSz)
	if n, err := file.ReadAt(discInfo, discInfoOffset); err != nil || uint32(n) != discInfoSz {
		return nil, &rvtherrors.Error{Errno: syscall.EIO}
	}

	wlbaTable := make([]uint16, nWbfsSecPerDisc)
	maxNonZero := int32(-1)
	for i := range wlbaTable {
		off := discInfoHeaderSize + i*2
		if off+2 > len(discInfo) {
			break
		}
		v := lba.GetU16BE(discInfo[off : off+2])
		wlbaTable[i] = v
		if v != 0 {
			maxNonZero = int32(i)
		}
	}

	lbaLen := uint32(maxNonZero+1) * wbfsSecSzLBA

	wbfsSecSzBytes := int64(wbfsSecSzLBA) * lba.Size
	pieces := make([]readerutil.SizeReaderAt, int(maxNonZero)+1)
	for i := int32(0); i <= maxNonZero; i++ {
		if wlbaTable[i] == 0 {
			pieces[i] = zeroReaderAt(wbfsSecSzBytes)
			continue
		}
		off := lba.ToBytes(lbaStart) + int64(wlbaTable[i])*wbfsSecSzBytes
		pieces[i] = io.NewSectionReader(file, off, wbfsSecSzBytes)
	}

	w := &WBFS{
		Base: Base{
			File:    file,
			Start:   lbaStart,
			Len:     lbaLen,
			ImgType: ImageGCM,
		},
		sr: readerutil.NewMultiReaderAt(pieces...),
	}
	return w, nil
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

func (w *WBFS) Read(buf []byte, lbaStart, lbaCount uint32) (uint32, error) {
	if err := checkBounds(w.Len, lbaStart, lbaCount); err != nil {
		return 0, err
	}
	if lbaCount == 0 {
		return 0, nil
	}
	n, err := w.sr.ReadAt(buf[:int64(lbaCount)*lba.Size], lba.ToBytes(lbaStart))
	if err != nil || n != int(lbaCount)*lba.Size {
		return 0, &rvtherrors.Error{Errno: syscall.EIO}
	}
	return lbaCount, nil
}
