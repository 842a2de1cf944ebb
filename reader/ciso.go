package reader

import (
	"io"
	"syscall"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
	"go4.org/readerutil"
)

const (
	cisoMapSize      = 32760
	cisoBlockSizeMin = 1 << 15
	cisoBlockSizeMax = 1 << 24
	cisoHeaderSize   = 4 + 4 + cisoMapSize
	cisoNoBlock      = 0xFFFF
)

// CISO is a reader for the CISO compact disc-image format: a fixed
// header followed by a 1/0 presence bitmap over fixed-size logical
// blocks, with absent blocks read back as zero without touching the
// backing file. The expanded logical LBA space is composed once at
// open time into a single readerutil.SizeReaderAt — a section reader
// per present physical block, a zeroReaderAt per hole — the same
// per-chunk-SizeReaderAt-into-MultiReaderAt idiom bodgit-wud's
// wux/reader.go uses for its own sector-table indirection.
type CISO struct {
	Base
	sr readerutil.SizeReaderAt
}

// isCISOHeader reports whether the first bytes of a sector match the
// CISO magic and a valid power-of-two block size.
func isCISOHeader(sbuf []byte) (blockSize uint32, ok bool) {
	if len(sbuf) < lba.Size || string(sbuf[0:4]) != "CISO" {
		return 0, false
	}
	bs := uint32(sbuf[4]) | uint32(sbuf[5])<<8 | uint32(sbuf[6])<<16 | uint32(sbuf[7])<<24
	for shift := 15; shift <= 24; shift++ {
		if bs == 1<<uint(shift) {
			return bs, true
		}
	}
	return 0, false
}

// OpenCISO parses the CISO header at lbaStart and returns a Reader
// over the expanded logical LBA space.
func OpenCISO(file *reffile.RefFile, lbaStart uint32) (*CISO, error) {
	hdr := make([]byte, cisoHeaderSize)
	if n, err := file.ReadAt(hdr, lba.ToBytes(lbaStart)); err != nil || n != len(hdr) {
		return nil, &rvtherrors.Error{Errno: syscall.EIO}
	}

	blockSize, ok := isCISOHeader(hdr)
	if !ok {
		return nil, rvtherrors.New(rvtherrors.UnrecognizedFile)
	}

	blockSizeLBA := blockSize / lba.Size
	blockMap := make([]uint32, cisoMapSize)
	physIdx := uint32(0)
	maxLogical := int32(-1)
	for i := 0; i < cisoMapSize; i++ {
		switch hdr[8+i] {
		case 0:
			blockMap[i] = cisoNoBlock
		case 1:
			blockMap[i] = physIdx
			physIdx++
			maxLogical = int32(i)
		default:
			return nil, &rvtherrors.Error{Errno: syscall.EIO}
		}
	}

	lbaLen := uint32(maxLogical+1) * blockSizeLBA

	dataStart := lbaStart + lba.FromBytes(cisoHeaderSize)
	blockSizeBytes := int64(blockSizeLBA) * lba.Size

	pieces := make([]readerutil.SizeReaderAt, int(maxLogical)+1)
	for i := int32(0); i <= maxLogical; i++ {
		if blockMap[i] == cisoNoBlock {
			pieces[i] = zeroReaderAt(blockSizeBytes)
			continue
		}
		off := lba.ToBytes(dataStart) + int64(blockMap[i])*blockSizeBytes
		pieces[i] = io.NewSectionReader(file, off, blockSizeBytes)
	}

	c := &CISO{
		Base: Base{
			File:    file,
			Start:   dataStart,
			Len:     lbaLen,
			ImgType: ImageGCM,
		},
		sr: readerutil.NewMultiReaderAt(pieces...),
	}
	return c, nil
}

func (c *CISO) Read(buf []byte, lbaStart, lbaCount uint32) (uint32, error) {
	if err := checkBounds(c.Len, lbaStart, lbaCount); err != nil {
		return 0, err
	}
	if lbaCount == 0 {
		return 0, nil
	}
	n, err := c.sr.ReadAt(buf[:int64(lbaCount)*lba.Size], lba.ToBytes(lbaStart))
	if err != nil || n != int(lbaCount)*lba.Size {
		return 0, &rvtherrors.Error{Errno: syscall.EIO}
	}
	return lbaCount, nil
}
