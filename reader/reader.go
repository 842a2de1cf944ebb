// Package reader implements the pluggable, LBA-addressed virtual
// block device used throughout the RVT-H toolkit. A Reader exposes a
// fixed [lba_start, lba_start+lba_len) window over an underlying
// reffile.RefFile, transparently expanding sparse/compacted container
// formats (CISO, WBFS) back into a flat LBA address space.
//
// The read/write contract and auto-detection algorithm in this
// package are a direct, format-generalized port of
// bodgit-wud/wux/reader.go's table-indexed SizeReaderAt composition:
// both translate a logical position into a physical one via a
// precomputed lookup table. Unlike WUX, whose table always points at a
// real sector, CISO and WBFS also zero-fill logical holes instead of
// touching the backing file.
package reader

import (
	"syscall"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
)

// ImageType tags the kind of underlying disc image a Plain reader was
// opened against.
type ImageType int

const (
	ImageUnknown ImageType = iota
	ImageHDDReader
	ImageHDDImage
	ImageGCM
	ImageGCMSDK
)

// SDKHeaderSizeLBA is the length, in LBAs, of the 32 KiB SDK header
// some standalone GCM dumps are prefixed with.
const SDKHeaderSizeLBA = 32768 / lba.Size

// Reader is the common interface implemented by every disc-image
// backend: a window of LBA-addressed, 512-byte sectors.
type Reader interface {
	// Read reads lbaCount sectors starting at lbaStart (relative to
	// the reader's own window) into buf, returning the number of
	// sectors actually read. Requests outside [0, LBALen) fail with 0
	// and EIO without touching the backing file.
	Read(buf []byte, lbaStart, lbaCount uint32) (uint32, error)

	// Write writes lbaCount sectors starting at lbaStart. The default
	// behavior (embedded via Base) is read-only: 0, EROFS.
	Write(buf []byte, lbaStart, lbaCount uint32) (uint32, error)

	// Flush commits any buffered writes to the backing file.
	Flush() error

	// LBAStart is the absolute starting LBA of this reader's window.
	LBAStart() uint32

	// LBALen is the length of this reader's window, in LBAs.
	LBALen() uint32

	// Type reports the underlying image-type tag.
	Type() ImageType

	// LBAAdjust shifts the window start forward by n LBAs, consuming
	// length; used to skip a detected SDK header.
	LBAAdjust(n uint32)

	// Close releases the underlying RefFile reference.
	Close() error
}

// Base implements the read-only Write default, Flush, Close, and the
// common accessors; format-specific readers embed it, supply their own
// Read (bounds-checked via checkBounds), and override Write as needed.
type Base struct {
	File    *reffile.RefFile
	Start   uint32
	Len     uint32
	ImgType ImageType
}

func (b *Base) LBAStart() uint32 { return b.Start }
func (b *Base) LBALen() uint32   { return b.Len }
func (b *Base) Type() ImageType  { return b.ImgType }

func (b *Base) LBAAdjust(n uint32) {
	if n > b.Len {
		n = b.Len
	}
	b.Start += n
	b.Len -= n
}

func (b *Base) Flush() error {
	return b.File.Flush()
}

func (b *Base) Close() error {
	return b.File.Close()
}

// Write is the default: Reader backends are read-only unless they
// override it (only Plain does).
func (b *Base) Write(buf []byte, lbaStart, lbaCount uint32) (uint32, error) {
	return 0, &rvtherrors.Error{Errno: syscall.EROFS}
}

// checkBounds validates a [lbaStart, lbaStart+lbaCount) request
// against [0, lbaLen), per spec.md §4.3's exact-fail contract.
func checkBounds(lbaLen, lbaStart, lbaCount uint32) error {
	if lbaCount == 0 {
		return nil
	}
	if lbaStart > lbaLen || lbaCount > lbaLen-lbaStart {
		return &rvtherrors.Error{Errno: syscall.EIO}
	}
	return nil
}
