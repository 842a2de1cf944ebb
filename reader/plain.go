package reader

import (
	"syscall"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
)

// hddImageThreshold is the size above which an image file (not a
// device) is assumed to be a full RVT-H HDD dump rather than a
// standalone disc image.
const hddImageThreshold = 10 * 1024 * 1024 * 1024 // 10 GiB

// Plain is a direct pass-through Reader: LBA n maps to byte offset
// (lba_start+n)*512 in the backing RefFile.
type Plain struct {
	Base
}

// NewPlain constructs a Plain reader over file's
// [lbaStart, lbaStart+lbaLen) window, inferring the image-type tag
// per spec.md §4.3.
func NewPlain(file *reffile.RefFile, lbaStart, lbaLen uint32) (*Plain, error) {
	if lbaStart == 0 && lbaLen == 0 {
		size, err := file.Size()
		if err != nil {
			return nil, err
		}
		lbaLen = lba.FromBytes(size)
	}

	p := &Plain{Base: Base{File: file, Start: lbaStart, Len: lbaLen}}
	p.ImgType = p.inferType()
	return p, nil
}

func (p *Plain) inferType() ImageType {
	if p.File.IsDevice() {
		return ImageHDDReader
	}
	size, err := p.File.Size()
	if err == nil && size > hddImageThreshold {
		return ImageHDDImage
	}
	if p.Start == 0 {
		return ImageGCM
	}
	return ImageGCMSDK
}

func (p *Plain) Read(buf []byte, lbaStart, lbaCount uint32) (uint32, error) {
	if err := checkBounds(p.Len, lbaStart, lbaCount); err != nil {
		return 0, err
	}
	if lbaCount == 0 {
		return 0, nil
	}
	off := lba.ToBytes(p.Start + lbaStart)
	n, err := p.File.ReadAt(buf[:int64(lbaCount)*lba.Size], off)
	if err != nil || n != int(lbaCount)*lba.Size {
		return 0, &rvtherrors.Error{Errno: syscall.EIO}
	}
	return lbaCount, nil
}

func (p *Plain) Write(buf []byte, lbaStart, lbaCount uint32) (uint32, error) {
	if err := checkBounds(p.Len, lbaStart, lbaCount); err != nil {
		return 0, err
	}
	if lbaCount == 0 {
		return 0, nil
	}
	off := lba.ToBytes(p.Start + lbaStart)
	n, err := p.File.WriteAt(buf[:int64(lbaCount)*lba.Size], off)
	if err != nil || n != int(lbaCount)*lba.Size {
		return 0, &rvtherrors.Error{Errno: syscall.EIO}
	}
	return lbaCount, nil
}
