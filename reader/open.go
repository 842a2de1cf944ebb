package reader

import (
	"bytes"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
)

// sdkHeaderMagicStart, sdkHeaderMagicTail and the offsets below are the
// three fields Nintendo SDK tools stamp into a 32 KiB debug header
// prefixing a standalone GCM dump: 0xFFFF0000 at the very start, a
// second fixed field partway through, and a single flag byte, none of
// which fit in the single 512-byte sector CISO/WBFS detection reads.
var (
	sdkHeaderMagicStart = []byte{0xFF, 0xFF, 0x00, 0x00}
	sdkHeaderMagicTail  = []byte{0x00, 0x00, 0xE0, 0x06}
)

const (
	sdkHeaderMagicStartOffset = 0x0000
	sdkHeaderMagicTailOffset  = 0x082C
	sdkHeaderFlagOffset       = 0x0844

	// sdkHeaderCheckSize covers every field hasSDKHeader inspects,
	// rounded up to a whole number of sectors.
	sdkHeaderCheckSize = 5 * lba.Size
)

// Open auto-detects the image format backing file at lbaStart and
// returns the appropriate Reader, per the detection order: a device is
// always Plain; otherwise a CISO or WBFS magic wins; otherwise an SDK
// header is skipped if present; otherwise Plain.
func Open(file *reffile.RefFile, lbaStart, lbaLen uint32) (Reader, error) {
	if file.IsDevice() {
		return NewPlain(file, lbaStart, lbaLen)
	}

	sbuf := make([]byte, lba.Size)
	if n, err := file.ReadAt(sbuf, lba.ToBytes(lbaStart)); err != nil || n != len(sbuf) {
		return NewPlain(file, lbaStart, lbaLen)
	}

	if _, ok := isCISOHeader(sbuf); ok {
		return OpenCISO(file, lbaStart)
	}

	if isWBFSHeader(sbuf) {
		return OpenWBFS(file, lbaStart)
	}

	p, err := NewPlain(file, lbaStart, lbaLen)
	if err != nil {
		return nil, err
	}

	sdkbuf := make([]byte, sdkHeaderCheckSize)
	n, _ := file.ReadAt(sdkbuf, lba.ToBytes(lbaStart))
	if hasSDKHeader(sdkbuf[:n]) && p.LBALen() > SDKHeaderSizeLBA {
		p.LBAAdjust(SDKHeaderSizeLBA)
		p.ImgType = ImageGCMSDK
	}

	return p, nil
}

// hasSDKHeader reports whether buf matches the three fixed fields of a
// 32 KiB Nintendo SDK debug header: 0xFFFF0000 at offset 0, 0x0000E006
// at offset 0x082C, and 0x01 at offset 0x0844.
func hasSDKHeader(buf []byte) bool {
	if len(buf) < sdkHeaderFlagOffset+1 {
		return false
	}
	if !bytes.Equal(buf[sdkHeaderMagicStartOffset:sdkHeaderMagicStartOffset+4], sdkHeaderMagicStart) {
		return false
	}
	if !bytes.Equal(buf[sdkHeaderMagicTailOffset:sdkHeaderMagicTailOffset+4], sdkHeaderMagicTail) {
		return false
	}
	return buf[sdkHeaderFlagOffset] == 0x01
}
