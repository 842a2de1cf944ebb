package reader

import (
	"testing"

	"github.com/bodgit/rvth/lba"
)

func TestHasSDKHeader(t *testing.T) {
	buf := make([]byte, sdkHeaderCheckSize)
	copy(buf[sdkHeaderMagicStartOffset:], sdkHeaderMagicStart)
	copy(buf[sdkHeaderMagicTailOffset:], sdkHeaderMagicTail)
	buf[sdkHeaderFlagOffset] = 0x01

	if !hasSDKHeader(buf) {
		t.Error("hasSDKHeader: want true for a fully-matching header")
	}
}

func TestHasSDKHeaderRejectsPartialMatch(t *testing.T) {
	buf := make([]byte, sdkHeaderCheckSize)
	copy(buf[sdkHeaderMagicStartOffset:], sdkHeaderMagicStart)
	// tail field and flag left zero.
	if hasSDKHeader(buf) {
		t.Error("hasSDKHeader: want false when only the start field matches")
	}
}

func TestHasSDKHeaderRejectsShortBuffer(t *testing.T) {
	if hasSDKHeader(make([]byte, sdkHeaderFlagOffset)) {
		t.Error("hasSDKHeader: want false for a buffer too short to hold the flag byte")
	}
}

func TestOpenSkipsSDKHeader(t *testing.T) {
	const lbaLen = uint32(SDKHeaderSizeLBA + 4)
	data := make([]byte, lba.ToBytes(lbaLen))
	copy(data[sdkHeaderMagicStartOffset:], sdkHeaderMagicStart)
	copy(data[sdkHeaderMagicTailOffset:], sdkHeaderMagicTail)
	data[sdkHeaderFlagOffset] = 0x01

	rf := newTestFile(t, "sdk.img", data)
	defer rf.Close()

	r, err := Open(rf, 0, lbaLen)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	p, ok := r.(*Plain)
	if !ok {
		t.Fatalf("Open returned %T, want *Plain", r)
	}
	if p.ImgType != ImageGCMSDK {
		t.Errorf("ImgType = %v, want ImageGCMSDK", p.ImgType)
	}
	if p.LBALen() != 4 {
		t.Errorf("LBALen() = %d, want 4 after the SDK header is skipped", p.LBALen())
	}
}

func TestOpenWithoutSDKHeaderStaysPlain(t *testing.T) {
	const lbaLen = uint32(8)
	data := make([]byte, lba.ToBytes(lbaLen))

	rf := newTestFile(t, "plain.img", data)
	defer rf.Close()

	r, err := Open(rf, 0, lbaLen)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	p, ok := r.(*Plain)
	if !ok {
		t.Fatalf("Open returned %T, want *Plain", r)
	}
	if p.ImgType == ImageGCMSDK {
		t.Error("ImgType = ImageGCMSDK, want unchanged for a buffer without the SDK signature")
	}
	if p.LBALen() != lbaLen {
		t.Errorf("LBALen() = %d, want %d (no adjustment)", p.LBALen(), lbaLen)
	}
}
