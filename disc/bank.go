package disc

import (
	"time"

	"github.com/bodgit/rvth/nhcd"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
)

// nhcdTimestampLayout is the 14-digit "YYYYMMDDHHMMSS" format the bank
// table stores a bank's creation time in, the same digits
// strftime("%Y%m%d%H%M%S") produces.
const nhcdTimestampLayout = "20060102150405"

// parseNHCDTimestamp parses a bank table timestamp string. An empty or
// malformed string (including the all-NUL/all-blank fields a freshly
// erased entry carries) yields ok == false rather than an error, since
// "no timestamp" is routine, not exceptional.
func parseNHCDTimestamp(s string) (time.Time, bool) {
	if len(s) != len(nhcdTimestampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(nhcdTimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// BankInfo is the fully initialized descriptive state of one RVT-H
// bank: its disc header, region, encryption classification, AppLoader
// validation result, and (for Wii banks) partition table, plus the
// reader.Reader window a caller streams its content through. It is the
// disc-level half of rvth.BankEntry; rvth.Image supplies the
// bank-table-level half (index, NHCD LBA range, deleted/undeleted
// transitions).
type BankInfo struct {
	Reader    reader.Reader
	Type      BankType
	IsDeleted bool
	LBALen    uint32

	Header Header

	HasTimestamp bool
	Timestamp    time.Time

	HasRegion bool
	Region    byte

	Crypto    *CryptoInfo
	AppLoader *AppLoaderResult

	PartitionTable *PartitionTable
}

// maxReaderLBALen returns the maximum window size InitBank should open
// a bank's reader.Reader over, per rvth_init_BankEntry: a relocated
// bank 1 on an extended-bank-table device is capped to the space
// before the bank table; otherwise it depends on whether the bank
// holds a dual-layer Wii image.
func maxReaderLBALen(lbaStart uint32, bankType BankType) uint32 {
	if lbaStart < nhcd.TableAddressLBA {
		return nhcd.ExtBankTableBank1SizeLBA
	}
	if bankType == BankTypeWiiDL {
		return nhcd.BankWiiDLSizeRVTRLBA
	}
	return nhcd.BankWiiSLSizeRVTRLBA
}

// InitBank assembles a BankInfo for one bank table slot: it opens a
// probe-sized reader to read (and if necessary reconstruct) the disc
// header, reclassifies the bank type if the header identifies a
// deleted Wii image sitting in a slot the bank table marked Empty,
// opens the bank's real reader.Reader window, and — for any non-empty,
// non-unknown bank — runs the region, partition-table, crypto, and
// AppLoader init phases. store/lookup may be nil; the affected phases
// simply return weaker results (no encrypted-header reconstruction, no
// signature verification) rather than failing the whole bank.
func InitBank(file *reffile.RefFile, bankType BankType, lbaStart, lbaLen uint32, nhcdTimestamp string, store *keystore.Store, lookup cert.CertLookup) (*BankInfo, error) {
	info := &BankInfo{Type: bankType}

	if bankType == BankTypeUnknown {
		return info, nil
	}

	// WiiDLBank2 is assigned by rvth.Image's post-pass over the
	// finished bank list, never discovered by probing a slot's own
	// header — the data sitting there is mid-disc continuation, not a
	// legitimate signature. Callers never pass it in here.
	if bankType == BankTypeWiiDLBank2 {
		return info, nil
	}

	probeLen := lbaLen
	if probeLen == 0 {
		probeLen = maxReaderLBALen(lbaStart, bankType)
	}
	probe, err := reader.NewPlain(file, lbaStart, probeLen)
	if err != nil {
		return nil, err
	}

	result, err := HeaderGet(probe, store)
	if err != nil {
		info.Header = Header{}
		return info, err
	}
	info.Header = result.Header

	actualType := bankType
	isDeleted := result.IsDeleted
	if isDeleted || (bankType == BankTypeEmpty && result.Type >= BankTypeGCN) {
		actualType = result.Type
		isDeleted = true
	}
	info.Type = actualType
	info.IsDeleted = isDeleted

	readerLBALen := maxReaderLBALen(lbaStart, actualType)
	if lbaLen == 0 {
		if actualType == BankTypeGCN {
			lbaLen = nhcd.BankGCNSizeRetailLBA
		} else {
			lbaLen = readerLBALen
		}
	}
	info.LBALen = lbaLen

	r, err := reader.NewPlain(file, lbaStart, readerLBALen)
	if err != nil {
		return nil, err
	}
	info.Reader = r

	if actualType == BankTypeEmpty {
		return info, nil
	}

	if ts, ok := parseNHCDTimestamp(nhcdTimestamp); ok {
		info.Timestamp, info.HasTimestamp = ts, true
	}

	if region, rerr := InitRegion(r, actualType); rerr == nil {
		info.Region, info.HasRegion = region, true
	}

	// Loaded as-is, updates included: RemoveUpdatePartitions is only
	// applied by the recrypt/transfer paths that rewrite the table, not
	// at bank-init time (mirrors rvth_ptbl_find_game's lazy,
	// non-mutating rvth_ptbl_load call).
	var pt *PartitionTable
	if actualType == BankTypeWiiSL || actualType == BankTypeWiiDL {
		if loaded, perr := LoadPartitionTable(r, lbaLen); perr == nil {
			pt = loaded
			info.PartitionTable = pt
		}
	}

	crypto, cerr := InitCrypto(r, actualType, &info.Header, pt, lookup)
	if cerr == nil {
		info.Crypto = crypto
	}

	var gameLBA uint32
	if pt != nil {
		if game, ok := pt.FindGamePartition(); ok {
			gameLBA = game.LBAStart
		}
	}
	cryptoType := sigtools.CryptoNone
	if crypto != nil {
		cryptoType = crypto.CryptoType
	}
	if apl, aerr := InitAppLoader(r, actualType, cryptoType, gameLBA); aerr == nil {
		info.AppLoader = apl
	}

	return info, nil
}
