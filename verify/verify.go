// Package verify implements the five-level Merkle hash-tree check
// (H0 through H4) that authenticates a Wii partition's decrypted
// contents against its signed TMD, ported from librvth's
// verifyWiiPartitions.
//
// Each 2 MiB group of a partition is 64 sectors; each 32 KiB sector
// splits into a 1 KiB hash block (H0/H1/H2 tables, in that nesting
// order) and 31 KiB of user data, per the standard Wii disc sector
// layout documented in §6.3. H3, one hash per group, lives in a
// separate per-partition table; H4 is the TMD's hash of that table.
package verify

import (
	"crypto/cipher"

	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/wiicrypto/aesw"
	"github.com/bodgit/rvth/wiicrypto/hashw"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/bodgit/rvth/wiicrypto/wii"
	"github.com/bodgit/rvth/worker"
)

const (
	sectorSize      = 0x8000
	sectorHashSize  = 0x400
	sectorDataSize  = sectorSize - sectorHashSize
	sectorsPerGroup = 64
	groupSizeEnc    = sectorSize * sectorsPerGroup // 2 MiB

	h0Count = 31
	h1Count = 8
	h2Count = 8

	h0TableOffset = 0
	h1TableOffset = h0Count*hashw.Size20 + 20 // 31 entries + 20-byte pad
	h2TableOffset = h1TableOffset + h1Count*hashw.Size20 + 32

	// dataIVOffset is the 16-byte IV for a sector's data, stashed in
	// the last 16 bytes of the H2 table's final (8th) entry within the
	// still-encrypted hash block.
	dataIVOffset = h2TableOffset + (h2Count-1)*hashw.Size20 + 4

	maxPartitionDataSize = 9 * 1024 * 1024 * 1024 // 9 GiB, H3 table's hard limit
)

// ErrorCounts tallies the number of bad-hash/table-copy failures found
// at each of the five Merkle levels.
type ErrorCounts struct {
	H0, H1, H2, H3, H4 int
}

// Total returns the sum of every level's error count.
func (e ErrorCounts) Total() int {
	return e.H0 + e.H1 + e.H2 + e.H3 + e.H4
}

// ErrorKind distinguishes a hash mismatch from a table-replication
// mismatch (the same H1/H2 table is supposed to be copied verbatim
// across every sector of its scope).
type ErrorKind int

const (
	ErrorBadHash ErrorKind = iota
	ErrorTableCopy
)

// Report describes one failed hash check, delivered to a ReportFunc
// as it's discovered.
type Report struct {
	PartitionIndex int
	HashLevel      int // 0-4
	Sector         int // group-relative, only meaningful for levels 0-2
	KB             int // 1-31, only meaningful for level 0
	Kind           ErrorKind
	IsZero         bool // the encrypted source block was all zero (scrubbed image)
}

// ReportFunc receives each Report as it's found. May be nil.
type ReportFunc func(Report)

// WiiPartitions verifies every partition of a Wii bank, per spec
// §4.12. info must describe an encrypted Wii_SL/Wii_DL bank with a
// loaded partition table; store supplies the common key used to
// decrypt each partition's title key. job/progress drive cancellation
// and (phase, processed_lba, total_lba) progress reporting; report
// receives each individual hash failure as it's found. The returned
// ErrorCounts is valid even when err is non-nil only if err is
// rvtherrors.ErrCanceled (otherwise verification stopped before
// finishing and the counts are partial).
func WiiPartitions(info *disc.BankInfo, store *keystore.Store, job *worker.Job, progress worker.ProgressFunc, report ReportFunc) (*ErrorCounts, error) {
	switch info.Type {
	case disc.BankTypeWiiSL, disc.BankTypeWiiDL:
	case disc.BankTypeEmpty:
		return nil, rvtherrors.New(rvtherrors.BankEmpty)
	case disc.BankTypeWiiDLBank2:
		return nil, rvtherrors.New(rvtherrors.BankDL2)
	case disc.BankTypeGCN:
		return nil, rvtherrors.New(rvtherrors.NotWiiImage)
	default:
		return nil, rvtherrors.New(rvtherrors.BankUnknown)
	}

	if info.Crypto == nil || info.Crypto.CryptoType <= sigtools.CryptoNone {
		return nil, rvtherrors.New(rvtherrors.IsUnencrypted)
	}
	if info.PartitionTable == nil || len(info.PartitionTable.Entries) == 0 {
		return nil, rvtherrors.New(rvtherrors.PartitionTableCorrupted)
	}

	counts := &ErrorCounts{}

	var totalLBA, processedLBA uint32
	for _, pte := range info.PartitionTable.Entries {
		totalLBA += pte.LBALen
	}

	if job == nil {
		job = worker.New()
	}

	for pidx := range info.PartitionTable.Entries {
		pte := info.PartitionTable.Entries[pidx]

		if err := verifyPartition(info, pidx, pte, store, job, progress, report, counts, &processedLBA, totalLBA); err != nil {
			return counts, err
		}
	}

	return counts, nil
}

func verifyPartition(
	info *disc.BankInfo,
	pidx int,
	pte disc.PartitionEntry,
	store *keystore.Store,
	job *worker.Job,
	progress worker.ProgressFunc,
	report ReportFunc,
	counts *ErrorCounts,
	processedLBA *uint32,
	totalLBA uint32,
) error {
	hdr := make([]byte, wii.PartitionHeaderSize)
	if _, err := info.Reader.Read(hdr, pte.LBAStart, wii.PartitionHeaderSize/lba.Size); err != nil {
		return err
	}

	groupCount := pte.LBALen >> 12
	var lastGroupSectors uint32
	if pte.LBALen&0xFFF != 0 {
		groupCount++
		lastGroupSectors = (pte.LBALen & 0xFFF) / sectorsPerGroup
	}

	dataSize := uint64(lba.GetU32BE(hdr[wii.PartOffDataSize:])) << 2
	if dataSize != 0 {
		if dataSize > maxPartitionDataSize {
			return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
		}
		groupCount = uint32(dataSize / groupSizeEnc)
		lastGroupSectors = 0
		if dataSize%groupSizeEnc != 0 {
			groupCount++
			lastGroupSectors = uint32((dataSize % groupSizeEnc) / sectorSize)
		}
	}

	tmdOffset := lba.GetU32BE(hdr[wii.PartOffTMDOffset:]) << 2
	tmdSize := lba.GetU32BE(hdr[wii.PartOffTMDSize:])
	if tmdOffset == 0 || int(tmdOffset) > wii.PartitionHeaderSize ||
		tmdSize < uint32(wii.TMDHeaderSize+wii.ContentEntrySize) {
		return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
	}

	tmd := hdr[tmdOffset:]
	if lba.GetU16BE(tmd[wii.TMDOffNumContents:]) != 1 {
		return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
	}
	contentEntry := tmd[wii.TMDHeaderSize:]
	contentHash := contentEntry[16 : 16+hashw.Size20]

	titleKey, err := sigtools.DecryptTitleKey(hdr[:wii.TicketSize], store)
	if err != nil {
		return err
	}
	block, err := aesw.NewCipher(titleKey)
	if err != nil {
		return err
	}

	h3TblLBA := lba.FromBytes(int64(lba.GetU32BE(hdr[wii.PartOffH3TableOffset:])) << 2)
	if h3TblLBA == 0 {
		return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
	}

	h3tbl := make([]byte, wii.H3TableSize)
	if _, err := info.Reader.Read(h3tbl, pte.LBAStart+h3TblLBA, wii.H3TableSize/lba.Size); err != nil {
		return err
	}

	// When the partition header doesn't carry a usable data size, the
	// group count instead comes from scanning the H3 table for the
	// first all-zero entry.
	if dataSize == 0 {
		maxEntries := wii.H3TableSize / hashw.Size20
		groupCount = uint32(maxEntries)
		for g := 0; g < maxEntries; g++ {
			entry := h3tbl[g*hashw.Size20 : (g+1)*hashw.Size20]
			if isAllZero(entry) {
				groupCount = uint32(g)
				break
			}
		}
	}

	h4 := hashw.SHA1(h3tbl)
	if !equalBytes(contentHash, h4[:]) {
		counts.H4++
		if report != nil {
			report(Report{
				PartitionIndex: pidx,
				HashLevel:      4,
				Kind:           ErrorBadHash,
				IsZero:         isAllZero(h3tbl[:lba.Size]),
			})
		}
	}

	dataOffset := lba.FromBytes(int64(lba.GetU32BE(hdr[wii.PartOffDataOffset:])) << 2)
	groupLBA := pte.LBAStart + dataOffset
	const lbasPerGroup = groupSizeEnc / lba.Size

	gdataEnc := make([]byte, groupSizeEnc)
	gdata := make([]byte, groupSizeEnc)
	zeroIV := make([]byte, aesw.KeySize)

	for g := uint32(0); g < groupCount; g++ {
		isLastGroup := g == groupCount-1
		maxSector := uint32(sectorsPerGroup)
		if lastGroupSectors != 0 && isLastGroup {
			maxSector = lastGroupSectors
		}

		if err := job.Report(progress, "verify", *processedLBA, totalLBA); err != nil {
			return err
		}

		readLen := uint32(lbasPerGroup)
		if groupLBA+lbasPerGroup > pte.LBAStart+pte.LBALen {
			if !isLastGroup {
				return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
			}
			readLen = pte.LBAStart + pte.LBALen - groupLBA
			if tmp := readLen / sectorsPerGroup; tmp < maxSector {
				maxSector = tmp
			}
		}

		if _, err := info.Reader.Read(gdataEnc[:lba.ToBytes(readLen)], groupLBA, readLen); err != nil {
			return err
		}

		if err := verifyGroup(gdataEnc, gdata, block, zeroIV, maxSector, pidx, int(g), h3tbl, counts, report); err != nil {
			return err
		}

		*processedLBA += readLen
		groupLBA += lbasPerGroup
	}

	return nil
}

// verifyGroup decrypts one 2 MiB group in place (data first, using the
// per-sector IV embedded in the still-encrypted H2 table; then the
// hash block, IV zero) and runs the H3 through H0 cascade against it.
func verifyGroup(gdataEnc, gdata []byte, block cipher.Block, zeroIV []byte, maxSector uint32, pidx, g int, h3tbl []byte, counts *ErrorCounts, report ReportFunc) error {
	copy(gdata, gdataEnc)

	for i := uint32(0); i < maxSector; i++ {
		sector := gdata[i*sectorSize : (i+1)*sectorSize]
		dataIV := append([]byte(nil), sector[dataIVOffset:dataIVOffset+16]...)
		sectorData := sector[sectorHashSize:]
		if err := aesw.DecryptBlock(sectorData, block, dataIV); err != nil {
			return err
		}

		sectorHashes := sector[:sectorHashSize]
		if err := aesw.DecryptBlock(sectorHashes, block, zeroIV); err != nil {
			return err
		}
	}

	sector0Hashes := gdata[0:sectorHashSize]
	h2Table0 := sector0Hashes[h2TableOffset : h2TableOffset+h2Count*hashw.Size20]

	h3Digest := hashw.SHA1(h2Table0)
	h3Entry := h3tbl[g*hashw.Size20 : (g+1)*hashw.Size20]
	if !equalBytes(h3Entry, h3Digest[:]) {
		counts.H3++
		if report != nil {
			report(Report{PartitionIndex: pidx, HashLevel: 3, Kind: ErrorBadHash,
				IsZero: isAllZero(gdataEnc[0:sectorSize])})
		}
	}

	for s := uint32(1); s < maxSector; s++ {
		sHashes := gdata[s*sectorSize : s*sectorSize+sectorHashSize]
		sH2 := sHashes[h2TableOffset : h2TableOffset+h2Count*hashw.Size20]
		if !equalBytes(h2Table0, sH2) {
			counts.H2++
			if report != nil {
				report(Report{PartitionIndex: pidx, HashLevel: 2, Sector: int(s), Kind: ErrorTableCopy,
					IsZero: isAllZero(gdataEnc[s*sectorSize : (s+1)*sectorSize])})
			}
		}
	}

	for s := uint32(0); s < maxSector; s += 8 {
		sg := s / 8
		sHashes := gdata[s*sectorSize : s*sectorSize+sectorHashSize]
		h1Table := sHashes[h1TableOffset : h1TableOffset+h1Count*hashw.Size20]
		digest := hashw.SHA1(h1Table)
		want := h2Table0[sg*hashw.Size20 : (sg+1)*hashw.Size20]
		if !equalBytes(want, digest[:]) {
			counts.H2++
			if report != nil {
				report(Report{PartitionIndex: pidx, HashLevel: 2, Sector: int(s), Kind: ErrorBadHash,
					IsZero: isAllZero(gdataEnc[s*sectorSize : (s+1)*sectorSize])})
			}
		}
	}

	for sectorStart := uint32(0); sectorStart < maxSector; sectorStart += 8 {
		sectorEnd := sectorStart + 8
		if sectorEnd > maxSector {
			sectorEnd = maxSector
		}
		base := gdata[sectorStart*sectorSize : sectorStart*sectorSize+sectorHashSize]
		baseH1 := base[h1TableOffset : h1TableOffset+h1Count*hashw.Size20]
		for s := sectorStart; s < sectorEnd; s++ {
			sHashes := gdata[s*sectorSize : s*sectorSize+sectorHashSize]
			sH1 := sHashes[h1TableOffset : h1TableOffset+h1Count*hashw.Size20]
			if !equalBytes(baseH1, sH1) {
				counts.H1++
				if report != nil {
					report(Report{PartitionIndex: pidx, HashLevel: 1, Sector: int(s), Kind: ErrorTableCopy,
						IsZero: isAllZero(gdataEnc[s*sectorSize : (s+1)*sectorSize])})
				}
			}
		}
	}

	for s := uint32(0); s < maxSector; s++ {
		sHashes := gdata[s*sectorSize : s*sectorSize+sectorHashSize]
		h0Table := sHashes[h0TableOffset : h0TableOffset+h0Count*hashw.Size20]
		h1Table := sHashes[h1TableOffset : h1TableOffset+h1Count*hashw.Size20]
		digest := hashw.SHA1(h0Table)
		want := h1Table[(s%8)*hashw.Size20 : (s%8+1)*hashw.Size20]
		if !equalBytes(want, digest[:]) {
			counts.H1++
			if report != nil {
				report(Report{PartitionIndex: pidx, HashLevel: 1, Sector: int(s), Kind: ErrorBadHash,
					IsZero: isAllZero(gdataEnc[s*sectorSize : (s+1)*sectorSize])})
			}
		}
	}

	for s := uint32(0); s < maxSector; s++ {
		sHashes := gdata[s*sectorSize : s*sectorSize+sectorHashSize]
		h0Table := sHashes[h0TableOffset : h0TableOffset+h0Count*hashw.Size20]
		data := gdata[s*sectorSize+sectorHashSize : (s+1)*sectorSize]
		for kb := 0; kb < 31; kb++ {
			chunk := data[kb*1024 : (kb+1)*1024]
			digest := hashw.SHA1(chunk)
			want := h0Table[kb*hashw.Size20 : (kb+1)*hashw.Size20]
			if !equalBytes(want, digest[:]) {
				counts.H0++
				if report != nil {
					report(Report{PartitionIndex: pidx, HashLevel: 0, Sector: int(s), KB: kb + 1, Kind: ErrorBadHash,
						IsZero: isAllZero(gdataEnc[s*sectorSize+sectorHashSize+kb*1024 : s*sectorSize+sectorHashSize+(kb+1)*1024])})
				}
			}
		}
	}

	return nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
