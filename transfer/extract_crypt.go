package transfer

import (
	"crypto/cipher"

	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/wiicrypto/aesw"
	"github.com/bodgit/rvth/wiicrypto/hashw"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/bodgit/rvth/wiicrypto/wii"
	"github.com/bodgit/rvth/worker"
)

// The encrypted-sector and group geometry here is identical to
// verify's (32 KiB sectors, 1 KiB hash blocks, 64-sector/2 MiB groups,
// H0/H1/H2 table offsets, and the data IV stashed in the encrypted
// H2 table's final entry) since ExtractToGCMEncrypted builds exactly
// the structure WiiPartitions checks. Redefined locally rather than
// exported from package verify, which has no reason to expose its
// decode-only internals to an encoder.
const (
	sectorSize      = 0x8000
	sectorHashSize  = 0x400
	sectorDataSize  = sectorSize - sectorHashSize
	sectorsPerGroup = 64
	groupSizeEnc    = sectorSize * sectorsPerGroup
	groupSizeDec    = sectorDataSize * sectorsPerGroup

	h0Count = 31
	h1Count = 8
	h2Count = 8

	h0TableOffset = 0
	h1TableOffset = h0Count*hashw.Size20 + 20
	h2TableOffset = h1TableOffset + h1Count*hashw.Size20 + 32
	dataIVOffset  = h2TableOffset + (h2Count-1)*hashw.Size20 + 4

	// unencGroupLBA and encGroupLBA are the LBA sizes of one group's
	// worth of data before and after encryption: 62 LBA/sector (31 KiB)
	// times 64 sectors unencrypted, versus groupSizeEnc/512 (64 LBA/
	// sector, 32 KiB) encrypted.
	unencGroupLBA = sectorDataSize * sectorsPerGroup / lba.Size
	encGroupLBA   = groupSizeEnc / lba.Size
)

// PhaseEncrypt is the progress phase reported while converting an
// unencrypted partition's data into standard encrypted Wii sectors.
const PhaseEncrypt worker.Phase = "encrypt"

// encryptGroup builds one standard encrypted 2 MiB Wii group from
// plain, exactly groupSizeDec bytes of unencrypted partition data (the
// caller zero-pads a short final group), mirroring
// rvth_encrypt_group's H0->H1->H2->H3 cascade: a per-sector H0 table
// of 31 one-KiB chunk hashes; a per-8-sector-subgroup H1 table (each
// entry the hash of one member sector's H0 table, replicated
// identically into all 8 of that subgroup's sectors); a per-group H2
// table (each entry the hash of one subgroup's H1 table, replicated
// into every one of the group's 64 sectors); and the returned H3 entry,
// the hash of that H2 table. Each sector's hash block is then
// encrypted (key, zero IV) before its own post-encryption H2-table
// bytes become the IV that encrypts that same sector's data, exactly
// what verify's decode cascade expects to find.
func encryptGroup(plain []byte, block cipher.Block) ([]byte, [hashw.Size20]byte, error) {
	if len(plain) != groupSizeDec {
		return nil, [hashw.Size20]byte{}, rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
	}

	h0Tables := make([][]byte, sectorsPerGroup)
	for s := 0; s < sectorsPerGroup; s++ {
		data := plain[s*sectorDataSize : (s+1)*sectorDataSize]
		h0 := make([]byte, h0Count*hashw.Size20)
		for kb := 0; kb < h0Count; kb++ {
			digest := hashw.SHA1(data[kb*1024 : (kb+1)*1024])
			copy(h0[kb*hashw.Size20:], digest[:])
		}
		h0Tables[s] = h0
	}

	subgroups := sectorsPerGroup / 8
	h1Tables := make([][]byte, subgroups)
	for sg := 0; sg < subgroups; sg++ {
		h1 := make([]byte, h1Count*hashw.Size20)
		for j := 0; j < 8; j++ {
			digest := hashw.SHA1(h0Tables[sg*8+j])
			copy(h1[j*hashw.Size20:], digest[:])
		}
		h1Tables[sg] = h1
	}

	h2Table := make([]byte, h2Count*hashw.Size20)
	for sg := 0; sg < h2Count; sg++ {
		digest := hashw.SHA1(h1Tables[sg])
		copy(h2Table[sg*hashw.Size20:], digest[:])
	}

	h3Entry := hashw.SHA1(h2Table)

	zeroIV := make([]byte, aesw.KeySize)
	enc := make([]byte, groupSizeEnc)

	for s := 0; s < sectorsPerGroup; s++ {
		hashBlock := make([]byte, sectorHashSize)
		copy(hashBlock[h0TableOffset:], h0Tables[s])
		copy(hashBlock[h1TableOffset:], h1Tables[s/8])
		copy(hashBlock[h2TableOffset:], h2Table)

		if err := aesw.EncryptBlock(hashBlock, block, zeroIV); err != nil {
			return nil, [hashw.Size20]byte{}, err
		}

		dataIV := append([]byte(nil), hashBlock[dataIVOffset:dataIVOffset+16]...)
		data := append([]byte(nil), plain[s*sectorDataSize:(s+1)*sectorDataSize]...)
		if err := aesw.EncryptBlock(data, block, dataIV); err != nil {
			return nil, [hashw.Size20]byte{}, err
		}

		copy(enc[s*sectorSize:], hashBlock)
		copy(enc[s*sectorSize+sectorHashSize:], data)
	}

	return enc, h3Entry, nil
}

// headerLBA and h3TableLBA are the LBA sizes of a partition's header
// and H3 table, identical on both sides of the conversion. dstDataLBA
// is where a partition's data starts once encrypted, header then H3
// table then data; srcDataLBA is where it starts unencrypted, header
// then data directly — the unencrypted source carries no H3 table at
// all, since there's no hash tree to authenticate without one.
const (
	headerLBA  = wii.PartitionHeaderSize / lba.Size
	h3TableLBA = wii.H3TableSize / lba.Size
	dstDataLBA = headerLBA + h3TableLBA
	srcDataLBA = headerLBA
)

// gcmEncryptedLBALen computes the destination GCM's total LBA length
// for converting an unencrypted game partition of gameLBALen LBAs
// (rooted at the bank's own LBA 0, i.e. including the partition's
// LBAStart) into a standard encrypted image: the partition's own
// header is carried over as-is, an H3 table is inserted ahead of its
// data, and the data itself grows from 62 to 64 LBA per sector.
// gameLBAStart LBAs of pre-partition content (volume/partition
// tables, any other partitions) are carried over unchanged.
func gcmEncryptedLBALen(gameLBAStart, gameLBALen uint32) uint32 {
	lbaTmp := gameLBALen - srcDataLBA

	groups := lbaTmp / unencGroupLBA
	gcmLBA := groups * encGroupLBA
	if lbaTmp%unencGroupLBA != 0 {
		gcmLBA += encGroupLBA
	}

	return gcmLBA + dstDataLBA + gameLBAStart
}

// ExtractToGCMEncrypted converts a still-unencrypted Wii bank (an RVT-H
// dev-reader dump, whose partitions carry 31 KiB/sector plaintext data
// with no hash tree at all) into a standalone GCM holding standard
// 32 KiB/sector encrypted data, computing the full hash tree from
// scratch for the game partition and re-deriving its TMD content hash
// (H4) to match. Everything before the game partition's data — volume
// and partition tables, the partition's own header/cert chain, any
// other partitions — is copied through unchanged via copySparse.
func ExtractToGCMEncrypted(bank *disc.BankInfo, destPath string, store *keystore.Store, job *worker.Job, progress worker.ProgressFunc) error {
	if err := checkExtractable(bank); err != nil {
		return err
	}
	if bank.Type != disc.BankTypeWiiSL && bank.Type != disc.BankTypeWiiDL {
		return rvtherrors.New(rvtherrors.NotWiiImage)
	}
	if bank.Crypto == nil || bank.Crypto.CryptoType > sigtools.CryptoNone {
		return rvtherrors.New(rvtherrors.IsEncrypted)
	}
	if bank.PartitionTable == nil {
		return rvtherrors.New(rvtherrors.PartitionTableCorrupted)
	}
	game, ok := bank.PartitionTable.FindGamePartition()
	if !ok {
		return rvtherrors.New(rvtherrors.NoGamePartition)
	}

	if job == nil {
		job = worker.New()
	}

	hdr := make([]byte, wii.PartitionHeaderSize)
	if _, err := bank.Reader.Read(hdr, game.LBAStart, wii.PartitionHeaderSize/lba.Size); err != nil {
		return err
	}

	titleKey, err := sigtools.DecryptTitleKey(hdr[:wii.TicketSize], store)
	if err != nil {
		return err
	}
	block, err := aesw.NewCipher(titleKey)
	if err != nil {
		return err
	}

	gcmLBALen := gcmEncryptedLBALen(game.LBAStart, game.LBALen)

	dst, err := reffile.OpenOrCreateWritable(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := dst.MakeSparse(lba.ToBytes(gcmLBALen)); err != nil {
		return err
	}

	dstReader, err := reader.NewPlain(dst, 0, gcmLBALen)
	if err != nil {
		return err
	}

	// Everything up to and including the partition's own header carries
	// over verbatim at the same LBA offset on both sides; only what
	// follows the header differs (an H3 table is inserted, and the
	// data itself grows from 62 to 64 LBA per sector).
	headerEndLBA := game.LBAStart + headerLBA

	groupCount := (game.LBALen - srcDataLBA) / unencGroupLBA
	if (game.LBALen-srcDataLBA)%unencGroupLBA != 0 {
		groupCount++
	}

	var processed uint32
	total := headerEndLBA + h3TableLBA + groupCount*encGroupLBA

	if err := copySparse(dstReader, bank.Reader, 0, 0, headerEndLBA, job, PhaseEncrypt, progress, &processed, total); err != nil {
		return err
	}

	h3tbl := make([]byte, wii.H3TableSize)
	srcLBA := game.LBAStart + srcDataLBA
	dstLBA := game.LBAStart + dstDataLBA
	plainGroup := make([]byte, groupSizeDec)

	for g := uint32(0); g < groupCount; g++ {
		if err := job.Report(progress, PhaseEncrypt, processed, total); err != nil {
			return err
		}

		for i := range plainGroup {
			plainGroup[i] = 0
		}
		remaining := game.LBAStart + game.LBALen - srcLBA
		readLen := uint32(unencGroupLBA)
		if readLen > remaining {
			readLen = remaining
		}
		if readLen > 0 {
			if _, err := bank.Reader.Read(plainGroup[:lba.ToBytes(readLen)], srcLBA, readLen); err != nil {
				return err
			}
		}

		enc, h3Entry, err := encryptGroup(plainGroup, block)
		if err != nil {
			return err
		}
		copy(h3tbl[g*hashw.Size20:], h3Entry[:])

		if _, err := dstReader.Write(enc, dstLBA, encGroupLBA); err != nil {
			return err
		}

		srcLBA += unencGroupLBA
		dstLBA += encGroupLBA
		processed += encGroupLBA
	}

	if _, err := dstReader.Write(h3tbl, headerEndLBA, h3TableLBA); err != nil {
		return err
	}

	h4 := hashw.SHA1(h3tbl)
	tmdOffset := lba.GetU34Rshift2(hdr[wii.PartOffTMDOffset:])
	tmd := hdr[tmdOffset:]
	contentEntry := tmd[wii.TMDHeaderSize:]
	copy(contentEntry[16:16+hashw.Size20], h4[:])
	lba.PutU64BE(contentEntry[8:16], uint64(int64(groupCount)*groupSizeEnc))

	lba.PutU34Rshift2(hdr[wii.PartOffH3TableOffset:], lba.ToBytes(headerLBA))
	lba.PutU34Rshift2(hdr[wii.PartOffDataOffset:], lba.ToBytes(dstDataLBA))
	lba.PutU34Rshift2(hdr[wii.PartOffDataSize:], int64(groupCount)*groupSizeEnc)

	if _, err := dstReader.Write(hdr, game.LBAStart, headerLBA); err != nil {
		return err
	}

	return dst.Flush()
}
