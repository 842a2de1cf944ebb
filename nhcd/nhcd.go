// Package nhcd implements the RVT-H Reader's on-disk bank table: the
// "NHCD" magic header and eight fixed bank-entry slots at LBA
// 0x300000, the extended-bank-table relocation used when more than
// eight banks are present, and the fallback synthesis applied when no
// valid table is found at all. Ported from
// original_source/src/librvth/nhcd_structs.h.
package nhcd

import (
	"bytes"
	"errors"
	"syscall"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
)

// Magic is the "NHCD" bank-table signature, big-endian uint32.
const Magic uint32 = 0x4E484344

// BankCount is the number of bank-entry slots in a standard table.
const BankCount = 8

// TableAddressLBA is the fixed LBA offset of the bank table on every
// RVT-H Reader unit.
const TableAddressLBA uint32 = 0x300000

// BankSizeLBA is the maximum size of a single bank.
const BankSizeLBA uint32 = 0x8C4A00

// Known bank content sizes, in LBAs, for the bank types that carry a
// fixed-size payload: a retail (encrypted) or no-crypto (decrypted,
// trimmed) single- or dual-layer Wii image, or a standard GCN image.
// disc.InitBank and the show-table display use these to distinguish a
// bank that exactly fills its slot from one sized by its own disc
// header instead. The "RVTR" variants are the hardware's own full-slot
// sizes (used to size a bank's reader.Reader window), distinct from
// the smaller "Retail"/"NoCrypto" content sizes that describe how much
// of that slot an actual disc image occupies.
const (
	BankWiiSLSizeRetailLBA   uint32 = 0x8C1200
	BankWiiSLSizeRVTRLBA     uint32 = 0x8C4A00
	BankWiiSLSizeNoCryptoLBA uint32 = 0x800000
	BankWiiDLSizeRetailLBA   uint32 = 0xFDA700
	BankWiiDLSizeRVTRLBA     uint32 = 0xFE9F00
	BankWiiDLSizeNoCryptoLBA uint32 = 0xEE0000
	BankGCNSizeRetailLBA     uint32 = 0x2B82C0
)

// ExtBankTableBank1SizeLBA and ExtBankTableBank1OffsetLBA describe
// where bank 1 is relocated to when bank_count exceeds BankCount: bank
// 1 moves to LBA 0 and its usable size shrinks to make room for the
// relocated table occupying [0, TableAddressLBA).
const (
	ExtBankTableBank1SizeLBA   = TableAddressLBA
	ExtBankTableBank1OffsetLBA = TableAddressLBA - ExtBankTableBank1SizeLBA // 0
)

// HeaderSize and EntrySize are the fixed, 512-byte-aligned sizes of
// the bank table header and each bank entry.
const (
	HeaderSize = lba.Size
	EntrySize  = lba.Size
)

// Status reports how the bank table was located, following
// NHCD_Status_e: a genuine table, or one of three fallback states used
// to synthesize a read-only single/default bank layout when the drive
// has never been formatted by RVT-H Reader software.
type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	StatusMissing
	StatusHasMBR
	StatusHasGPT
)

// BankType enumerates a bank entry's Type field.
type BankType uint32

const (
	BankTypeEmpty BankType = 0x00000000
	BankTypeGCN   BankType = 0x4743314C // "GC1L"
	BankTypeWiiSL BankType = 0x4E4E314C // "NN1L"
	BankTypeWiiDL BankType = 0x4E4E324C // "NN2L"
)

// Header is the parsed 512-byte bank table header.
type Header struct {
	Magic     uint32
	BankCount uint32
}

// Entry is one parsed 512-byte bank table slot.
type Entry struct {
	Type      BankType
	Timestamp string
	LBAStart  uint32
	LBALen    uint32
}

// ParseHeader decodes a raw 512-byte header buffer.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, errors.New("nhcd: header buffer too short")
	}
	magic := lba.GetU32BE(buf[0:4])
	if magic != Magic {
		return nil, rvtherrors.New(rvtherrors.NhcdTableMagic)
	}
	return &Header{
		Magic:     magic,
		BankCount: lba.GetU32BE(buf[8:12]),
	}, nil
}

// EncodeHeader serializes a Header back into a 512-byte buffer
// matching the on-disk layout (only Magic and BankCount are
// meaningful; the rest of the reserved fields are written as the
// fixed constants the original tool always wrote).
func EncodeHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	lba.PutU32BE(buf[0:4], Magic)
	lba.PutU32BE(buf[4:8], 1)
	lba.PutU32BE(buf[8:12], h.BankCount)
	lba.PutU32BE(buf[16:20], 0x002FF000)
	return buf
}

// ParseEntry decodes a raw 512-byte bank entry buffer.
func ParseEntry(buf []byte) (*Entry, error) {
	if len(buf) < EntrySize {
		return nil, errors.New("nhcd: entry buffer too short")
	}
	return &Entry{
		Type:      BankType(lba.GetU32BE(buf[0:4])),
		Timestamp: trimNUL(buf[0x12 : 0x12+14]),
		LBAStart:  lba.GetU32BE(buf[0x20:0x24]),
		LBALen:    lba.GetU32BE(buf[0x24:0x28]),
	}, nil
}

// EncodeEntry serializes an Entry back into a 512-byte buffer.
func EncodeEntry(e *Entry) []byte {
	buf := make([]byte, EntrySize)
	lba.PutU32BE(buf[0:4], uint32(e.Type))
	for i := 0; i < 14; i++ {
		buf[4+i] = '0'
	}
	copy(buf[0x12:0x12+14], e.Timestamp)
	lba.PutU32BE(buf[0x20:0x24], e.LBAStart)
	lba.PutU32BE(buf[0x24:0x28], e.LBALen)
	return buf
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// BankStartLBA computes a bank's starting LBA per NHCD_BANK_START_LBA:
// bank 0 starts right after the table unless an extended table (more
// than BankCount banks) relocated it to LBA 0; every other bank is
// spaced BankSizeLBA apart following the table.
func BankStartLBA(bank int, bankCount uint32) uint32 {
	if bank > 0 {
		return TableAddressLBA + (HeaderSize+EntrySize*BankCount)/lba.Size + BankSizeLBA*uint32(bank)
	}
	if bankCount <= BankCount {
		return TableAddressLBA + (HeaderSize+EntrySize*BankCount)/lba.Size
	}
	return ExtBankTableBank1OffsetLBA
}

// Table is the parsed in-memory bank table: the header plus however
// many entries BankCount (or the extended count) requires.
type Table struct {
	Header  Header
	Entries []Entry
	Status  Status
}

// Read loads and parses the bank table from file, synthesizing a
// fallback single-bank layout (Status Missing/HasMBR/HasGPT) if no
// "NHCD" magic is found, per spec: devices that have never been
// RVT-H-Reader-formatted still need to be readable as one big GCN/Wii
// image.
func Read(file *reffile.RefFile) (*Table, error) {
	hdrBuf := make([]byte, HeaderSize)
	if n, err := file.ReadAt(hdrBuf, lba.ToBytes(TableAddressLBA)); err != nil || n != len(hdrBuf) {
		return fallbackTable(file)
	}

	hdr, err := ParseHeader(hdrBuf)
	if err != nil {
		return fallbackTable(file)
	}

	count := hdr.BankCount
	if count == 0 {
		return nil, rvtherrors.New(rvtherrors.InvalidBankCount)
	}

	// Entries beyond the first eight (an extended bank table) are
	// stored contiguously right after the standard eight slots; only
	// the banks' own start LBAs are relocated, not the table entries.
	entries := make([]Entry, count)
	for i := uint32(0); i < count; i++ {
		buf := make([]byte, EntrySize)
		off := lba.ToBytes(TableAddressLBA) + HeaderSize + int64(i)*EntrySize
		if n, err := file.ReadAt(buf, off); err != nil || n != len(buf) {
			return nil, rvtherrors.FromErrno(syscall.EIO)
		}
		entry, err := ParseEntry(buf)
		if err != nil {
			return nil, err
		}
		entries[i] = *entry
	}

	return &Table{Header: *hdr, Entries: entries, Status: StatusOK}, nil
}

// WriteBankEntry writes a single bank-entry slot back to file. It
// refuses on a fallback table (Status != StatusOK): synthesized tables
// don't correspond to any on-disk entry to update.
func WriteBankEntry(file *reffile.RefFile, table *Table, bank int, entry *Entry) error {
	if table.Status != StatusOK {
		return rvtherrors.New(rvtherrors.NotHdd)
	}
	if bank < 0 || bank >= len(table.Entries) {
		return errors.New("nhcd: bank index out of range")
	}

	buf := EncodeEntry(entry)
	off := lba.ToBytes(TableAddressLBA) + HeaderSize + int64(bank)*EntrySize
	if n, err := file.WriteAt(buf, off); err != nil || n != len(buf) {
		return rvtherrors.FromErrno(syscall.EIO)
	}

	table.Entries[bank] = *entry

	return nil
}

// fallbackTable synthesizes a read-only, 8-slot table treating the
// whole device as a single bank, classifying why no NHCD table was
// found (missing entirely, or an MBR/GPT partition table is present
// instead) purely for diagnostic display.
func fallbackTable(file *reffile.RefFile) (*Table, error) {
	status := detectFallbackStatus(file)

	size, err := file.Size()
	if err != nil {
		size = 0
	}
	lbaLen := lba.FromBytes(size)

	entries := make([]Entry, BankCount)
	entries[0] = Entry{Type: BankTypeGCN, LBAStart: 0, LBALen: lbaLen}
	for i := 1; i < BankCount; i++ {
		entries[i] = Entry{Type: BankTypeEmpty}
	}

	return &Table{
		Header:  Header{Magic: Magic, BankCount: BankCount},
		Entries: entries,
		Status:  status,
	}, nil
}

// gptSignature is the 8-byte "EFI PART" magic a GPT header carries at
// the very start of LBA 1.
var gptSignature = []byte("EFI PART")

// detectFallbackStatus sniffs sector 0 for an MBR boot signature and
// sector 1 for the GPT header magic to explain why no NHCD table is
// present, purely informationally.
func detectFallbackStatus(file *reffile.RefFile) Status {
	sector0 := make([]byte, lba.Size)
	if n, err := file.ReadAt(sector0, 0); err != nil || n != len(sector0) {
		return StatusMissing
	}
	if sector0[0x1FE] != 0x55 || sector0[0x1FF] != 0xAA {
		return StatusMissing
	}

	sector1 := make([]byte, lba.Size)
	if n, err := file.ReadAt(sector1, lba.ToBytes(1)); err == nil && n == len(sector1) {
		if bytes.Equal(sector1[:len(gptSignature)], gptSignature) {
			return StatusHasGPT
		}
	}
	return StatusHasMBR
}
