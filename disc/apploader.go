package disc

import (
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/wiicrypto/gcn"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
)

// AppLoaderError enumerates the ways a bank's boot-info/main.dol pair
// can fail the loader's own sanity checks, ported from bank_init.cpp's
// APLERR_* enumeration (itself cross-referenced against
// https://www.gc-forever.com/wiki/index.php?title=Apploader).
type AppLoaderError int

const (
	AppLoaderUnknown AppLoaderError = iota
	AppLoaderOK
	AppLoaderFSTLength
	AppLoaderDebugMonSizeUnaligned
	AppLoaderSimMemSizeUnaligned
	AppLoaderPhysMemSizeMinusSimMemSizeNotGTDebugMonSize
	AppLoaderSimMemSizeNotLEPhysMemSize
	AppLoaderIllegalFSTAddress
	AppLoaderDOLExceedsSizeLimit
	AppLoaderDOLAddrLimitRetailExceeded
	AppLoaderDOLAddrLimitDebugExceeded
	AppLoaderDOLTextSegTooBig
	AppLoaderDOLDataSegTooBig
)

// AppLoaderResult is the outcome of InitAppLoader: the specific error
// (or AppLoaderOK) plus up to three error-specific context values, in
// the same order bank_init.cpp populates entry->aplerr_val.
type AppLoaderResult struct {
	Error AppLoaderError
	Vals  [3]uint32
}

// dolHeader is a parsed 0x100-byte GameCube/Wii DOL executable header.
type dolHeader struct {
	textOffset [gcn.DOLTextCount]uint32
	dataOffset [gcn.DOLDataCount]uint32
	textAddr   [gcn.DOLTextCount]uint32
	dataAddr   [gcn.DOLDataCount]uint32
	textSize   [gcn.DOLTextCount]uint32
	dataSize   [gcn.DOLDataCount]uint32
	bssAddr    uint32
	bssSize    uint32
}

func parseDOLHeader(buf []byte) dolHeader {
	var d dolHeader
	for i := 0; i < gcn.DOLTextCount; i++ {
		d.textOffset[i] = lba.GetU32BE(buf[gcn.DOLOffTextOffsets+i*4:])
		d.textAddr[i] = lba.GetU32BE(buf[gcn.DOLOffTextAddrs+i*4:])
		d.textSize[i] = lba.GetU32BE(buf[gcn.DOLOffTextSizes+i*4:])
	}
	for i := 0; i < gcn.DOLDataCount; i++ {
		d.dataOffset[i] = lba.GetU32BE(buf[gcn.DOLOffDataOffsets+i*4:])
		d.dataAddr[i] = lba.GetU32BE(buf[gcn.DOLOffDataAddrs+i*4:])
		d.dataSize[i] = lba.GetU32BE(buf[gcn.DOLOffDataSizes+i*4:])
	}
	d.bssAddr = lba.GetU32BE(buf[gcn.DOLOffBSSAddr:])
	d.bssSize = lba.GetU32BE(buf[gcn.DOLOffBSSSize:])
	return d
}

// dolAddressLimitExemptLow and dolAddressLimitExemptHigh bound a
// window certain first-party titles' DOLs legitimately exceed an
// apploader's address limit within, per dol_check_address_limit.
const (
	dolAddressLimitExemptLow  = 0x81100000
	dolAddressLimitExemptHigh = 0x81130000
)

func (d *dolHeader) withinAddressLimit(limit uint32) bool {
	check := func(addr, size uint32) bool {
		if addr == 0 {
			return true
		}
		end := addr + size
		if (end < dolAddressLimitExemptLow || end > dolAddressLimitExemptHigh) && end > limit {
			return false
		}
		return true
	}
	for i := 0; i < gcn.DOLTextCount; i++ {
		if d.textOffset[i] != 0 && !check(d.textAddr[i], d.textSize[i]) {
			return false
		}
	}
	for i := 0; i < gcn.DOLDataCount; i++ {
		if d.dataOffset[i] != 0 && !check(d.dataAddr[i], d.dataSize[i]) {
			return false
		}
	}
	return check(d.bssAddr, d.bssSize)
}

func alignUp32(v uint32) uint32 {
	return (v + 31) &^ 31
}

// InitAppLoader validates a bank's boot block (bb2), boot info (bi2),
// and main.dol against the GameCube/Wii apploader's own sanity checks,
// reporting the first violation found. cryptoType must be
// sigtools.CryptoNone for Wii banks — partitions are never decrypted
// on the fly here, matching bank_init.cpp's own restriction.
func InitAppLoader(r reader.Reader, bankType BankType, cryptoType sigtools.CryptoType, gameLBAStart uint32) (*AppLoaderResult, error) {
	var lbaStart uint32
	var shift uint
	isWii := false

	switch bankType {
	case BankTypeEmpty:
		return nil, rvtherrors.New(rvtherrors.BankEmpty)
	case BankTypeUnknown:
		return nil, rvtherrors.New(rvtherrors.BankUnknown)
	case BankTypeWiiDLBank2:
		return nil, rvtherrors.New(rvtherrors.BankDL2)
	case BankTypeGCN:
		lbaStart, shift, isWii = 0, 0, false
	case BankTypeWiiSL, BankTypeWiiDL:
		lbaStart, shift, isWii = gameLBAStart, 2, true
	default:
		return nil, rvtherrors.New(rvtherrors.BankUnknown)
	}

	if isWii && cryptoType != sigtools.CryptoNone {
		return nil, rvtherrors.New(rvtherrors.IsEncrypted)
	}

	if isWii {
		sector := make([]byte, lba.Size)
		if _, err := r.Read(sector, lbaStart+1, 1); err != nil {
			return nil, err
		}
		dataOffset := int64(lba.GetU32BE(sector[0xB8:])) << shift
		lbaStart += lba.FromBytes(dataOffset)
	}

	buf := make([]byte, lba.Size)
	if _, err := r.Read(buf, lbaStart+2, 1); err != nil {
		return nil, err
	}

	boot := buf[0x20:]
	bootFilePosition := lba.GetU32BE(boot[gcn.BB2OffBootFilePosition:])
	fstPosition := lba.GetU32BE(boot[gcn.BB2OffFSTPosition:])
	fstLength := lba.GetU32BE(boot[gcn.BB2OffFSTLength:])
	fstMaxLength := lba.GetU32BE(boot[gcn.BB2OffFSTMaxLength:])
	fstAddress := lba.GetU32BE(boot[gcn.BB2OffFSTAddress:])

	bi2 := boot[gcn.BootBlockSize:]
	debugMonSize := lba.GetU32BE(bi2[gcn.BI2OffDebugMonSize:])
	simMemSize := lba.GetU32BE(bi2[gcn.BI2OffSimMemSize:])
	dolLimit := lba.GetU32BE(bi2[gcn.BI2OffDolLimit:])

	fstAfterDOL := bootFilePosition < fstPosition

	if !fstAfterDOL && fstLength > fstMaxLength {
		return &AppLoaderResult{
			Error: AppLoaderFSTLength,
			Vals:  [3]uint32{fstLength << shift, fstMaxLength << shift},
		}, nil
	}

	switch {
	case debugMonSize%32 != 0:
		return &AppLoaderResult{Error: AppLoaderDebugMonSizeUnaligned, Vals: [3]uint32{debugMonSize}}, nil
	case simMemSize%32 != 0:
		return &AppLoaderResult{Error: AppLoaderSimMemSizeUnaligned, Vals: [3]uint32{simMemSize}}, nil
	case simMemSize < gcn.PhysMemSize && debugMonSize >= gcn.PhysMemSize-simMemSize:
		return &AppLoaderResult{
			Error: AppLoaderPhysMemSizeMinusSimMemSizeNotGTDebugMonSize,
			Vals:  [3]uint32{gcn.PhysMemSize, simMemSize, debugMonSize},
		}, nil
	case simMemSize > gcn.PhysMemSize:
		return &AppLoaderResult{
			Error: AppLoaderSimMemSizeNotLEPhysMemSize,
			Vals:  [3]uint32{gcn.PhysMemSize, simMemSize},
		}, nil
	case fstAddress > 0x81700000:
		return &AppLoaderResult{Error: AppLoaderIllegalFSTAddress, Vals: [3]uint32{fstAddress}}, nil
	}

	dolOffset := int64(bootFilePosition) << shift
	dolBuf := make([]byte, 2*lba.Size)
	if _, err := r.Read(dolBuf, lbaStart+lba.FromBytes(dolOffset), 2); err != nil {
		return nil, err
	}
	dol := parseDOLHeader(dolBuf[dolOffset%lba.Size:])

	if dolLimit != 0 {
		var dolSize uint32
		for i := 0; i < gcn.DOLTextCount; i++ {
			if dol.textOffset[i] != 0 {
				dolSize = alignUp32(dolSize + dol.textSize[i])
			}
		}
		for i := 0; i < gcn.DOLDataCount; i++ {
			if dol.dataOffset[i] != 0 {
				dolSize = alignUp32(dolSize + dol.dataSize[i])
			}
		}
		if dolSize > dolLimit {
			return &AppLoaderResult{Error: AppLoaderDOLExceedsSizeLimit, Vals: [3]uint32{dolSize, dolLimit}}, nil
		}
	}

	var retailLimit uint32 = 0x80700000
	if isWii {
		retailLimit = 0x80900000
	}
	const debugLimit = 0x81200000

	if !dol.withinAddressLimit(retailLimit) {
		return &AppLoaderResult{Error: AppLoaderDOLAddrLimitRetailExceeded, Vals: [3]uint32{retailLimit}}, nil
	}
	if !dol.withinAddressLimit(debugLimit) {
		return &AppLoaderResult{Error: AppLoaderDOLAddrLimitDebugExceeded, Vals: [3]uint32{debugLimit}}, nil
	}

	for i := 0; i < gcn.DOLTextCount; i++ {
		if dol.textOffset[i] != 0 {
			end := dol.textAddr[i] + dol.textSize[i]
			if end > debugLimit {
				return &AppLoaderResult{
					Error: AppLoaderDOLTextSegTooBig,
					Vals:  [3]uint32{dol.textAddr[i], end},
				}, nil
			}
		}
	}
	for i := 0; i < gcn.DOLDataCount; i++ {
		if dol.dataOffset[i] != 0 {
			end := dol.dataAddr[i] + dol.dataSize[i]
			if end > debugLimit {
				return &AppLoaderResult{
					Error: AppLoaderDOLDataSegTooBig,
					Vals:  [3]uint32{dol.dataAddr[i], end},
				}, nil
			}
		}
	}

	if fstAfterDOL && fstLength > fstMaxLength {
		return &AppLoaderResult{
			Error: AppLoaderFSTLength,
			Vals:  [3]uint32{fstLength << shift, fstMaxLength << shift},
		}, nil
	}

	return &AppLoaderResult{Error: AppLoaderOK}, nil
}
