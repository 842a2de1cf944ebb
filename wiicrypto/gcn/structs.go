// Package gcn defines the on-disk structures shared by GameCube and
// Wii disc images: the disc header magic numbers, the NDDEMO tech-demo
// signature, the boot block / boot info apploader fields, and the DOL
// executable header. Ported field-for-field from the original
// codebase's gcn_structs.h (not itself present in the retrieval
// sources; offsets below are reconstructed from bank_init.cpp's direct
// field accesses plus the widely documented GameCube apploader memory
// map).
package gcn

// Magic numbers at fixed offsets within a 512-byte disc header sector.
const (
	WiiMagic uint32 = 0x5D1C9EA3
	GCNMagic uint32 = 0xC2339F3D
)

// Disc header field offsets.
const (
	HeaderOffID6        = 0x000
	HeaderOffDiscNumber = 0x006
	HeaderOffDiscVer    = 0x007
	HeaderOffMagicWii   = 0x018
	HeaderOffMagicGCN   = 0x01C
	HeaderOffTitle      = 0x020
	HeaderOffTitleLen   = 64
	HeaderOffHashVerify = 0x060
	HeaderOffDiscNoCrypt = 0x061
)

// NDDEMOHeader is the fixed 64-byte signature of early GameCube
// tech-demo discs, which lack the usual GCN magic number.
var NDDEMOHeader = [64]byte{
	0x30, 0x30, 0x00, 0x45, 0x30, 0x31, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x4E, 0x44, 0x44, 0x45, 0x4D, 0x4F, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// RegionSettingAddress and BootInfoAddress are the disc-relative byte
// offsets of the region code for Wii and GameCube images respectively.
const (
	RegionSettingAddress = 0x4E000
	BootInfoAddress      = 0x440
)

// BootBlockAddress is the disc-relative byte offset of the boot block
// (bb2), immediately followed by the boot info (bi2) at
// BootInfoAddress.
const (
	BootBlockAddress = 0x420
	BootBlockSize    = BootInfoAddress - BootBlockAddress // 0x20
)

// Boot block (bb2) field offsets, relative to BootBlockAddress.
const (
	BB2OffBootFilePosition = 0x00 // main.dol offset, shifted by `shift`
	BB2OffFSTPosition      = 0x04
	BB2OffFSTLength        = 0x08
	BB2OffFSTMaxLength     = 0x0C
	BB2OffFSTAddress       = 0x10
)

// Boot info (bi2) field offsets, relative to BootInfoAddress. Only the
// fields bank_init's AppLoader validation actually reads are named;
// the remainder of the 0x2000-byte bi2.bin block is apploader-private
// and unused here.
const (
	BI2OffDebugMonSize = 0x00
	BI2OffSimMemSize   = 0x04
	BI2OffRegionCode   = 0x18
	BI2OffDolLimit     = 0x1C
	BI2Size            = 0x20
)

// PhysMemSize is the GameCube/Wii's physical RAM size, used by the
// AppLoader memory-fit checks.
const PhysMemSize = 24 * 1024 * 1024

// DOL header field offsets and section counts.
const (
	DOLTextCount = 7
	DOLDataCount = 11

	DOLOffTextOffsets = 0x00
	DOLOffDataOffsets = 0x1C
	DOLOffTextAddrs   = 0x48
	DOLOffDataAddrs   = 0x64
	DOLOffTextSizes   = 0x90
	DOLOffDataSizes   = 0xAC
	DOLOffBSSAddr     = 0xD8
	DOLOffBSSSize     = 0xDC
	DOLOffEntryPoint  = 0xE0
	DOLHeaderSize     = 0x100
)
