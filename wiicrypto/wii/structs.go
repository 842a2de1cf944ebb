// Package wii defines the on-disk Wii ticket, TMD, and partition-header
// binary layouts, ported field-for-field from
// libwiicrypto/wii_structs.h. All multi-byte fields are big-endian;
// accessors mirror the lba package's BigEndian get/put helpers rather
// than encoding/binary.Read, since these structs are read in place out
// of a shared partition-header buffer, not streamed.
package wii

const (
	// TicketSize is the fixed size of an RVL_Ticket.
	TicketSize = 0x2A4

	// TMDHeaderSize is the fixed size of an RVL_TMD_Header, excluding
	// the variable-length content table that follows it.
	TMDHeaderSize = 0x1E4

	// ContentEntrySize is the size of one RVL_Content_Entry.
	ContentEntrySize = 0x24

	// PartitionHeaderSize is the fixed size of a Wii partition header:
	// ticket + TMD/cert-chain/H3/data offsets + inline cert/TMD data.
	PartitionHeaderSize = 0x8000
)

// Ticket field byte offsets within a TicketSize-byte buffer.
const (
	TicketOffSignatureType  = 0x000
	TicketOffSignature      = 0x004
	TicketOffPaddingSig     = 0x104
	TicketOffIssuer         = 0x140
	TicketOffIssuerLen      = 0x40
	TicketOffECDHData       = 0x180
	TicketOffPadding1       = 0x1BC
	TicketOffEncTitleKey    = 0x1BF
	TicketOffUnknown1       = 0x1CF
	TicketOffTicketID       = 0x1D0
	TicketOffConsoleID      = 0x1D8
	TicketOffTitleID        = 0x1DC
	TicketOffUnknown2       = 0x1E4
	TicketOffTicketVersion  = 0x1E6
	TicketOffPermittedMask  = 0x1E8
	TicketOffPermitMask     = 0x1EC
	TicketOffTitleExport    = 0x1F0
	TicketOffCommonKeyIdx   = 0x1F1
	TicketOffUnknown3       = 0x1F2
	TicketOffContentAccess  = 0x222
	TicketOffContentAccessN = 0x40
	TicketOffPadding2       = 0x262
	TicketOffTimeLimits     = 0x264
)

// Common Key index values stored in a ticket's CommonKeyIdx byte.
const (
	CommonKeyIndexDefault = 0
	CommonKeyIndexKorean  = 1
	CommonKeyIndexVWii    = 2
)

// TMD header field byte offsets within a TMDHeaderSize-byte buffer.
const (
	TMDOffSignatureType   = 0x000
	TMDOffSignature       = 0x004
	TMDOffPaddingSig      = 0x104
	TMDOffIssuer          = 0x140
	TMDOffIssuerLen       = 0x40
	TMDOffVersion         = 0x180
	TMDOffCACRLVersion    = 0x181
	TMDOffSignerCRLVer    = 0x182
	TMDOffPadding1        = 0x183
	TMDOffSysVersion      = 0x184
	TMDOffTitleID         = 0x18C
	TMDOffTitleType       = 0x194
	TMDOffGroupID         = 0x198
	TMDOffReserved        = 0x19A
	TMDOffAccessRights    = 0x1D8
	TMDOffTitleVersion    = 0x1DC
	TMDOffNumContents     = 0x1DE
	TMDOffBootIndex       = 0x1E0
	TMDOffPadding2        = 0x1E2
)

// Partition header field byte offsets: the ticket occupies
// [0, TicketSize), followed by TMD/cert-chain/H3/data offset fields.
const (
	PartOffTicket           = 0x000
	PartOffTMDSize           = 0x2A4
	PartOffTMDOffset         = 0x2A8
	PartOffCertChainSize     = 0x2AC
	PartOffCertChainOffset   = 0x2B0
	PartOffH3TableOffset     = 0x2B4
	PartOffDataOffset        = 0x2B8
	PartOffDataSize          = 0x2BC
	PartOffData              = 0x2C0
)

// H3TableSize is the fixed size of a partition's H3 hash table.
const H3TableSize = 0x18000

// AccessRights bit flags stored in a TMD header's AccessRights field.
const (
	AccessRightsAHBProt  = 1 << 0
	AccessRightsDVDVideo = 1 << 1
)

// PartitionType enumerates the Wii volume-group partition table's
// Type field.
type PartitionType uint32

const (
	PartitionTypeGame             PartitionType = 0
	PartitionTypeUpdate           PartitionType = 1
	PartitionTypeChannelInstaller PartitionType = 2
)

// VolumeGroupTableAddress is the fixed disc-relative byte offset of
// the Wii volume group table, which precedes the four volume groups'
// partition-table entries.
const VolumeGroupTableAddress = 0x40000

// VolumeGroupCount is the number of volume groups in a
// VolumeGroupTable.
const VolumeGroupCount = 4

// VolumeGroupEntrySize is the size of one volume-group-table entry
// (count + rshift2 address).
const VolumeGroupEntrySize = 8

// PartitionTableEntrySize is the size of one partition-table entry
// (rshift2 address + type).
const PartitionTableEntrySize = 8

// MaxPartitionTableEntries bounds the combined partition table across
// all four volume groups (ptbl.cpp's fixed 31-entry on-stack array).
const MaxPartitionTableEntries = 31
