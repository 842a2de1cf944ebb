package disc

import (
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/gcn"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/bodgit/rvth/wiicrypto/wii"
)

// InitRegion reads the region-code byte for a bank, from the Wii
// region-settings sector or the GameCube boot-info block depending on
// type. Empty and Unknown banks have no region. A DL image's second
// bank has no region sector of its own; callers should reuse the
// first bank's InitRegion result instead of calling this again.
func InitRegion(r reader.Reader, bankType BankType) (byte, error) {
	var byteOffset int64
	switch bankType {
	case BankTypeEmpty:
		return 0xFF, rvtherrors.New(rvtherrors.BankEmpty)
	case BankTypeUnknown:
		return 0xFF, rvtherrors.New(rvtherrors.BankUnknown)
	case BankTypeWiiDLBank2:
		return 0xFF, rvtherrors.New(rvtherrors.BankDL2)
	case BankTypeGCN:
		byteOffset = gcn.BootInfoAddress + gcn.BI2OffRegionCode
	case BankTypeWiiSL, BankTypeWiiDL:
		byteOffset = gcn.RegionSettingAddress
	default:
		return 0xFF, rvtherrors.New(rvtherrors.BankUnknown)
	}

	sectorLBA := lba.FromBytes(byteOffset - byteOffset%lba.Size)
	sector := make([]byte, lba.Size)
	if _, err := r.Read(sector, sectorLBA, 1); err != nil {
		return 0xFF, err
	}

	sub := int(byteOffset % lba.Size)
	return sector[sub+3], nil // big-endian u32, low byte is the region code
}

// SigResult pairs a signature's key tier with the verification status
// cert.Verify produced for it.
type SigResult struct {
	SigType sigtools.SigType
	Status  cert.Status
}

// CryptoInfo is the result of InitCrypto: the ticket and TMD signature
// results, the IOS title version a Wii game requests, and the derived
// common-key tier used to decrypt its partitions.
type CryptoInfo struct {
	Ticket     SigResult
	TMD        SigResult
	IOSVersion uint8
	CryptoType sigtools.CryptoType
}

// InitCrypto classifies a Wii bank's ticket/TMD signatures and derives
// its common-key tier, per bank_init.cpp's rvth_init_BankEntry_crypto.
// GameCube banks always report CryptoNone with zero-value signature
// results. lookup supplies certificate lookups for cert.Verify; pass
// nil to skip verification (CryptoType is still derived from the
// issuer/common-key-index alone).
func InitCrypto(r reader.Reader, bankType BankType, header *Header, pt *PartitionTable, lookup cert.CertLookup) (*CryptoInfo, error) {
	switch bankType {
	case BankTypeEmpty:
		return nil, rvtherrors.New(rvtherrors.BankEmpty)
	case BankTypeUnknown:
		return nil, rvtherrors.New(rvtherrors.BankUnknown)
	case BankTypeWiiDLBank2:
		return nil, rvtherrors.New(rvtherrors.BankDL2)
	case BankTypeGCN:
		return &CryptoInfo{CryptoType: sigtools.CryptoNone}, nil
	}

	info := &CryptoInfo{}
	if header != nil && header.HashVerify() && header.DiscNoCrypt() {
		info.CryptoType = sigtools.CryptoNone
	}

	game, ok := pt.FindGamePartition()
	if !ok {
		return nil, rvtherrors.New(rvtherrors.NoGamePartition)
	}

	partHeader := make([]byte, wii.PartitionHeaderSize)
	if _, err := r.Read(partHeader, game.LBAStart, uint32(len(partHeader)/lba.Size)); err != nil {
		return nil, err
	}

	ticket := partHeader[:wii.TicketSize]
	ticketIssuer := trimNUL(string(ticket[wii.TicketOffIssuer : wii.TicketOffIssuer+wii.TicketOffIssuerLen]))
	info.Ticket.SigType = signingTierOf(cert.FromName(ticketIssuer))

	if lookup != nil {
		status, err := cert.Verify(ticket, lookup)
		if err == nil {
			info.Ticket.Status = status
		} else {
			info.Ticket.Status = cert.StatusUnknown
		}
	}

	tmdHeader := partHeader[wii.PartOffData:]
	tmdSize := lba.GetU32BE(partHeader[wii.PartOffTMDSize:])
	tmdIssuer := trimNUL(string(tmdHeader[wii.TMDOffIssuer : wii.TMDOffIssuer+wii.TMDOffIssuerLen]))
	info.TMD.SigType = signingTierOf(cert.FromName(tmdIssuer))

	if lookup != nil && int(tmdSize) <= len(tmdHeader) {
		status, err := cert.Verify(tmdHeader[:tmdSize], lookup)
		if err == nil {
			info.TMD.Status = status
		} else {
			info.TMD.Status = cert.StatusUnknown
		}
	}

	sysVersionHi := lba.GetU32BE(tmdHeader[wii.TMDOffSysVersion:])
	sysVersionLo := lba.GetU32BE(tmdHeader[wii.TMDOffSysVersion+4:])
	if sysVersionHi == 1 && sysVersionLo < 256 {
		info.IOSVersion = uint8(sysVersionLo)
	}

	if info.CryptoType != sigtools.CryptoNone {
		commonKeyIndex := ticket[wii.TicketOffCommonKeyIdx]
		switch info.Ticket.SigType {
		case sigtools.SigTypeRetail:
			switch commonKeyIndex {
			case 0:
				info.CryptoType = sigtools.CryptoRetail
			case 1:
				info.CryptoType = sigtools.CryptoKorean
			case 2:
				info.CryptoType = sigtools.CryptoVWii
			default:
				info.CryptoType = sigtools.CryptoUnknown
			}
		case sigtools.SigTypeDebug:
			if commonKeyIndex == 0 {
				info.CryptoType = sigtools.CryptoDebug
			} else {
				info.CryptoType = sigtools.CryptoUnknown
			}
		default:
			info.CryptoType = sigtools.CryptoUnknown
		}
	}

	return info, nil
}

// signingTierOf maps a ticket/TMD issuer to the retail/debug tier
// bank_init.cpp's switch on cert_get_issuer_from_name encodes.
func signingTierOf(issuer cert.Issuer) sigtools.SigType {
	switch issuer {
	case cert.IssuerPpkiTicket, cert.IssuerPpkiTMD:
		return sigtools.SigTypeRetail
	case cert.IssuerDpkiTicket, cert.IssuerDpkiTMD:
		return sigtools.SigTypeDebug
	default:
		return sigtools.SigTypeUnknown
	}
}
