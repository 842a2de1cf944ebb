package transfer

import (
	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/rsaw"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/bodgit/rvth/wiicrypto/wii"
	"github.com/bodgit/rvth/worker"
)

// PhaseRecrypt is the progress phase reported while RecryptPartitions
// runs, one unit per partition rewritten.
const PhaseRecrypt worker.Phase = "recrypt"

// certChain names the three certificates (ticket-signing, CA,
// TMD-signing) a partition header's inline cert chain carries once
// recrypted to a given target key.
type certChain struct {
	ticketIssuer cert.Issuer
	caIssuer     cert.Issuer
	tmdIssuer    cert.Issuer
}

func certChainFor(toKey keystore.KeyName) certChain {
	if toKey == keystore.KeyDebug {
		return certChain{cert.IssuerDpkiTicket, cert.IssuerDpkiCA, cert.IssuerDpkiTMD}
	}
	return certChain{cert.IssuerPpkiTicket, cert.IssuerPpkiCA, cert.IssuerPpkiTMD}
}

// cryptoTypeFor maps a target common-key name to the CryptoType a
// successfully recrypted bank's CryptoInfo should report afterward.
func cryptoTypeFor(toKey keystore.KeyName) sigtools.CryptoType {
	switch toKey {
	case keystore.KeyDebug:
		return sigtools.CryptoDebug
	case keystore.KeyKorean:
		return sigtools.CryptoKorean
	case keystore.KeyVWiiRetail:
		return sigtools.CryptoVWii
	default:
		return sigtools.CryptoRetail
	}
}

// RecryptPartitions re-encrypts every title key in a Wii bank's
// partitions to toKey's common key, fakesigning the rebuilt ticket and
// TMD — or, for a Debug target, signing them for real with the devel
// ticket/TMD private keys, since Debug IOS validates the signature
// where retail/Korean/vWii targets don't — mirroring
// RvtH::recryptWiiPartitions. Update partitions are dropped from the
// table first (rvth_ptbl_RemoveUpdates), since their signatures aren't
// rewritten and carrying them along mismatched would fail
// verification. iosForce, if >= 3, overrides the IOS title version
// every recrypted TMD requests; pass 0 to leave it alone.
func RecryptPartitions(bank *disc.BankInfo, store *keystore.Store, toKey keystore.KeyName, iosForce int, job *worker.Job, progress worker.ProgressFunc) error {
	switch bank.Type {
	case disc.BankTypeWiiSL, disc.BankTypeWiiDL:
	case disc.BankTypeEmpty:
		return rvtherrors.New(rvtherrors.BankEmpty)
	case disc.BankTypeWiiDLBank2:
		return rvtherrors.New(rvtherrors.BankDL2)
	case disc.BankTypeGCN:
		return rvtherrors.New(rvtherrors.NotWiiImage)
	default:
		return rvtherrors.New(rvtherrors.BankUnknown)
	}
	if bank.Crypto == nil || bank.Crypto.CryptoType <= sigtools.CryptoNone {
		return rvtherrors.New(rvtherrors.IsUnencrypted)
	}
	if bank.PartitionTable == nil {
		return rvtherrors.New(rvtherrors.PartitionTableCorrupted)
	}

	if job == nil {
		job = worker.New()
	}

	bank.PartitionTable.RemoveUpdatePartitions()
	if err := disc.WritePartitionTable(bank.Reader, bank.PartitionTable); err != nil {
		return err
	}

	chain := certChainFor(toKey)
	ticketCert, err := store.Cert(chain.ticketIssuer)
	if err != nil {
		return err
	}
	caCert, err := store.Cert(chain.caIssuer)
	if err != nil {
		return err
	}
	tmdCert, err := store.Cert(chain.tmdIssuer)
	if err != nil {
		return err
	}
	newChain := append(append(append([]byte(nil), ticketCert...), caCert...), tmdCert...)

	var ticketKey, tmdKey *rsaw.PrivateKey2048
	if toKey == keystore.KeyDebug {
		if ticketKey, err = store.PrivateKey(cert.IssuerDpkiTicket); err != nil {
			return err
		}
		if tmdKey, err = store.PrivateKey(cert.IssuerDpkiTMD); err != nil {
			return err
		}
	}

	entries := bank.PartitionTable.Entries
	total := uint32(len(entries))

	for i := range entries {
		if err := job.Report(progress, PhaseRecrypt, uint32(i), total); err != nil {
			return err
		}
		if err := recryptOnePartition(bank, &entries[i], store, toKey, chain, ticketKey, tmdKey, newChain, iosForce); err != nil {
			return err
		}
	}

	bank.Crypto.CryptoType = cryptoTypeFor(toKey)

	return bank.Reader.Flush()
}

// recryptOnePartition rewrites one partition's ticket, TMD, and inline
// cert chain in place: the ticket's title key is re-encrypted under
// toKey (sigtools.RecryptTicket), the TMD's issuer field and (if
// requested) IOS version are updated, and both are re-signed — the
// partition's H3 table, data, and data size are untouched, since
// recryption only changes who can decrypt the title key, not the
// disc's own content.
func recryptOnePartition(bank *disc.BankInfo, pte *disc.PartitionEntry, store *keystore.Store, toKey keystore.KeyName, chain certChain, ticketKey, tmdKey *rsaw.PrivateKey2048, newChain []byte, iosForce int) error {
	header := make([]byte, wii.PartitionHeaderSize)
	if _, err := bank.Reader.Read(header, pte.LBAStart, wii.PartitionHeaderSize/lba.Size); err != nil {
		return err
	}

	ticket := header[:wii.TicketSize]
	if err := sigtools.RecryptTicket(ticket, store, toKey); err != nil {
		return err
	}
	if toKey == keystore.KeyDebug {
		if err := sigtools.RealsignTicketOrTMD(ticket, ticketKey); err != nil {
			return err
		}
	} else if err := sigtools.FakesignTicket(ticket); err != nil {
		return err
	}

	tmdOffset := lba.GetU34Rshift2(header[wii.PartOffTMDOffset:])
	tmdSize := int64(lba.GetU32BE(header[wii.PartOffTMDSize:]))
	if tmdOffset <= 0 || tmdOffset+tmdSize > int64(len(header)) {
		return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
	}
	tmd := header[tmdOffset : tmdOffset+tmdSize]

	clearIssuerField(tmd[wii.TMDOffIssuer : wii.TMDOffIssuer+wii.TMDOffIssuerLen])
	copy(tmd[wii.TMDOffIssuer:], chain.tmdIssuer.Name())

	if iosForce >= 3 {
		lba.PutU32BE(tmd[wii.TMDOffSysVersion:], 1)
		lba.PutU32BE(tmd[wii.TMDOffSysVersion+4:], uint32(iosForce))
	}

	if toKey == keystore.KeyDebug {
		if err := sigtools.RealsignTicketOrTMD(tmd, tmdKey); err != nil {
			return err
		}
	} else if err := sigtools.FakesignTMD(tmd); err != nil {
		return err
	}

	certOffset := lba.GetU34Rshift2(header[wii.PartOffCertChainOffset:])
	if certOffset > 0 && certOffset+int64(len(newChain)) <= int64(len(header)) {
		copy(header[certOffset:], newChain)
		lba.PutU32BE(header[wii.PartOffCertChainSize:], uint32(len(newChain)))
	}

	if err := StampID(bank, pte, header); err != nil {
		return err
	}

	_, err := bank.Reader.Write(header, pte.LBAStart, wii.PartitionHeaderSize/lba.Size)
	return err
}

func clearIssuerField(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
