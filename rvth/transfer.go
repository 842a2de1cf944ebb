package rvth

import (
	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/nhcd"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/transfer"
	"github.com/bodgit/rvth/wiicrypto/cert"
	"github.com/bodgit/rvth/wiicrypto/keystore"
	"github.com/bodgit/rvth/wiicrypto/sigtools"
	"github.com/bodgit/rvth/worker"
)

// Extract copies bank index out to a standalone GCM file at destPath.
// encrypted selects, for a still-unencrypted Wii bank, whether the
// extracted copy is converted to standard encrypted sectors
// (transfer.ExtractToGCMEncrypted) or left exactly as stored
// (transfer.ExtractToGCM); it's ignored for already-encrypted Wii
// banks and GameCube banks, which only ever extract as-is. store
// supplies the common key needed to derive the encrypted copy's
// per-sector IVs; it's unused when encrypted is false.
func (img *Image) Extract(index int, destPath string, encrypted bool, store *keystore.Store, job *worker.Job, progress worker.ProgressFunc) error {
	b, err := img.Bank(index)
	if err != nil {
		return err
	}

	if encrypted && (b.Type == disc.BankTypeWiiSL || b.Type == disc.BankTypeWiiDL) &&
		b.Crypto != nil && b.Crypto.CryptoType <= sigtools.CryptoNone {
		return transfer.ExtractToGCMEncrypted(b.BankInfo, destPath, store, job, progress)
	}

	return transfer.ExtractToGCM(b.BankInfo, destPath, job, progress)
}

// Import copies a standalone GCM file at srcPath into bank index,
// then — per RvtH::import — either recrypts the result to Debug (if
// its signature isn't already valid Debug-signed content matching
// iosForce) or, when no recryption is needed, just stamps an
// identifier block. Uses img's own Store/Lookup for both reading the
// source image and recrypting the imported copy; a nil Store makes
// recryption impossible, so an image that would otherwise need it
// fails instead of importing unusable content. iosForce, if >= 3,
// additionally forces recryption when the source TMD's IOS version
// doesn't match.
func (img *Image) Import(srcPath string, index int, iosForce int, job *worker.Job, progress worker.ProgressFunc) error {
	dst, err := img.Bank(index)
	if err != nil {
		return err
	}
	if !img.IsHDD {
		return rvtherrors.New(rvtherrors.NotHdd)
	}

	srcFile, err := reffile.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcImg, err := Open(srcFile, img.Store, img.Lookup)
	if err != nil {
		return err
	}
	if srcImg.IsHDD || srcImg.BankCount() > 1 {
		return rvtherrors.New(rvtherrors.IsHdd)
	}
	if srcImg.BankCount() == 0 {
		return rvtherrors.New(rvtherrors.NoBanks)
	}
	src, err := srcImg.Bank(0)
	if err != nil {
		return err
	}

	var bank2 *BankEntry
	if src.Type == disc.BankTypeWiiDL {
		if src.LBALen > nhcd.BankSizeLBA*2 {
			return rvtherrors.New(rvtherrors.ImageTooBig)
		}
		if index+1 >= len(img.Banks) {
			return rvtherrors.New(rvtherrors.DlLastBank)
		}
		bank2 = img.Banks[index+1]
		if bank2.Type != disc.BankTypeEmpty && !bank2.IsDeleted {
			return rvtherrors.New(rvtherrors.Bank2DLNotEmptyOrDeleted)
		}
	} else if src.LBALen > nhcd.BankSizeLBA {
		return rvtherrors.New(rvtherrors.ImageTooBig)
	}

	if dst.Type != disc.BankTypeEmpty && !dst.IsDeleted {
		return rvtherrors.New(rvtherrors.BankNotEmptyOrDeleted)
	}

	if err := img.file.MakeWritable(); err != nil {
		return err
	}

	dstReader, err := reader.NewPlain(img.file, dst.LBAStart, src.LBALen)
	if err != nil {
		return err
	}

	if err := transfer.ImportToBank(dstReader, src.Reader, src.LBALen, job, progress); err != nil {
		return err
	}

	info, err := disc.InitBank(img.file, src.Type, dst.LBAStart, src.LBALen, "", img.Store, img.Lookup)
	if err != nil {
		return err
	}
	dst.BankInfo = info
	dst.LBALen = src.LBALen

	if err := img.writeEntry(dst); err != nil {
		return err
	}

	if bank2 != nil {
		bank2.BankInfo = &disc.BankInfo{
			Reader: bank2.BankInfo.Reader,
			Type:   disc.BankTypeWiiDLBank2,
			LBALen: bank2.BankInfo.LBALen,
		}
		bank2.IsDeleted = false
	}

	return img.finishImport(dst, iosForce, job, progress)
}

// finishImport applies RvtH::import's post-copy step: a GameCube bank
// just gets its identifier stamped, while a Wii bank is recrypted to
// Debug whenever it isn't already valid Debug-signed content matching
// iosForce — recryption subsumes the identifier stamp, since
// transfer.RecryptPartitions calls StampID itself.
func (img *Image) finishImport(dst *BankEntry, iosForce int, job *worker.Job, progress worker.ProgressFunc) error {
	if dst.Type == disc.BankTypeGCN {
		return transfer.StampDiscID(dst.BankInfo)
	}
	if dst.Type != disc.BankTypeWiiSL && dst.Type != disc.BankTypeWiiDL {
		return nil
	}

	needsRecrypt := dst.Crypto == nil ||
		dst.Crypto.CryptoType == sigtools.CryptoRetail ||
		dst.Crypto.CryptoType == sigtools.CryptoKorean ||
		dst.Crypto.CryptoType == sigtools.CryptoVWii ||
		dst.Crypto.Ticket.Status != cert.StatusOK ||
		dst.Crypto.TMD.Status != cert.StatusOK ||
		(iosForce >= 3 && int(dst.Crypto.IOSVersion) != iosForce)

	if !needsRecrypt {
		for _, pte := range dst.PartitionTable.Entries {
			if err := stampPartitionID(dst, &pte); err != nil {
				return err
			}
		}
		return nil
	}

	return transfer.RecryptPartitions(dst.BankInfo, img.Store, keystore.KeyDebug, iosForce, job, progress)
}

func stampPartitionID(bank *BankEntry, pte *disc.PartitionEntry) error {
	header := make([]byte, lba.ToBytes(headerLBAConst))
	if _, err := bank.Reader.Read(header, pte.LBAStart, headerLBAConst); err != nil {
		return err
	}
	if err := transfer.StampID(bank.BankInfo, pte, header); err != nil {
		return err
	}
	_, err := bank.Reader.Write(header, pte.LBAStart, headerLBAConst)
	return err
}

const headerLBAConst = 0x8000 / lba.Size
