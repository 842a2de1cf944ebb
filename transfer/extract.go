package transfer

import (
	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/reffile"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/worker"
)

// PhaseExtract is the progress phase reported throughout ExtractToGCM
// and ExtractToGCMEncrypted.
const PhaseExtract worker.Phase = "extract"

// ExtractToGCM copies a bank's full LBA range into a standalone GCM
// file at destPath, byte for byte, eliding all-zero blocks into holes
// in the destination so an already-sparse RVT-H bank (or the trailing
// padding every bank carries out to its fixed slot size) doesn't cost
// real disk space in the extracted copy. Used for GameCube banks and
// already-encrypted Wii banks alike; an unencrypted Wii bank needs
// ExtractToGCMEncrypted instead.
func ExtractToGCM(bank *disc.BankInfo, destPath string, job *worker.Job, progress worker.ProgressFunc) error {
	if err := checkExtractable(bank); err != nil {
		return err
	}

	if job == nil {
		job = worker.New()
	}

	lbaLen := bank.LBALen
	if lbaLen == 0 {
		lbaLen = bank.Reader.LBALen()
	}

	dst, err := reffile.OpenOrCreateWritable(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if err := dst.MakeSparse(lba.ToBytes(lbaLen)); err != nil {
		return err
	}

	dstReader, err := reader.NewPlain(dst, 0, lbaLen)
	if err != nil {
		return err
	}

	var processed uint32
	if err := copySparse(dstReader, bank.Reader, 0, 0, lbaLen, job, PhaseExtract, progress, &processed, lbaLen); err != nil {
		return err
	}

	if err := restoreHeaderIfBlank(dstReader, bank); err != nil {
		return err
	}

	return dst.Flush()
}

// checkExtractable rejects the bank states extraction never makes
// sense for: an empty slot, an unidentified one, and the synthetic
// second half of a dual-layer reservation, which has no header of its
// own to extract.
func checkExtractable(bank *disc.BankInfo) error {
	switch bank.Type {
	case disc.BankTypeEmpty:
		return rvtherrors.New(rvtherrors.BankEmpty)
	case disc.BankTypeUnknown:
		return rvtherrors.New(rvtherrors.BankUnknown)
	case disc.BankTypeWiiDLBank2:
		return rvtherrors.New(rvtherrors.BankDL2)
	}
	return nil
}

// restoreHeaderIfBlank rewrites the extracted copy's first sector from
// bank.Header if sparse-elision left it all-zero: the disc header is exactly the kind of content a
// flush-button-cleared bank reconstructs in memory (disc.HeaderGet)
// without it ever having been all-zero-free on the backing device, so
// a literal sparse copy of such a bank would produce a GCM with no
// header at all.
func restoreHeaderIfBlank(dst reader.Reader, bank *disc.BankInfo) error {
	sector := make([]byte, disc.HeaderSize)
	if _, err := dst.Read(sector, 0, 1); err != nil {
		return err
	}
	if disc.IdentifyHeader(sector) != disc.BankTypeUnknown {
		return nil
	}
	if !isAllZero(sector) {
		return nil
	}
	_, err := dst.Write(bank.Header.Bytes(), 0, 1)
	return err
}
