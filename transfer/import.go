package transfer

import (
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/worker"
)

// PhaseImport is the progress phase reported throughout ImportToBank.
const PhaseImport worker.Phase = "import"

// ImportToBank copies lbaCount sectors from src into dst verbatim, the
// reverse direction of ExtractToGCM: a straight read/write loop with
// no sparse-hole elision, since the destination here is a real bank
// slot on the HDD image, not a freshly created sparse file — there's
// nothing to gain by special-casing all-zero blocks on a destination
// that doesn't support holes. Ported from extract.cpp's
// RvtH::copyToHDD.
func ImportToBank(dst, src reader.Reader, lbaCount uint32, job *worker.Job, progress worker.ProgressFunc) error {
	if job == nil {
		job = worker.New()
	}

	buf := make([]byte, lba.ToBytes(copyBufLBA))

	var done uint32
	for done < lbaCount {
		chunk := uint32(copyBufLBA)
		if chunk > lbaCount-done {
			chunk = lbaCount - done
		}

		if err := job.Report(progress, PhaseImport, done, lbaCount); err != nil {
			return err
		}

		n, err := src.Read(buf[:lba.ToBytes(chunk)], done, chunk)
		if err != nil {
			return err
		}
		if n != chunk {
			return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
		}

		if _, err := dst.Write(buf[:lba.ToBytes(chunk)], done, chunk); err != nil {
			return err
		}
		if err := dst.Flush(); err != nil {
			return err
		}

		done += chunk
	}

	return job.Report(progress, PhaseImport, lbaCount, lbaCount)
}
