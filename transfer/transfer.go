// Package transfer implements moving disc images between an RVT-H
// bank and a standalone GCM file: extraction (with sparse-hole
// elision and, for a still-unencrypted bank, on-the-fly conversion to
// standard encrypted Wii sectors) and import (the reverse copy into a
// bank slot), plus the two post-import operations librvth performs on
// the result: re-encrypting a Wii image between common-key tiers, and
// stamping an identifying watermark into an otherwise-empty header
// region. Ported from librvth's extract.cpp, extract_crypt.cpp, and
// recrypt.cpp.
package transfer

import (
	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/worker"
)

// copyBufLBA is the chunk size extraction/import reads and writes at
// once, matching LBA_COUNT_BUF's 1 MiB buffer.
const copyBufLBA = 2048

// sparseBulkLBA and sparseTailLBA are the two granularities copySparse
// checks for all-zero, skippable blocks at: 4 KiB while at least that
// much of the current chunk remains, 512 bytes (one LBA) for what's
// left over.
const (
	sparseBulkLBA = 4096 / lba.Size
	sparseTailLBA = 1
)

// isAllZero reports whether every byte of buf is zero.
func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// copySparse copies lbaCount sectors from src (at srcStart) to dst (at
// dstStart), skipping the write for any all-zero block under the
// assumption that dst was already sized sparse (reffile.MakeSparse)
// and therefore already reads as zero there. Checking happens at
// sparseBulkLBA granularity for the bulk of the range and
// sparseTailLBA for what doesn't divide evenly; the very last LBA of
// the whole range is always written even if zero, so the destination
// file never ends up looking entirely empty to tools that don't
// understand sparse files.
func copySparse(dst, src reader.Reader, srcStart, dstStart, lbaCount uint32, job *worker.Job, phase worker.Phase, progress worker.ProgressFunc, processed *uint32, total uint32) error {
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

		if err := job.Report(progress, phase, *processed, total); err != nil {
			return err
		}

		n, err := src.Read(buf[:lba.ToBytes(chunk)], srcStart+done, chunk)
		if err != nil {
			return err
		}
		if n != chunk {
			return rvtherrors.New(rvtherrors.PartitionHeaderCorrupted)
		}

		var off uint32
		for off+sparseBulkLBA <= chunk {
			if err := writeIfNeeded(dst, buf, off, sparseBulkLBA, done, dstStart, lbaCount); err != nil {
				return err
			}
			off += sparseBulkLBA
		}
		for off < chunk {
			if err := writeIfNeeded(dst, buf, off, sparseTailLBA, done, dstStart, lbaCount); err != nil {
				return err
			}
			off += sparseTailLBA
		}

		*processed += chunk
		done += chunk
	}

	return nil
}

// writeIfNeeded writes the n-LBA block at buf offset off (chunk-local)
// to dst at dstStart+done+off, unless it's all-zero and isn't the
// final LBA of the overall [0, lbaCount) range being copied.
func writeIfNeeded(dst reader.Reader, buf []byte, off, n, done, dstStart, lbaCount uint32) error {
	block := buf[lba.ToBytes(off) : lba.ToBytes(off+n)]
	isFinal := done+off+n == lbaCount
	if !isFinal && isAllZero(block) {
		return nil
	}
	_, err := dst.Write(block, dstStart+done+off, n)
	return err
}
