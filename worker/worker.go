// Package worker implements the cancellable job façade every long-running
// RVT-H operation (extract, import, re-crypt, verify) runs through: a
// single-threaded computation that reports progress and checks a
// cancellation flag at each step, per spec.md §4.13/§5.
package worker

import (
	"sync/atomic"

	"github.com/bodgit/rvth/rvtherrors"
)

// Phase names the stage of work a ProgressFunc is reporting on, e.g.
// "extract", "import", "encrypt", "recrypt", "verify" — operation-specific.
type Phase string

// ProgressFunc receives a (phase, processed, total) tuple after each
// unit of work. processed/total are in LBAs, except for the "recrypt"
// phase, which counts partitions. Returning an error aborts
// the job immediately, the same as a cancellation.
type ProgressFunc func(phase Phase, processedLBA, totalLBA uint32) error

// Job is a single cancellable, single-threaded unit of work. The zero
// value is not usable; construct with New.
type Job struct {
	canceled atomic.Bool
}

// New returns a fresh, non-canceled Job.
func New() *Job {
	return &Job{}
}

// Cancel requests the job stop at its next progress checkpoint. Safe
// to call from any goroutine; the job itself never spawns one, but a
// host UI driving it from a background thread needs to signal it from
// elsewhere.
func (j *Job) Cancel() {
	j.canceled.Store(true)
}

// Canceled reports whether Cancel has been called.
func (j *Job) Canceled() bool {
	return j.canceled.Load()
}

// Report invokes progress (if non-nil) and then checks the
// cancellation flag, returning rvtherrors.ErrCanceled if set. Every
// suspension point in an extract/import/recrypt/verify loop calls this
// once per unit of work — it is the job's only cancellation point, a
// best-effort check rather than a preemption.
func (j *Job) Report(progress ProgressFunc, phase Phase, processedLBA, totalLBA uint32) error {
	if progress != nil {
		if err := progress(phase, processedLBA, totalLBA); err != nil {
			return err
		}
	}
	if j.canceled.Load() {
		return rvtherrors.ErrCanceled
	}
	return nil
}

// Run executes fn, translating a canceled mid-run into
// rvtherrors.ErrCanceled regardless of what fn itself returned,
// matching spec.md's "short-circuits the operation with a Canceled
// result" — fn's own error (if any) is still returned when the job
// was not canceled.
func (j *Job) Run(fn func(j *Job) error) error {
	err := fn(j)
	if j.Canceled() {
		return rvtherrors.ErrCanceled
	}
	return err
}
