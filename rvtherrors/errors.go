// Package rvtherrors implements the two-axis error taxonomy used
// throughout the RVT-H toolkit: structural "domain" errors (an
// operation doesn't make sense given the state of a bank or image)
// and operating-system errors (an I/O call failed), plus cancellation.
//
// The C++ original conflates both into a single signed int (positive
// domain codes, negative errno values). The Go port keeps them
// separate fields of one sum type instead, per the recommendation in
// the design notes: a domain error and an errno are never both set.
package rvtherrors

import (
	"fmt"
	"syscall"
)

// DomainCode enumerates the structural errors specific to RVT-H bank
// and disc-image handling.
type DomainCode int

const (
	// None indicates no domain error; check Errno or Canceled instead.
	None DomainCode = iota
	UnrecognizedFile
	NhcdTableMagic
	NoBanks
	BankUnknown
	BankEmpty
	BankDL2
	NotADevice
	BankAlreadyDeleted
	BankNotDeleted
	NotHdd
	NoGamePartition
	InvalidBankCount
	IsHdd
	ImageTooBig
	BankNotEmptyOrDeleted
	NotWiiImage
	IsUnencrypted
	IsEncrypted
	PartitionTableCorrupted
	PartitionHeaderCorrupted
	IssuerUnknown
	DlExtNoBank1
	DlLastBank
	Bank2DLNotEmptyOrDeleted
	DlNotContiguous
	NdevGcnNotSupported
)

var domainStrings = map[DomainCode]string{
	None:                     "success",
	UnrecognizedFile:         "unrecognized file format",
	NhcdTableMagic:           "NHCD bank table has the wrong magic",
	NoBanks:                  "no banks",
	BankUnknown:              "selected bank has an unknown status",
	BankEmpty:                "selected bank is empty",
	BankDL2:                  "selected bank is the second bank of a DL image",
	NotADevice:               "attempting to write to a disk image, not a device",
	BankAlreadyDeleted:       "attempting to delete a bank that's already deleted",
	BankNotDeleted:           "attempting to undelete a bank that isn't deleted",
	NotHdd:                   "attempting to modify the bank table of a non-HDD image",
	NoGamePartition:          "game partition was not found in a Wii image",
	InvalidBankCount:         "bank_count field is invalid",
	IsHdd:                    "operation cannot be performed on devices or HDD images",
	ImageTooBig:              "source image does not fit in an RVT-H bank",
	BankNotEmptyOrDeleted:    "destination bank is not empty or deleted",
	NotWiiImage:              "Wii-specific operation was requested on a non-Wii image",
	IsUnencrypted:            "image is unencrypted",
	IsEncrypted:              "image is encrypted",
	PartitionTableCorrupted:  "Wii partition table is corrupted",
	PartitionHeaderCorrupted: "at least one Wii partition header is corrupted",
	IssuerUnknown:            "certificate has an unknown issuer",
	DlExtNoBank1:             "extended bank table: cannot use bank 1 for a dual-layer image",
	DlLastBank:               "cannot use the last bank for a dual-layer image",
	Bank2DLNotEmptyOrDeleted: "the second bank for the dual-layer image is not empty or deleted",
	DlNotContiguous:          "the two banks are not contiguous",
	NdevGcnNotSupported:      "NDEV headers for GCN are currently unsupported",
}

func (d DomainCode) String() string {
	if s, ok := domainStrings[d]; ok {
		return s
	}
	return "unknown error"
}

// Error is the unified error type returned by every RVT-H operation:
// exactly one of Domain, Errno, or Canceled applies.
type Error struct {
	Domain   DomainCode
	Errno    syscall.Errno
	Canceled bool
}

func (e *Error) Error() string {
	switch {
	case e.Canceled:
		return "operation canceled"
	case e.Errno != 0:
		return e.Errno.Error()
	default:
		return e.Domain.String()
	}
}

// Is reports whether target is an *Error with the same classification,
// so callers can use errors.Is(err, rvtherrors.New(BankEmpty)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Canceled == t.Canceled && e.Errno == t.Errno && e.Domain == t.Domain
}

// New wraps a structural domain error.
func New(code DomainCode) *Error {
	return &Error{Domain: code}
}

// FromErrno wraps a POSIX errno.
func FromErrno(errno syscall.Errno) *Error {
	return &Error{Errno: errno}
}

// ErrCanceled is the sentinel returned when a worker job is canceled
// mid-operation; it must never be wrapped in additional error framing.
var ErrCanceled = &Error{Canceled: true}

// Wrap annotates err with additional context, typically the affected
// bank number, the way the CLI layer prefixes user-visible failures.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
