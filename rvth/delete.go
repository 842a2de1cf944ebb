package rvth

import (
	"github.com/bodgit/rvth/disc"
	"github.com/bodgit/rvth/rvtherrors"
)

// DeleteBank marks bank index as deleted: its NHCD entry is rewritten
// all-zero (so undelete can no longer recover the original LBA extent
// from the table alone), but the disc content on the underlying device
// is left untouched, since InitBank's header-reconstruction path is
// exactly what lets a later undelete bring it back. A WiiDL bank's
// paired Bank2 slot is deleted alongside it, since Bank2 is never
// independently selectable.
func (img *Image) DeleteBank(index int) error {
	b, err := img.Bank(index)
	if err != nil {
		return err
	}
	if !img.IsHDD {
		return rvtherrors.New(rvtherrors.NotHdd)
	}
	if b.Type == disc.BankTypeEmpty {
		return rvtherrors.New(rvtherrors.BankEmpty)
	}
	if b.IsDeleted {
		return rvtherrors.New(rvtherrors.BankAlreadyDeleted)
	}
	if b.Type == disc.BankTypeWiiDLBank2 {
		return rvtherrors.New(rvtherrors.BankDL2)
	}

	var bank2 *BankEntry
	if b.Type == disc.BankTypeWiiDL {
		if index+1 >= len(img.Banks) {
			return rvtherrors.New(rvtherrors.DlLastBank)
		}
		bank2 = img.Banks[index+1]
		if bank2.Type != disc.BankTypeWiiDLBank2 {
			return rvtherrors.New(rvtherrors.DlNotContiguous)
		}
	}

	b.IsDeleted = true
	if err := img.writeEntry(b); err != nil {
		b.IsDeleted = false
		return err
	}

	if bank2 != nil {
		// Bank2 has no on-disk NHCD entry of its own — the paired
		// bank's entry already carries the shared DL image's extent —
		// so only its runtime state needs updating.
		bank2.IsDeleted = true
	}

	return nil
}

// UndeleteBank restores a previously deleted bank's NHCD entry from
// the disc content InitBank already reconstructed: the bank's type,
// LBA start/length, and timestamp are written back exactly as if the
// bank had just been imported, clearing IsDeleted. A bank whose header
// cannot be reconstructed (type still Empty) has nothing to undelete
// into and is rejected.
func (img *Image) UndeleteBank(index int) error {
	b, err := img.Bank(index)
	if err != nil {
		return err
	}
	if !img.IsHDD {
		return rvtherrors.New(rvtherrors.NotHdd)
	}
	if !b.IsDeleted {
		return rvtherrors.New(rvtherrors.BankNotDeleted)
	}
	if b.Type == disc.BankTypeWiiDLBank2 {
		return rvtherrors.New(rvtherrors.BankDL2)
	}

	var bank2 *BankEntry
	if b.Type == disc.BankTypeWiiDL {
		if index+1 >= len(img.Banks) {
			return rvtherrors.New(rvtherrors.DlLastBank)
		}
		bank2 = img.Banks[index+1]
		if bank2.Type != disc.BankTypeWiiDLBank2 || !bank2.IsDeleted {
			return rvtherrors.New(rvtherrors.Bank2DLNotEmptyOrDeleted)
		}
	}

	b.IsDeleted = false
	if err := img.writeEntry(b); err != nil {
		b.IsDeleted = true
		return err
	}

	if bank2 != nil {
		bank2.IsDeleted = false
		// Bank2 has no NHCD entry of its own to rewrite; only the
		// paired bank's entry carries the shared DL image's extent.
	}

	return nil
}
