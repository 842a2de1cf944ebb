package disc

import (
	"sort"
	"syscall"

	"github.com/bodgit/rvth/lba"
	"github.com/bodgit/rvth/reader"
	"github.com/bodgit/rvth/rvtherrors"
	"github.com/bodgit/rvth/wiicrypto/wii"
)

// volumeGroup is one of the four parsed volume-group-table slots.
type volumeGroup struct {
	count uint32
	addr  int64 // byte offset, already left-shifted by 2
}

// VolumeGroupTable is the parsed 2-LBA volume-group-and-partition-table
// sector pair read from wii.VolumeGroupTableAddress.
type VolumeGroupTable struct {
	groups [wii.VolumeGroupCount]volumeGroup
	raw    []byte // the 2-LBA buffer the partition entries are read from
}

// ParseVolumeGroupTable decodes the combined volume-group table and
// following partition-table entries from a 2-LBA buffer read at
// wii.VolumeGroupTableAddress.
func ParseVolumeGroupTable(buf []byte) (*VolumeGroupTable, error) {
	if len(buf) < 2*lba.Size {
		return nil, rvtherrors.FromErrno(syscall.EIO)
	}
	vg := &VolumeGroupTable{raw: buf}
	for i := 0; i < wii.VolumeGroupCount; i++ {
		off := i * wii.VolumeGroupEntrySize
		vg.groups[i] = volumeGroup{
			count: lba.GetU32BE(buf[off:]),
			addr:  lba.GetU34Rshift2(buf[off+4:]),
		}
	}
	return vg, nil
}

// findGamePartitionLBA locates the first type==Game entry in volume
// group 0, mirroring rvth_find_GamePartition_int's internal,
// table-not-yet-loaded lookup used during disc-header reconstruction.
func (vg *VolumeGroupTable) findGamePartitionLBA() (uint32, bool) {
	g := vg.groups[0]
	tableBase := int64(wii.VolumeGroupTableAddress) + wii.VolumeGroupCount*wii.VolumeGroupEntrySize
	if g.addr != tableBase {
		return 0, false
	}

	count := g.count
	maxEntries := uint32((len(vg.raw) - int(wii.VolumeGroupCount*wii.VolumeGroupEntrySize)) / wii.PartitionTableEntrySize)
	if count > maxEntries {
		count = maxEntries
	}

	entriesOff := int(wii.VolumeGroupCount * wii.VolumeGroupEntrySize)
	for i := uint32(0); i < count; i++ {
		off := entriesOff + int(i)*wii.PartitionTableEntrySize
		ptype := lba.GetU32BE(vg.raw[off+4:])
		if ptype == uint32(wii.PartitionTypeGame) {
			addr := lba.GetU34Rshift2(vg.raw[off:])
			return lba.FromBytes(addr), true
		}
	}
	return 0, false
}

// PartitionEntry is one entry of the consolidated, sorted partition
// table spanning all four volume groups.
type PartitionEntry struct {
	LBAStart uint32
	LBALen   uint32
	Type     wii.PartitionType
	VG       int
	PT       int
	PTOrig   int
}

// volumeGroupOrig records a volume group's original on-disc address
// and partition count, preserved so WritePartitionTable can re-emit
// the table at the same offsets.
type volumeGroupOrig struct {
	Addr  uint32
	Count uint8
}

// PartitionTable is the consolidated, sorted view of a Wii disc's
// up-to-four volume groups' partition tables.
type PartitionTable struct {
	Entries []PartitionEntry
	vgOrig  [wii.VolumeGroupCount]volumeGroupOrig
}

// LoadPartitionTable reads the volume group table and every
// partition-table entry it references, from r (a reader.Reader window
// already scoped to one Wii bank), consolidates all four volume
// groups into one slice sorted by LBAStart, and derives each entry's
// LBALen from the gap to its successor (the last entry's length comes
// from bankLBALen).
func LoadPartitionTable(r reader.Reader, bankLBALen uint32) (*PartitionTable, error) {
	buf := make([]byte, 2*lba.Size)
	if _, err := r.Read(buf, lba.FromBytes(wii.VolumeGroupTableAddress), 2); err != nil {
		return nil, err
	}

	var total uint32
	for i := 0; i < wii.VolumeGroupCount; i++ {
		total += lba.GetU32BE(buf[i*wii.VolumeGroupEntrySize:])
	}
	if total == 0 {
		return &PartitionTable{}, nil
	}
	if total >= wii.MaxPartitionTableEntries {
		return nil, rvtherrors.FromErrno(syscall.EIO)
	}

	entriesOff := wii.VolumeGroupCount * wii.VolumeGroupEntrySize
	entries := make([]PartitionEntry, 0, total)
	var vgOrig [wii.VolumeGroupCount]volumeGroupOrig

	for vgIdx := 0; vgIdx < wii.VolumeGroupCount; vgIdx++ {
		groupOff := vgIdx * wii.VolumeGroupEntrySize
		count := lba.GetU32BE(buf[groupOff:])
		addr := lba.GetU34Rshift2(buf[groupOff+4:])

		vgOrig[vgIdx] = volumeGroupOrig{
			Addr:  uint32(addr >> 2),
			Count: uint8(count),
		}

		if count == 0 {
			continue
		}
		if addr < int64(wii.VolumeGroupTableAddress)+int64(entriesOff) {
			continue
		}

		startIdx := (addr - (int64(wii.VolumeGroupTableAddress) + int64(entriesOff))) / wii.PartitionTableEntrySize
		endIdx := startIdx + int64(count)
		maxEntries := int64((len(buf) - entriesOff) / wii.PartitionTableEntrySize)
		if endIdx > maxEntries {
			continue
		}

		for pt := int64(0); pt < int64(count); pt++ {
			off := entriesOff + int(startIdx+pt)*wii.PartitionTableEntrySize
			paddr := lba.GetU34Rshift2(buf[off:])
			ptype := lba.GetU32BE(buf[off+4:])
			entries = append(entries, PartitionEntry{
				LBAStart: lba.FromBytes(paddr),
				Type:     wii.PartitionType(ptype),
				VG:       vgIdx,
				PT:       int(pt),
				PTOrig:   int(pt),
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].LBAStart < entries[j].LBAStart })

	for i := 0; i < len(entries)-1; i++ {
		entries[i].LBALen = entries[i+1].LBAStart - entries[i].LBAStart
	}
	if n := len(entries); n > 0 {
		entries[n-1].LBALen = bankLBALen - entries[n-1].LBAStart
	}

	return &PartitionTable{Entries: entries, vgOrig: vgOrig}, nil
}

// RemoveUpdatePartitions drops every entry with Type ==
// PartitionTypeUpdate.
func (pt *PartitionTable) RemoveUpdatePartitions() {
	kept := pt.Entries[:0]
	for _, e := range pt.Entries {
		if e.Type != wii.PartitionTypeUpdate {
			kept = append(kept, e)
		}
	}
	pt.Entries = kept
}

// FindGamePartition returns the first Type==Game entry in volume
// group 0.
func (pt *PartitionTable) FindGamePartition() (*PartitionEntry, bool) {
	for i := range pt.Entries {
		if pt.Entries[i].VG == 0 && pt.Entries[i].Type == wii.PartitionTypeGame {
			return &pt.Entries[i], true
		}
	}
	return nil, false
}

// WritePartitionTable rebuilds the 2-LBA volume-group-and-partition
// table image, preserving each non-empty volume group's original
// address (vgOrig, captured at load time) and recomputing each group's
// partition count from the current Entries, then writes it back
// through r. A group left with no entries is written with count and
// address both zero.
func WritePartitionTable(r reader.Reader, pt *PartitionTable) error {
	buf := make([]byte, 2*lba.Size)
	entriesOff := wii.VolumeGroupCount * wii.VolumeGroupEntrySize

	type cursor struct {
		base int64
		next int
	}
	cursors := make([]cursor, wii.VolumeGroupCount)
	for i := 0; i < wii.VolumeGroupCount; i++ {
		ptByte := (int64(pt.vgOrig[i].Addr) << 2) - int64(wii.VolumeGroupTableAddress) - int64(entriesOff)
		cursors[i] = cursor{base: ptByte / wii.PartitionTableEntrySize}
		lba.PutU32BE(buf[i*wii.VolumeGroupEntrySize+4:], pt.vgOrig[i].Addr)
	}

	counts := make([]uint32, wii.VolumeGroupCount)
	for _, e := range pt.Entries {
		idx := int(cursors[e.VG].base) + cursors[e.VG].next
		off := entriesOff + idx*wii.PartitionTableEntrySize
		lba.PutU34Rshift2(buf[off:], lba.ToBytes(e.LBAStart))
		lba.PutU32BE(buf[off+4:], uint32(e.Type))
		cursors[e.VG].next++
		counts[e.VG]++
	}

	for i := 0; i < wii.VolumeGroupCount; i++ {
		if counts[i] == 0 {
			lba.PutU32BE(buf[i*wii.VolumeGroupEntrySize+4:], 0)
		} else {
			lba.PutU32BE(buf[i*wii.VolumeGroupEntrySize:], counts[i])
		}
	}

	_, err := r.Write(buf, lba.FromBytes(wii.VolumeGroupTableAddress), 2)
	return err
}
