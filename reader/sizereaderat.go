package reader

import "io"

// zeroReaderAt is a readerutil.SizeReaderAt that reads back n bytes of
// zeroes. It stands in for a CISO/WBFS "hole" — a logical block the
// container never stored on disk because bodgit-wud's own
// MultiReaderAt composition (wux/reader.go's newSizeReaderAt) has no
// need for one: WUX's dedup table always points at a real physical
// sector, so only the presence-bitmap formats need a synthetic
// zero-filled piece alongside the file-backed ones.
type zeroReaderAt int64

func (z zeroReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(z) {
		return 0, io.EOF
	}
	n := len(p)
	if rem := int64(z) - off; int64(n) > rem {
		n = int(rem)
	}
	for i := range p[:n] {
		p[i] = 0
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (z zeroReaderAt) Size() int64 { return int64(z) }
