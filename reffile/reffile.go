// Package reffile implements the OS file / block-device abstraction
// shared by every Reader: positioned read/write, sparse-hole creation,
// device detection, and re-open-as-writable. A RefFile is shared by
// every Reader built on top of it (reference-counted; the last holder
// closes the underlying file), mirroring the way bodgit-wud's own
// reader.go shares one afero.File across the readers built on top of
// a multi-part WUD image.
package reffile

import (
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

var fs = afero.NewOsFs()

// RefFile is a reference-counted, positioned file/device handle.
type RefFile struct {
	mu       sync.Mutex // serializes make_writable()
	name     string
	file     afero.File
	writable bool
	refs     int32
}

// Open opens name read-only.
func Open(name string) (*RefFile, error) {
	return open(name, os.O_RDONLY)
}

// OpenWritable opens name read-write.
func OpenWritable(name string) (*RefFile, error) {
	return open(name, os.O_RDWR)
}

// OpenOrCreateWritable opens name read-write, creating it if it
// doesn't exist.
func OpenOrCreateWritable(name string) (*RefFile, error) {
	return open(name, os.O_RDWR|os.O_CREATE)
}

func open(name string, flag int) (*RefFile, error) {
	return openOnFs(fs, name, flag)
}

// OpenOnFs opens name read-write against an arbitrary afero.Fs, bypassing
// the OS filesystem; used by tests to exercise RefFile against an
// afero.MemMapFs without touching disk.
func OpenOnFs(filesystem afero.Fs, name string) (*RefFile, error) {
	return openOnFs(filesystem, name, os.O_RDWR)
}

func openOnFs(filesystem afero.Fs, name string, flag int) (*RefFile, error) {
	f, err := filesystem.OpenFile(name, flag, 0o666)
	if err != nil {
		return nil, err
	}
	return &RefFile{
		name:     name,
		file:     f,
		writable: flag&(os.O_RDWR|os.O_WRONLY) != 0,
		refs:     1,
	}, nil
}

// Ref increments the reference count and returns the same RefFile,
// for a new Reader sharing this handle.
func (rf *RefFile) Ref() *RefFile {
	atomic.AddInt32(&rf.refs, 1)
	return rf
}

// Close decrements the reference count, closing the underlying file
// once the last holder releases it.
func (rf *RefFile) Close() error {
	if atomic.AddInt32(&rf.refs, -1) > 0 {
		return nil
	}
	return rf.file.Close()
}

// ReadAt reads len(p) bytes starting at off.
func (rf *RefFile) ReadAt(p []byte, off int64) (int, error) {
	return rf.file.ReadAt(p, off)
}

// WriteAt writes p starting at off. Returns EROFS-shaped error if the
// file was opened read-only.
func (rf *RefFile) WriteAt(p []byte, off int64) (int, error) {
	if !rf.writable {
		return 0, &os.PathError{Op: "write", Path: rf.name, Err: unix.EROFS}
	}
	return rf.file.WriteAt(p, off)
}

// Seek repositions the handle.
func (rf *RefFile) Seek(offset int64, whence int) (int64, error) {
	return rf.file.Seek(offset, whence)
}

// Size returns the current file size.
func (rf *RefFile) Size() (int64, error) {
	fi, err := rf.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Flush commits any buffered writes. afero.File has no explicit flush;
// Sync is the closest equivalent and is a no-op on in-memory
// filesystems used by tests.
func (rf *RefFile) Flush() error {
	return rf.file.Sync()
}

// IsDevice reports whether name refers to an OS-level block device,
// per the exact policy of spec.md §4.2: a path starting with
// \\.\PhysicalDrive (any case, either slash) on Windows, or /dev/ on
// POSIX.
func IsDevice(name string) bool {
	if runtime.GOOS == "windows" {
		n := strings.ToLower(strings.ReplaceAll(name, "/", `\`))
		return strings.HasPrefix(n, `\\.\physicaldrive`)
	}
	return strings.HasPrefix(name, "/dev/")
}

// IsDevice reports whether this handle's underlying path is an
// OS-level device; device files are never treated as an HDD-image by
// file-size heuristic.
func (rf *RefFile) IsDevice() bool {
	return IsDevice(rf.name)
}

// MakeWritable re-opens the same path writable in place. Idempotent;
// serialized by an internal mutex since concurrent callers racing here
// is explicitly called out in spec.md §5 as needing serialization.
func (rf *RefFile) MakeWritable() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.writable {
		return nil
	}

	if err := rf.file.Close(); err != nil {
		return err
	}
	f, err := fs.OpenFile(rf.name, os.O_RDWR, 0o666)
	if err != nil {
		return err
	}
	rf.file = f
	rf.writable = true
	return nil
}

// MakeSparse pre-extends the file to size and informs the filesystem
// of the sparse region. On POSIX this truncates the file to size and
// then, where available, applies fallocate's
// FALLOC_FL_PUNCH_HOLE|FALLOC_FL_KEEP_SIZE to actually deallocate the
// extent rather than merely declare its logical size.
func (rf *RefFile) MakeSparse(size int64) error {
	if of, ok := rf.file.(*os.File); ok {
		if err := of.Truncate(size); err != nil {
			return err
		}
		// Best effort: punch a hole over the whole region so blocks
		// are not actually allocated. Not fatal if unsupported.
		_ = unix.Fallocate(int(of.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, 0, size)
		return nil
	}
	// MemMapFs and other non-OS filesystems have no sparse concept;
	// degrade to a plain truncate.
	return rf.file.Truncate(size)
}

// Name returns the path this handle was opened from.
func (rf *RefFile) Name() string {
	return rf.name
}

// Closers aggregates the Close error of several RefFiles, used when
// tearing down a failed multi-file open, matching bodgit-wud's own
// reader.go error aggregation for split WUD parts.
func Closers(files ...*RefFile) error {
	var result *multierror.Error
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ io.ReaderAt = (*RefFile)(nil)
var _ io.WriterAt = (*RefFile)(nil)
