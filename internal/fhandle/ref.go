package fhandle

import (
	"fmt"
	"os"
	"weak"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/model"
)

// MountOpener reopens a FileHandle against the mount it was produced from
// (store.open_handle in the original — implemented by internal/store
// against the store's root descriptor).
type MountOpener interface {
	OpenByHandle(h FileHandle, flags int) (*os.File, error)
}

// Ref abstracts an open inode reference: at any time it knows either its
// open descriptor, its stable file handle, or both (spec.md §4.A). It
// exposes exactly two reference modes — strong (holds the FD) and weak
// (kept-by-handle, may fail reopen) — matching the `Either<OwnedFd,
// Handle>` sum type spec.md §9 calls for, realized here with Go 1.24's
// `weak.Pointer` instead of a hand-rolled union.
type Ref struct {
	opener MountOpener
	handle FileHandle

	strong *os.File
	weak   weak.Pointer[os.File]
	isWeak bool

	stat     *unix.Stat_t
	fileType model.FileType
}

// AcquireFromPath opens name path-lessly (no-follow-symlink, relative to
// dirFD) and wraps it in a strong Ref.
func AcquireFromPath(opener MountOpener, dirFD int, name string) (*Ref, error) {
	fd, err := unix.Openat(dirFD, name, unix.O_PATH|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, fmt.Errorf("fhandle: openat %s: %w", name, err)
	}
	return &Ref{opener: opener, strong: os.NewFile(uintptr(fd), name)}, nil
}

// AcquireFromHandle creates a Ref from a persisted FileHandle (a DB row);
// the descriptor is opened lazily on first GetFD.
func AcquireFromHandle(opener MountOpener, h FileHandle) *Ref {
	return &Ref{opener: opener, handle: h}
}

// GetHandle returns the stable handle, computing it from the open
// descriptor on first use (get_handle in the original InodeInfo).
func (r *Ref) GetHandle() (FileHandle, error) {
	if !r.handle.IsZero() {
		return r.handle, nil
	}
	f, err := r.GetFD()
	if err != nil {
		return FileHandle{}, err
	}
	h, _, err := nameToHandleAt(int(f.Fd()), "", unix.AT_EMPTY_PATH)
	if err != nil {
		return FileHandle{}, err
	}
	r.handle = h
	return h, nil
}

// GetFD returns the live descriptor, reopening by handle if the strong
// reference was dropped or demoted and collected. Returns
// ferrors.ErrStale if the handle no longer resolves to a live inode.
func (r *Ref) GetFD() (*os.File, error) {
	if r.strong != nil {
		return r.strong, nil
	}
	if r.isWeak {
		if f := r.weak.Value(); f != nil {
			return f, nil
		}
	}
	if r.handle.IsZero() {
		return nil, fmt.Errorf("fhandle: no handle and no descriptor")
	}
	f, err := r.opener.OpenByHandle(r.handle, unix.O_PATH)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrStale, err)
	}
	r.strong = f
	r.isWeak = false
	return f, nil
}

// Demote drops the strong descriptor reference after caching the handle,
// keeping the descriptor reachable only through a weak.Pointer. A
// subsequent GetFD reopens by handle, failing with ErrStale if the inode
// is gone — this is the FD-pressure relief valve the scan queue uses when
// QUEUE_MAX_FDS is exceeded (spec.md §4.D/§5).
func (r *Ref) Demote() error {
	if r.strong == nil {
		return nil
	}
	if _, err := r.GetHandle(); err != nil {
		return err
	}
	r.weak = weak.Make(r.strong)
	r.isWeak = true
	r.strong = nil
	return nil
}

// GetStat returns cached stat info, refreshing it when force is true or
// none is cached yet.
func (r *Ref) GetStat(force bool) (unix.Stat_t, error) {
	if !force && r.stat != nil {
		return *r.stat, nil
	}
	f, err := r.GetFD()
	if err != nil {
		return unix.Stat_t{}, err
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return unix.Stat_t{}, fmt.Errorf("%w: fstat: %v", ferrors.ErrGone, err)
	}
	r.stat = &st
	r.fileType = modeToType(st.Mode)
	return st, nil
}

func (r *Ref) ClearStat() { r.stat = nil }

// GetType returns one of d|r|l|S, stat'ing lazily if needed.
func (r *Ref) GetType() (model.FileType, error) {
	if r.stat == nil {
		if _, err := r.GetStat(false); err != nil {
			return 0, err
		}
	}
	return r.fileType, nil
}

func modeToType(mode uint32) model.FileType {
	switch mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return model.TypeDir
	case unix.S_IFREG:
		return model.TypeRegular
	case unix.S_IFLNK:
		return model.TypeSymlink
	default:
		return model.TypeSpecial
	}
}

// Close releases the strong descriptor exactly once, on whichever exit
// path reaches it first. A no-op if the Ref only ever held a handle or
// has already been demoted/closed.
func (r *Ref) Close() error {
	if r.strong == nil {
		return nil
	}
	f := r.strong
	r.strong = nil
	return f.Close()
}
