package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/fhandle"
)

// OpenByHandle reopens a persisted FileHandle against this store's root
// mount (open_handle in the original Store). It implements
// fhandle.MountOpener.
func (s *Store) OpenByHandle(h fhandle.FileHandle, flags int) (*os.File, error) {
	fh := unix.NewFileHandle(h.Type, h.Bytes)
	fd, err := unix.OpenByHandleAt(int(s.RootDir.Fd()), fh, flags)
	if err != nil {
		return nil, fmt.Errorf("store: open_by_handle_at: %w", err)
	}
	return os.NewFile(uintptr(fd), "<by-handle>"), nil
}

// HandleExists reports whether h still resolves to a live inode
// (handle_exists in the original Store).
func (s *Store) HandleExists(h fhandle.FileHandle) bool {
	f, err := s.OpenByHandle(h, unix.O_PATH)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
