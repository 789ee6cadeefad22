// Package fhandle implements the Handle/Inode reference layer (component
// A): stable kernel file handles and open inode references with lazy
// stat, guaranteed single-close, and weak-reference demotion under
// descriptor pressure.
package fhandle

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// FileHandle is a stable kernel file handle as returned by
// name_to_handle_at(2): an opaque type tag plus an opaque byte blob that
// can be handed to open_by_handle_at(2) later, even after the original
// path is gone, as long as the referenced inode still exists and the
// caller holds CAP_DAC_READ_SEARCH on the containing filesystem.
type FileHandle struct {
	Type  int32
	Bytes []byte
}

func (h FileHandle) Equal(o FileHandle) bool {
	return h.Type == o.Type && bytes.Equal(h.Bytes, o.Bytes)
}

func (h FileHandle) IsZero() bool {
	return h.Type == 0 && len(h.Bytes) == 0
}

// nameToHandleAt wraps unix.NameToHandleAt, returning the FileHandle and
// the mount ID (unused beyond plumbing, kept for parity with
// is_mountpoint's need for it elsewhere in the scanner).
func nameToHandleAt(dirFD int, name string, flags int) (FileHandle, int, error) {
	h, mountID, err := unix.NameToHandleAt(dirFD, name, flags)
	if err != nil {
		return FileHandle{}, 0, fmt.Errorf("fhandle: name_to_handle_at: %w", err)
	}
	return FileHandle{Type: h.Type(), Bytes: append([]byte{}, h.Bytes()...)}, mountID, nil
}

// openByHandleAt wraps unix.OpenByHandleAt. mountFD must be an open
// descriptor within the same mount the handle was produced from.
func openByHandleAt(mountFD int, h FileHandle, flags int) (int, error) {
	fh := unix.NewFileHandle(h.Type, h.Bytes)
	fd, err := unix.OpenByHandleAt(mountFD, fh, flags)
	if err != nil {
		return -1, fmt.Errorf("fhandle: open_by_handle_at: %w", err)
	}
	return fd, nil
}
