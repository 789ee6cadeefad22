//go:build linux

package scanner

import (
	"bytes"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fanotifyWatcher subscribes once for the whole mount containing root
// (FANOTIFY_MASK in the original scanner), reporting only the events the
// scanner cares about: creates, deletes, moves, and content modification.
// Unlike inotifyWatcher it needs no per-directory bookkeeping, at the cost
// of requiring CAP_SYS_ADMIN.
type fanotifyWatcher struct {
	fd int
	f  *os.File
	ch chan WatchEvent
}

func newFanotifyWatcher(root string) (*fanotifyWatcher, error) {
	fd, err := unix.FanotifyInit(unix.FAN_CLASS_NOTIF|unix.FAN_CLOEXEC|unix.FAN_NONBLOCK,
		uint(unix.O_RDONLY|unix.O_LARGEFILE))
	if err != nil {
		return nil, fmt.Errorf("scanner: fanotify_init: %w", err)
	}
	mask := uint64(unix.FAN_CREATE | unix.FAN_DELETE | unix.FAN_MOVED_FROM | unix.FAN_MOVED_TO |
		unix.FAN_MODIFY | unix.FAN_ONDIR | unix.FAN_EVENT_ON_CHILD)
	if err := unix.FanotifyMark(fd, unix.FAN_MARK_ADD|unix.FAN_MARK_MOUNT, mask, -1, root); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("scanner: fanotify_mark: %w", err)
	}
	w := &fanotifyWatcher{fd: fd, f: os.NewFile(uintptr(fd), "fanotify"), ch: make(chan WatchEvent, 256)}
	go w.loop()
	return w, nil
}

func (w *fanotifyWatcher) loop() {
	buf := make([]byte, 4096)
	for {
		n, err := w.f.Read(buf)
		if err != nil {
			close(w.ch)
			return
		}
		off := 0
		for off+int(unsafe.Sizeof(unix.FanotifyEventMetadata{})) <= n {
			meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[off]))
			if meta.Fd >= 0 {
				w.handleFD(int(meta.Fd))
				unix.Close(int(meta.Fd))
			}
			if meta.Event_len == 0 {
				break
			}
			off += int(meta.Event_len)
		}
	}
}

// handleFD resolves fanotify's reported fd (the changed file/dir itself, not
// its parent) to a (parent, name) pair via /proc/self/fd, then emits a
// WatchEvent naming the parent directory's inode and the entry's name — the
// scanner's CHECK/SCAN path always re-derives state from the directory
// listing rather than trusting the event payload directly.
func (w *fanotifyWatcher) handleFD(fd int) {
	link, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return
	}
	dir := dirname(link)
	name := basename(link)
	var st unix.Stat_t
	if unix.Stat(dir, &st) != nil {
		return
	}
	select {
	case w.ch <- WatchEvent{DirIno: st.Ino, Dir: dir, Name: name}:
	default:
	}
}

func dirname(p string) string {
	i := bytes.LastIndexByte([]byte(p), '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func basename(p string) string {
	i := bytes.LastIndexByte([]byte(p), '/')
	return p[i+1:]
}

func (w *fanotifyWatcher) Events() <-chan WatchEvent { return w.ch }

func (w *fanotifyWatcher) Close() error { return w.f.Close() }
