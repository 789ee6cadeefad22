//go:build linux

package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_MODIFY | unix.IN_ATTRIB | unix.IN_CLOSE_WRITE

// inotifyWatcher recursively watches root with one inotify watch descriptor
// per directory, adding watches for new subdirectories as they're created.
type inotifyWatcher struct {
	fd int
	f  *os.File

	mu     sync.Mutex
	byWD   map[int32]string // wd -> absolute dir path
	byPath map[string]int32

	ch   chan WatchEvent
	done chan struct{}
}

func newInotifyWatcher(root string) (*inotifyWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("scanner: inotify_init1: %w", err)
	}
	w := &inotifyWatcher{
		fd:     fd,
		f:      os.NewFile(uintptr(fd), "inotify"),
		byWD:   map[int32]string{},
		byPath: map[string]int32{},
		ch:     make(chan WatchEvent, 256),
		done:   make(chan struct{}),
	}
	if err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() || filepath.Base(path) == ".filoco" {
			return nil
		}
		return w.addWatch(path)
	}); err != nil {
		w.f.Close()
		return nil, fmt.Errorf("scanner: inotify initial walk: %w", err)
	}
	go w.loop()
	return w, nil
}

func (w *inotifyWatcher) addWatch(path string) error {
	wd, err := unix.InotifyAddWatch(w.fd, path, inotifyMask)
	if err != nil {
		return fmt.Errorf("scanner: inotify_add_watch %s: %w", path, err)
	}
	w.mu.Lock()
	w.byWD[int32(wd)] = path
	w.byPath[path] = int32(wd)
	w.mu.Unlock()
	return nil
}

func (w *inotifyWatcher) loop() {
	buf := make([]byte, 64*(unix.SizeofInotifyEvent+256))
	for {
		n, err := w.f.Read(buf)
		if err != nil {
			close(w.ch)
			return
		}
		off := 0
		for off+unix.SizeofInotifyEvent <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
			nameLen := int(raw.Len)
			name := ""
			if nameLen > 0 {
				nameBytes := buf[off+unix.SizeofInotifyEvent : off+unix.SizeofInotifyEvent+nameLen]
				name = string(bytes.TrimRight(nameBytes, "\x00"))
			}
			off += unix.SizeofInotifyEvent + nameLen

			w.mu.Lock()
			dir, ok := w.byWD[raw.Wd]
			w.mu.Unlock()
			if !ok || name == "" {
				continue
			}

			if raw.Mask&unix.IN_ISDIR != 0 && raw.Mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
				_ = w.addWatch(filepath.Join(dir, name))
			}

			var st unix.Stat_t
			var dirIno uint64
			if unix.Stat(dir, &st) == nil {
				dirIno = st.Ino
			}
			select {
			case w.ch <- WatchEvent{DirIno: dirIno, Dir: dir, Name: name}:
			default:
			}
		}
	}
}

func (w *inotifyWatcher) Events() <-chan WatchEvent { return w.ch }

func (w *inotifyWatcher) Close() error {
	return w.f.Close()
}
