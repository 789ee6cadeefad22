package scanner

// WatchMode selects the filesystem-notification backend.
type WatchMode string

const (
	WatchNone     WatchMode = "none"
	WatchInotify  WatchMode = "inotify"
	WatchFanotify WatchMode = "fanotify"
)

// WatchEvent reports that name under dir changed; the scanner resolves it
// into a ScanRequest (find-or-create + CHECK) rather than acting directly,
// so all filesystem I/O still happens from the scan worker.
type WatchEvent struct {
	DirIno uint64
	Dir    string // path, used only to resolve DirIno the first time it is seen
	Name   string
}

// Watcher delivers WatchEvents until Close. Implementations must never
// block Events() past the point Close is called.
type Watcher interface {
	Events() <-chan WatchEvent
	Close() error
}

// noneWatcher never produces events; scans only happen on explicit request
// (one-shot `scan DIR` invocations). No directory polling is done.
type noneWatcher struct {
	ch chan WatchEvent
}

func newNoneWatcher() *noneWatcher {
	return &noneWatcher{ch: make(chan WatchEvent)}
}

func (w *noneWatcher) Events() <-chan WatchEvent { return w.ch }
func (w *noneWatcher) Close() error              { return nil }

// NewWatcher constructs the backend named by mode, watching root.
func NewWatcher(mode WatchMode, root string) (Watcher, error) {
	switch mode {
	case "", WatchNone:
		return newNoneWatcher(), nil
	case WatchInotify:
		return newInotifyWatcher(root)
	case WatchFanotify:
		return newFanotifyWatcher(root)
	default:
		return nil, errUnknownWatchMode(mode)
	}
}

type errUnknownWatchMode WatchMode

func (e errUnknownWatchMode) Error() string { return "scanner: unknown watch mode " + string(e) }
