//go:build !linux

package scanner

import "fmt"

func newInotifyWatcher(root string) (Watcher, error) {
	return nil, fmt.Errorf("scanner: inotify watch mode requires linux")
}

func newFanotifyWatcher(root string) (Watcher, error) {
	return nil, fmt.Errorf("scanner: fanotify watch mode requires linux")
}
