package model

import "time"

// ScanState is the per-inode scan lifecycle state.
type ScanState int

const (
	ScanNeverScanned ScanState = 0
	ScanNeedsRescan  ScanState = 1
	ScanWantRescan   ScanState = 2
	ScanUpToDate     ScanState = 100
)

// Inode is the local-only binding between a kernel inode and the
// FOB/FLV/FCV triple it currently represents, if any.
type Inode struct {
	IID        string // RootIID for the store root, otherwise a random ID.String()
	Ino        uint64
	HandleType int32
	Handle     []byte
	Type       FileType
	Size       int64
	Mtime      time.Time
	Ctime      time.Time
	Btime      time.Time
	ScanState  ScanState

	FOB *ID
	FLV *ID
	FCV *ID
}

// StatTuple is the (mtime, ctime, size, ino) snapshot compared across a
// directory scan to detect races (stat_tuple in the original scanner).
type StatTuple struct {
	Mtime time.Time
	Ctime time.Time
	Size  int64
	Ino   uint64
}

func (a StatTuple) Equal(b StatTuple) bool {
	return a.Mtime.Equal(b.Mtime) && a.Ctime.Equal(b.Ctime) && a.Size == b.Size && a.Ino == b.Ino
}

// Link is an observed (parent, name) -> inode directory entry.
type Link struct {
	RowID  int64
	Parent uint64
	Name   string
	Ino    uint64
}
