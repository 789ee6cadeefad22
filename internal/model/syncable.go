package model

import "time"

// Kind tags a Syncable's concrete type.
type Kind string

const (
	KindFOB Kind = "fob"
	KindFLV Kind = "flv"
	KindFCV Kind = "fcv"
)

// FileType is the kernel file type a FOB stands for.
type FileType byte

const (
	TypeDir     FileType = 'd'
	TypeRegular FileType = 'r'
	TypeSymlink FileType = 'l'
	TypeSpecial FileType = 'S'
)

func (t FileType) String() string { return string(rune(t)) }

// ModeToType maps a file's is-dir/is-regular/is-symlink predicates to the
// FOB/inode FileType taxonomy
// (mode2type in the original scanner).
func ModeToType(isDir, isRegular, isSymlink bool) FileType {
	switch {
	case isDir:
		return TypeDir
	case isRegular:
		return TypeRegular
	case isSymlink:
		return TypeSymlink
	default:
		return TypeSpecial
	}
}

// SyncableHeader is the common envelope every FOB/FLV/FCV carries: the
// fields needed to place it in the store, the synctree, and on the wire,
// independent of its kind-specific payload.
type SyncableHeader struct {
	ID          ID
	Kind        Kind
	Origin      StoreID
	Serial      uint64
	InsertOrder int64
	TreeKey     uint64 // 48-bit synctree leaf position, see synctree.Pos
}

// FOB is the abstract, immutable identity of a file or directory.
type FOB struct {
	SyncableHeader
	Type FileType

	// NewFLVs/NewFCVs are dirty stamps (unix nanos of the most recent
	// head-flipping insert) bumped by mdsync's receive path and cleared
	// by mdapply via stamp-versioned compare-and-swap. Zero means clean.
	NewFLVs int64
	NewFCVs int64
}

// FLV is a placement claim: a (parent, name) assignment for a FOB.
type FLV struct {
	SyncableHeader
	FOB        ID
	ParentFOB  *ID // nil means directory root
	Name       string
	ParentVers []ID // predecessor FLV ids of the same FOB
	IsHead     bool
	Created    time.Time
}

// FCV is a content-version claim for a type-'r' FOB.
type FCV struct {
	SyncableHeader
	FOB         ID
	ContentHash []byte // nil means "working copy, not yet digested"
	ParentVers  []ID
	IsHead      bool
	Created     time.Time
}

// LongnameSeparator introduces the disambiguating suffix appended to a
// filename when a pigeonhole conflict or rename-cycle break forces two
// entries to coexist under related names: "<logical>.FL-<fob-hex>-<n>".
const LongnameSeparator = ".FL-"

// PlaceholderTarget is the dangling symlink target mdapply points a
// not-yet-fetched regular-file placeholder at.
const PlaceholderTarget = "/!/filoco-missing"
