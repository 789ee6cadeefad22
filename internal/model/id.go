// Package model defines the Filoco object model: the Syncable kinds
// (FOB/FLV/FCV), local-only Inode/Link records, and the 128-bit/256-bit
// identifiers used throughout the store, synctree, and wire protocol.
package model

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a 128-bit opaque identifier: a FOB/FLV/FCV id, or a local iid.
type ID [16]byte

// RootID is the all-zero ID. It is not the root inode's iid; that is RootIID.
var RootID = ID{}

// RootIID is the literal iid of a store's root inode (spec: `iid = 'ROOT'`).
// It is a sentinel string, not a random ID, and is represented out-of-band
// from model.ID wherever inode rows are keyed by iid.
const RootIID = "ROOT"

// NewID generates a random 128-bit id (gen_uuid equivalent).
func NewID() ID {
	u := uuid.New()
	var id ID
	copy(id[:], u[:])
	return id
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// ParseID parses a lowercase hex-encoded 128-bit id, matching gen_uuid's
// "uuid4 with dashes stripped" output format.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("model: invalid id %q: %w", s, err)
	}
	if len(b) != 16 {
		return ID{}, fmt.Errorf("model: invalid id %q: want 16 bytes, got %d", s, len(b))
	}
	var id ID
	copy(id[:], b)
	return id, nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// StoreID is a 256-bit certificate fingerprint identifying a store/peer.
type StoreID [32]byte

func (s StoreID) String() string {
	return hex.EncodeToString(s[:])
}

func (s StoreID) IsZero() bool {
	return s == StoreID{}
}

func ParseStoreID(s string) (StoreID, error) {
	s = strings.TrimSpace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return StoreID{}, fmt.Errorf("model: invalid store id %q: %w", s, err)
	}
	if len(b) != 32 {
		return StoreID{}, fmt.Errorf("model: invalid store id %q: want 32 bytes, got %d", s, len(b))
	}
	var id StoreID
	copy(id[:], b)
	return id, nil
}
