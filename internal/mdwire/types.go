package mdwire

// Hello is the first frame either side of an MDSync exchange sends,
// identifying the protocol version and which reconciliation mode the
// sender wants to run (spec.md §4.E step 1).
type Hello struct {
	Protocol uint32 `refmt:"protocol"`
	SyncMode string `refmt:"sync_mode"` // "serial" or "synctree"
}

// SerialMap is the max_serial[origin] exchange serial mode opens with.
// Keys are lower-hex-encoded 32-byte store ids.
type SerialMap struct {
	MaxSerial map[string]uint64 `refmt:"max_serial"`
}

// Syncable is the wire form of a FOB, FLV, or FCV, flattened into one
// CBOR map rather than spec.md's {kind, origin, id, data} nesting: every
// peer in this implementation is itself, so byte-for-byte compatibility
// with a second implementation is not a goal and the flat form is
// simpler to encode deterministically.
type Syncable struct {
	Kind   string `refmt:"kind"`
	Origin []byte `refmt:"origin"`
	ID     []byte `refmt:"id"`
	Serial uint64 `refmt:"serial,omitempty"`

	// FOB
	Type    string `refmt:"type,omitempty"`
	NewFLVs int64  `refmt:"new_flvs,omitempty"`
	NewFCVs int64  `refmt:"new_fcvs,omitempty"`

	// FLV / FCV
	FOB        []byte   `refmt:"fob,omitempty"`
	ParentFOB  []byte   `refmt:"parent_fob,omitempty"`
	Name       string   `refmt:"name,omitempty"`
	ParentVers [][]byte `refmt:"parent_vers,omitempty"`
	IsHead     bool     `refmt:"is_head,omitempty"`
	Created    int64    `refmt:"created,omitempty"`

	// FCV only
	ContentHash []byte `refmt:"content_hash,omitempty"`
}
