package mdwire

import (
	"encoding/binary"
	"fmt"
)

// NodeBytes is the wire size of one SyncTree node triple: an 8-byte
// big-endian position, a 16-byte xor, and a 16-byte chxor
// (spec.md §4.E step 4, NODE_FMT '>Q16s16s' in the original).
const NodeBytes = 8 + 16 + 16

// TreeNode is one row of a SyncTree level exchange.
type TreeNode struct {
	Pos   uint64
	XOR   [16]byte
	ChXOR [16]byte
}

// EncodeTreeLevel packs nodes back-to-back for a single length-prefixed
// frame. Unlike the hello/serial-map/syncable payloads, tree levels are
// not CBOR: the triple count and field widths are fixed, so raw packing
// is both cheaper and simpler to validate.
func EncodeTreeLevel(nodes []TreeNode) []byte {
	buf := make([]byte, len(nodes)*NodeBytes)
	for i, n := range nodes {
		off := i * NodeBytes
		binary.BigEndian.PutUint64(buf[off:off+8], n.Pos)
		copy(buf[off+8:off+24], n.XOR[:])
		copy(buf[off+24:off+40], n.ChXOR[:])
	}
	return buf
}

// DecodeTreeLevel is EncodeTreeLevel's inverse.
func DecodeTreeLevel(data []byte) ([]TreeNode, error) {
	if len(data)%NodeBytes != 0 {
		return nil, fmt.Errorf("mdwire: tree level payload of %d bytes is not a multiple of %d", len(data), NodeBytes)
	}
	nodes := make([]TreeNode, len(data)/NodeBytes)
	for i := range nodes {
		off := i * NodeBytes
		nodes[i].Pos = binary.BigEndian.Uint64(data[off : off+8])
		copy(nodes[i].XOR[:], data[off+8:off+24])
		copy(nodes[i].ChXOR[:], data[off+24:off+40])
	}
	return nodes, nil
}
