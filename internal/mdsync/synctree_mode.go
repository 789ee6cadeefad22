package mdsync

import (
	"context"
	"fmt"
	"sort"

	"github.com/filoco/filoco/internal/mdwire"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/synctree"
)

// finalLevel is the last level at which recursing to children is valid;
// at or beyond it a position is a synctree leaf, so an unresolved
// difference can only mean a leaf collision — several ids hashing to the
// same 48-bit position (spec.md §4.E step 5).
const finalLevel = synctree.PosBits - 1

func xor16(a, b model.ID) model.ID {
	var out model.ID
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func nodesToWire(nodes map[uint64]synctree.Node) []mdwire.TreeNode {
	out := make([]mdwire.TreeNode, 0, len(nodes))
	for pos, n := range nodes {
		out = append(out, mdwire.TreeNode{Pos: pos, XOR: [16]byte(n.XOR), ChXOR: [16]byte(n.ChXOR)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	return out
}

// runSyncTree implements spec.md §4.E's "SyncTree mode (scalable)":
// per-round exchange of (pos, xor, chxor) triples starting at
// START_LVL, descending only where the two sides actually disagree.
func (s *Session) runSyncTree(ctx context.Context) error {
	recvEOF := false
	lvlNum := StartLevel
	startOff := uint64(1) << uint(StartLevel)
	lvlAlive := make([]uint64, 0, startOff)
	for p := startOff; p < startOff*2; p++ {
		lvlAlive = append(lvlAlive, p)
	}

	var sendSingles []model.ID
	var sendSubtrees []uint64

	for lvlNum < synctree.PosBits {
		sent, err := s.store.SyncTreeNodes(ctx, lvlAlive)
		if err != nil {
			return fmt.Errorf("mdsync: synctree nodes at level %d: %w", lvlNum, err)
		}

		recvNodes := map[uint64]mdwire.TreeNode{}
		if !recvEOF {
			var recvData []byte
			err := s.round(ctx,
				func() error { return mdwire.WriteFrame(s.conn, mdwire.EncodeTreeLevel(nodesToWire(sent))) },
				func() error {
					data, err := mdwire.ReadFrame(s.conn)
					if err != nil {
						return err
					}
					recvData = data
					return nil
				},
			)
			if err != nil {
				return fmt.Errorf("mdsync: synctree level %d exchange: %w", lvlNum, err)
			}
			if len(recvData) == 0 {
				recvEOF = true
			} else {
				nodes, err := mdwire.DecodeTreeLevel(recvData)
				if err != nil {
					return fmt.Errorf("mdsync: decode synctree level %d: %w", lvlNum, err)
				}
				for _, n := range nodes {
					recvNodes[n.Pos] = n
				}
			}
		}

		if len(sent) == 0 {
			break
		}

		var nextLvl []uint64
		for vert, mine := range sent {
			their, ok := recvNodes[vert]
			theirXOR, theirChXOR := model.ID(synctree.Zero), model.ID(synctree.Zero)
			if ok {
				theirXOR, theirChXOR = model.ID(their.XOR), model.ID(their.ChXOR)
			}

			if theirXOR == synctree.Zero && theirChXOR == synctree.Zero {
				// Peer's subtree at vert is empty: send ours wholesale,
				// no point comparing further.
				sendSubtrees = append(sendSubtrees, vert)
				continue
			}
			if mine.XOR == theirXOR && mine.ChXOR == theirChXOR {
				continue // no difference
			}

			diff := xor16(mine.XOR, theirXOR)
			if synctree.Chk(diff) == xor16(mine.ChXOR, theirChXOR) {
				// exactly one id differs in this subtree
				if has, err := s.store.HasSyncable(ctx, diff); err != nil {
					return err
				} else if has {
					sendSingles = append(sendSingles, diff)
				}
				continue
			}

			if lvlNum >= finalLevel {
				sendSubtrees = append(sendSubtrees, vert)
				continue
			}
			a, b := synctree.Children(vert)
			nextLvl = append(nextLvl, a, b)
		}

		if recvEOF {
			break
		}
		lvlAlive = nextLvl
		lvlNum++
	}

	return s.round(ctx,
		func() error { return s.sendSyncTreeSet(ctx, sendSingles, sendSubtrees) },
		func() error { return s.receiveLoop(ctx) },
	)
}

// sendSyncTreeSet materializes the accumulated single-object and
// wholesale-subtree send decisions into one ordered stream of syncables
// (spec.md §4.E step 6).
func (s *Session) sendSyncTreeSet(ctx context.Context, singles []model.ID, subtrees []uint64) error {
	var headers []model.SyncableHeader
	seen := map[model.ID]bool{}

	for _, id := range singles {
		h, ok, err := s.store.SyncableByID(ctx, id)
		if err != nil {
			return err
		}
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		headers = append(headers, h)
	}
	for _, vert := range subtrees {
		lo, hi := synctree.SubtreeRange(vert)
		hs, err := s.store.SyncablesInTreeRange(ctx, lo, hi)
		if err != nil {
			return err
		}
		for _, h := range hs {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			headers = append(headers, h)
		}
	}

	sortByInsertOrder(headers)
	if err := s.sendSyncables(ctx, headers, false); err != nil {
		return err
	}
	return mdwire.WriteFrame(s.conn, nil)
}
