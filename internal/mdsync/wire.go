package mdsync

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/filoco/filoco/internal/mdwire"
	"github.com/filoco/filoco/internal/metrics"
	"github.com/filoco/filoco/internal/model"
)

func sortByInsertOrder(hs []model.SyncableHeader) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].InsertOrder < hs[j].InsertOrder })
}

func idsToBytes(ids []model.ID) [][]byte {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		b := make([]byte, 16)
		copy(b, id[:])
		out[i] = b
	}
	return out
}

// materialize loads h's kind-specific payload and flattens it into the
// wire form the sender streams (spec.md §4.E step 6).
func (s *Session) materialize(ctx context.Context, h model.SyncableHeader, includeSerial bool) (mdwire.Syncable, error) {
	w := mdwire.Syncable{
		Kind:   string(h.Kind),
		Origin: append([]byte{}, h.Origin[:]...),
		ID:     append([]byte{}, h.ID[:]...),
	}
	if includeSerial {
		w.Serial = h.Serial
	}
	switch h.Kind {
	case model.KindFOB:
		fob, err := s.store.GetFOB(ctx, h.ID)
		if err != nil {
			return mdwire.Syncable{}, fmt.Errorf("mdsync: materialize fob %s: %w", h.ID, err)
		}
		w.Type = string(fob.Type)
		w.NewFLVs = fob.NewFLVs
		w.NewFCVs = fob.NewFCVs
	case model.KindFLV:
		flv, err := s.store.GetFLV(ctx, h.ID)
		if err != nil {
			return mdwire.Syncable{}, fmt.Errorf("mdsync: materialize flv %s: %w", h.ID, err)
		}
		fob := flv.FOB
		w.FOB = fob[:]
		if flv.ParentFOB != nil {
			pf := *flv.ParentFOB
			w.ParentFOB = pf[:]
		}
		w.Name = flv.Name
		w.ParentVers = idsToBytes(flv.ParentVers)
		w.IsHead = flv.IsHead
		w.Created = flv.Created.UnixNano()
	case model.KindFCV:
		fcv, err := s.store.GetFCV(ctx, h.ID)
		if err != nil {
			return mdwire.Syncable{}, fmt.Errorf("mdsync: materialize fcv %s: %w", h.ID, err)
		}
		fob := fcv.FOB
		w.FOB = fob[:]
		w.ContentHash = fcv.ContentHash
		w.ParentVers = idsToBytes(fcv.ParentVers)
		w.IsHead = fcv.IsHead
		w.Created = fcv.Created.UnixNano()
	}
	return w, nil
}

// sendSyncables streams each header as one CBOR frame, in the order
// given (callers are responsible for insert_order ascending ordering).
// It does not write the terminating zero-length frame; callers do that
// once after every header in a send batch has gone out.
func (s *Session) sendSyncables(ctx context.Context, headers []model.SyncableHeader, includeSerial bool) error {
	for _, h := range headers {
		w, err := s.materialize(ctx, h, includeSerial)
		if err != nil {
			return err
		}
		if err := mdwire.WriteCBOR(s.conn, &w); err != nil {
			return fmt.Errorf("mdsync: send %s: %w", h.ID, err)
		}
		metrics.MDSyncObjectsSentTotal.WithLabelValues(string(h.Kind)).Inc()
	}
	return nil
}

// receiveLoop reads syncable frames until the zero-length terminator,
// applying each inside a transaction batched up to insertBatchSize
// inserts (spec.md §4.E receive path).
func (s *Session) receiveLoop(ctx context.Context) error {
	tx, err := s.store.DB.EnsureTransaction(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	n := 0
	for {
		var w mdwire.Syncable
		err := mdwire.ReadCBOR(s.conn, &w)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("mdsync: receive: %w", err)
		}
		if err := s.applyIncoming(ctx, w); err != nil {
			return fmt.Errorf("mdsync: apply %s: %w", w.Kind, err)
		}
		metrics.MDSyncObjectsReceivedTotal.WithLabelValues(w.Kind).Inc()
		n++
		if n >= insertBatchSize {
			if err := tx.Commit(); err != nil {
				return err
			}
			committed = true
			tx, err = s.store.DB.EnsureTransaction(ctx)
			if err != nil {
				return err
			}
			committed = false
			n = 0
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// applyIncoming inserts one received syncable via the store's head-
// flipping, dirty-stamp-bumping insert paths.
func (s *Session) applyIncoming(ctx context.Context, w mdwire.Syncable) error {
	var id model.ID
	copy(id[:], w.ID)
	var origin model.StoreID
	copy(origin[:], w.Origin)
	now := s.clock.Now()

	if exists, err := s.store.HasSyncable(ctx, id); err != nil {
		return err
	} else if exists {
		return nil // already known: serial/synctree mode can both re-offer an id the peer already sent
	}

	switch model.Kind(w.Kind) {
	case model.KindFOB:
		_, err := s.store.InsertFOB(ctx, id, origin, w.Serial, model.FileType(w.Type[0]))
		return err
	case model.KindFLV:
		var fob model.ID
		copy(fob[:], w.FOB)
		var parentFOB *model.ID
		if w.ParentFOB != nil {
			var pf model.ID
			copy(pf[:], w.ParentFOB)
			parentFOB = &pf
		}
		_, err := s.store.InsertFLV(ctx, id, origin, w.Serial, fob, parentFOB, w.Name, bytesToIDs(w.ParentVers), now)
		return err
	case model.KindFCV:
		var fob model.ID
		copy(fob[:], w.FOB)
		_, err := s.store.InsertFCV(ctx, id, origin, w.Serial, fob, w.ContentHash, bytesToIDs(w.ParentVers), now)
		return err
	default:
		return fmt.Errorf("mdsync: unknown syncable kind %q", w.Kind)
	}
}

func bytesToIDs(bs [][]byte) []model.ID {
	out := make([]model.ID, len(bs))
	for i, b := range bs {
		copy(out[i][:], b)
	}
	return out
}
