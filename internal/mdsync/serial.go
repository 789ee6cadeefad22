package mdsync

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/filoco/filoco/internal/mdwire"
	"github.com/filoco/filoco/internal/model"
)

// runSerial implements spec.md §4.E's "Serial mode (simple)": exchange
// max_serial[origin] maps, then each side streams what the other is
// missing, ordered by insert_order ascending.
func (s *Session) runSerial(ctx context.Context) error {
	origins, err := s.store.KnownOrigins(ctx)
	if err != nil {
		return fmt.Errorf("mdsync: known origins: %w", err)
	}

	local := mdwire.SerialMap{MaxSerial: map[string]uint64{}}
	localMax := map[model.StoreID]uint64{}
	for _, origin := range origins {
		max, err := s.store.MaxSerial(ctx, origin)
		if err != nil {
			return fmt.Errorf("mdsync: max serial for %s: %w", origin, err)
		}
		localMax[origin] = max
		local.MaxSerial[hex.EncodeToString(origin[:])] = max
	}

	var peer mdwire.SerialMap
	if err := s.round(ctx,
		func() error { return mdwire.WriteCBOR(s.conn, &local) },
		func() error { return mdwire.ReadCBOR(s.conn, &peer) },
	); err != nil {
		return fmt.Errorf("mdsync: serial map exchange: %w", err)
	}

	peerMax := map[model.StoreID]uint64{}
	for originHex, serial := range peer.MaxSerial {
		raw, err := hex.DecodeString(originHex)
		if err != nil || len(raw) != 32 {
			continue
		}
		var origin model.StoreID
		copy(origin[:], raw)
		peerMax[origin] = serial
		_ = s.store.RememberPeerMaxSerial(ctx, origin, serial)
	}

	// Only origins known to both sides are eligible to send — the peer
	// has no row to compare serials against for an origin it has never
	// seen, so spec.md §4.E step 3 restricts sending to those.
	var sendOrigins []model.StoreID
	for origin := range localMax {
		if _, ok := peerMax[origin]; ok {
			sendOrigins = append(sendOrigins, origin)
		}
	}

	return s.round(ctx,
		func() error { return s.sendSerial(ctx, sendOrigins, peerMax) },
		func() error { return s.receiveLoop(ctx) },
	)
}

func (s *Session) sendSerial(ctx context.Context, origins []model.StoreID, peerMax map[model.StoreID]uint64) error {
	var headers []model.SyncableHeader
	for _, origin := range origins {
		hs, err := s.store.SyncablesSince(ctx, origin, peerMax[origin])
		if err != nil {
			return fmt.Errorf("mdsync: syncables since for %s: %w", origin, err)
		}
		headers = append(headers, hs...)
	}
	sortByInsertOrder(headers)
	if err := s.sendSyncables(ctx, headers, true); err != nil {
		return err
	}
	return mdwire.WriteFrame(s.conn, nil)
}
