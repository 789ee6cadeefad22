// Package mdsync implements component E: the peer-to-peer reconciliation
// protocol that brings two stores' syncable sets into agreement, either
// by exchanging per-origin serial watermarks (serial mode) or by
// descending a SyncTree to the points of actual disagreement (spec.md
// §4.E).
package mdsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/logger"
	"github.com/filoco/filoco/internal/mdwire"
	"github.com/filoco/filoco/internal/store"
)

const (
	// ProtocolVersion is negotiated (nominally) by the hello frame.
	ProtocolVersion = 1

	// StartLevel is the SyncTree level the first round's active
	// position set is drawn from: [16, 32) (spec.md §4.E step 1).
	StartLevel = 4

	// DefaultExchangeTimeout bounds every protocol round.
	DefaultExchangeTimeout = 10 * time.Second

	// insertBatchSize bounds how many inserts the receive path commits
	// in one transaction, to bound WAL growth (spec.md §4.E receive path).
	insertBatchSize = 5000
)

// Mode selects which reconciliation algorithm Run uses.
type Mode string

const (
	ModeSerial   Mode = "serial"
	ModeSyncTree Mode = "synctree"
)

// Transport is the bidirectional byte pipe MDSync runs over: a local
// pipe/stdio pair, a TCP connection, or a Unix socket pair (spec.md §6).
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Session drives one reconciliation exchange against a single peer.
type Session struct {
	store   *store.Store
	conn    Transport
	mode    Mode
	clock   clock.Clock
	timeout time.Duration
	log     *slog.Logger

	didHello bool
}

// NewSession builds a Session. mode is this side's preferred mode; the
// peer is assumed (spec.md §4.E does not negotiate a mismatch) to run
// the same mode a store was initialized with.
func NewSession(st *store.Store, conn Transport, mode Mode, clk clock.Clock) *Session {
	return &Session{
		store:   st,
		conn:    conn,
		mode:    mode,
		clock:   clk,
		timeout: DefaultExchangeTimeout,
		log:     logger.For("mdsync"),
	}
}

// Run performs the hello handshake (once) and then the selected mode's
// reconciliation to completion.
func (s *Session) Run(ctx context.Context) error {
	if err := s.hello(ctx); err != nil {
		return err
	}
	switch s.mode {
	case ModeSerial:
		return s.runSerial(ctx)
	case ModeSyncTree:
		return s.runSyncTree(ctx)
	default:
		return fmt.Errorf("mdsync: unknown sync mode %q", s.mode)
	}
}

// hello exchanges the handshake frame exactly once per Session, per
// spec.md §4.E: "the very first exchange() prepends a hello message both
// ways ... acknowledged by setting did_hello and not repeating."
func (s *Session) hello(ctx context.Context) error {
	if s.didHello {
		return nil
	}
	local := mdwire.Hello{Protocol: ProtocolVersion, SyncMode: string(s.mode)}
	var peer mdwire.Hello
	err := s.round(ctx,
		func() error { return mdwire.WriteCBOR(s.conn, &local) },
		func() error { return mdwire.ReadCBOR(s.conn, &peer) },
	)
	if err != nil {
		return fmt.Errorf("mdsync: hello: %w", err)
	}
	s.didHello = true
	return nil
}

// round races send and receive as two concurrent tasks bounded by
// s.timeout, matching spec.md §4.E's "send and receive run as two
// cooperative tasks ... race on FIRST_EXCEPTION; pending tasks on
// timeout are cancelled and an error raised." Closing the transport is
// how a blocked read/write is made to return once the deadline expires.
func (s *Session) round(ctx context.Context, send, receive func() error) error {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	g, _ := errgroup.WithContext(rctx)
	g.Go(send)
	g.Go(receive)

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-rctx.Done():
			s.conn.Close()
		case <-watchDone:
		}
	}()

	err := g.Wait()
	close(watchDone)

	if err != nil && rctx.Err() == context.DeadlineExceeded {
		return ferrors.ErrProtocolTimeout
	}
	return err
}
