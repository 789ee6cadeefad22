// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/mdsync"
	"github.com/filoco/filoco/internal/store"
)

var (
	mdsyncListenPort int
	mdsyncForceMode  string
)

var mdsyncCmd = &cobra.Command{
	Use:   "mdsync STORE (TARGET | --listen PORT)",
	Short: "Run the reconciliation protocol against one peer",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		storeArg := args[0]
		target := ""
		if len(args) == 2 {
			target = args[1]
		}
		if target == "" && mdsyncListenPort == 0 {
			return fmt.Errorf("%w: mdsync requires TARGET or --listen PORT", ferrors.ErrArgument)
		}
		return runMDSync(storeArg, target)
	},
}

func init() {
	mdsyncCmd.Flags().IntVar(&mdsyncListenPort, "listen", 0, "Listen for one incoming connection on this TCP port instead of dialing TARGET.")
	mdsyncCmd.Flags().StringVar(&mdsyncForceMode, "mode", "", "Override the store's sync_mode for this exchange (serial or synctree).")
}

func runMDSync(storeArg, target string) error {
	storeDir, err := store.Find(storeArg)
	if err != nil {
		return err
	}
	st, err := store.Open(storeDir)
	if err != nil {
		return err
	}
	defer st.Close()

	mode := mdsync.Mode(st.SyncMode)
	if mdsyncForceMode != "" {
		mode = mdsync.Mode(mdsyncForceMode)
	}

	conn, err := dialMDSync(target, mdsyncListenPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := mdsync.NewSession(st, conn, mode, clock.RealClock{})
	return sess.Run(context.Background())
}

// dialMDSync resolves TARGET/--listen into a Transport: "-" for a stdio
// pipe pair, "host:port" to dial, or a listening TCP port to accept one
// connection on (spec.md §6's transport boundary).
func dialMDSync(target string, listenPort int) (mdsync.Transport, error) {
	if listenPort != 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", listenPort))
		if err != nil {
			return nil, fmt.Errorf("listening on port %d: %w", listenPort, err)
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting connection: %w", err)
		}
		return conn, nil
	}
	if target == "-" {
		return stdioTransport{}, nil
	}
	conn, err := net.Dial("tcp", target)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", target, err)
	}
	return conn, nil
}

// stdioTransport wires the protocol directly to the process's own
// stdio, for a local pair of filoco processes connected by pipes.
type stdioTransport struct{}

func (stdioTransport) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioTransport) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioTransport) Close() error                { return os.Stdin.Close() }
