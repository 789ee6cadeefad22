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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/scanner"
	"github.com/filoco/filoco/internal/store"
)

var (
	scanWatchMode string
	scanAll       bool
	scanCheck     bool
	scanOneShot   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan DIR",
	Short: "Run the scanner over DIR, one-shot or in watch mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args[0])
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanWatchMode, "watch", "w", "none", "Notification backend: none, inotify, or fanotify.")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "Enable store invariant checking while scanning.")
	scanCmd.Flags().BoolVarP(&scanCheck, "check", "c", false, "Check invariants and exit without scanning.")
	scanCmd.Flags().BoolVarP(&scanOneShot, "recursive", "r", true, "Run one full recursive scan and exit (the default); with -w, keep watching afterward.")
}

func runScan(dir string) error {
	ctx := context.Background()

	storeDir, err := store.Find(dir)
	if err != nil {
		return err
	}
	st, err := store.Open(storeDir)
	if err != nil {
		return err
	}
	defer st.Close()
	st.EnableInvariantChecking(scanAll)

	if scanCheck {
		st.EnableInvariantChecking(true)
		st.Lock()
		st.Unlock()
		fmt.Println("ok")
		return nil
	}

	lock, err := os.OpenFile(filepath.Join(st.MetaPath, "scanner.lock"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening scanner lock: %w", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("another scanner is running on this store: %w", err)
	}

	sc, err := scanner.New(ctx, st, scanner.WatchMode(scanWatchMode), clock.RealClock{})
	if err != nil {
		return err
	}
	defer sc.Close()

	if scanWatchMode == string(scanner.WatchNone) {
		return sc.ScanOnce(ctx)
	}
	if scanOneShot {
		if err := sc.ScanOnce(ctx); err != nil {
			return err
		}
	}
	return sc.Run(ctx)
}
