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
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

var (
	infoFLVGraph bool
	infoFCVGraph bool
)

var infoCmd = &cobra.Command{
	Use:   "info FILENAME|ID",
	Short: "Print a FOB's records, optionally its FLV or FCV history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoFLVGraph, "flv-graph", false, "Print the FLV (placement) history graph.")
	infoCmd.Flags().BoolVar(&infoFCVGraph, "fcv-graph", false, "Print the FCV (content version) history graph.")
}

func runInfo(arg string) error {
	ctx := context.Background()

	if id, err := model.ParseID(arg); err == nil {
		storeDir, err := store.Find(".")
		if err != nil {
			return err
		}
		s, err := store.Open(storeDir)
		if err != nil {
			return err
		}
		defer s.Close()
		return printFOBInfo(ctx, s, id)
	}

	abs, err := filepath.Abs(arg)
	if err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrArgument, err)
	}
	storeDir, err := store.Find(filepath.Dir(abs))
	if err != nil {
		return err
	}
	s, err := store.Open(storeDir)
	if err != nil {
		return err
	}
	defer s.Close()

	var st unix.Stat_t
	if err := unix.Stat(abs, &st); err != nil {
		return fmt.Errorf("stat %s: %w", abs, err)
	}
	ino, found, err := s.InodeByIno(ctx, st.Ino)
	if err != nil {
		return err
	}
	if !found || ino.FOB == nil {
		return fmt.Errorf("%s: not tracked by any FOB", abs)
	}
	return printFOBInfo(ctx, s, *ino.FOB)
}

func printFOBInfo(ctx context.Context, s *store.Store, fob model.ID) error {
	rec, err := s.GetFOB(ctx, fob)
	if err != nil {
		return err
	}
	fmt.Printf("fob %s type=%s origin=%s serial=%d insert_order=%d\n",
		rec.ID, rec.Type.String(), rec.Origin, rec.Serial, rec.InsertOrder)

	if infoFLVGraph {
		flvs, err := s.FLVsForFOB(ctx, fob)
		if err != nil {
			return err
		}
		fmt.Println("digraph flv {")
		for _, flv := range flvs {
			parent := "<root>"
			if flv.ParentFOB != nil {
				parent = flv.ParentFOB.String()
			}
			fmt.Printf("  %q [label=%q];\n", flv.ID, fmt.Sprintf("%s\\nparent_fob=%s head=%v", flv.Name, parent, flv.IsHead))
			for _, p := range flv.ParentVers {
				fmt.Printf("  %q -> %q;\n", p, flv.ID)
			}
		}
		fmt.Println("}")
	}
	if infoFCVGraph {
		fcvs, err := s.FCVsForFOB(ctx, fob)
		if err != nil {
			return err
		}
		fmt.Println("digraph fcv {")
		for _, fcv := range fcvs {
			fmt.Printf("  %q [label=%q];\n", fcv.ID, fmt.Sprintf("hash=%x head=%v", fcv.ContentHash, fcv.IsHead))
			for _, p := range fcv.ParentVers {
				fmt.Printf("  %q -> %q;\n", p, fcv.ID)
			}
		}
		fmt.Println("}")
	}
	return nil
}
