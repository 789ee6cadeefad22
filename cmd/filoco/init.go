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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/filoco/filoco/internal/store"
)

var (
	initName     string
	initSyncTree bool
)

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Materialize a new store with a generated cert",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		mode := "serial"
		if initSyncTree {
			mode = "synctree"
		}
		st, err := store.InitNamed(dir, initName, mode)
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Printf("initialized store %s in %s (sync mode: %s)\n", st.StoreID, st.RootPath, st.SyncMode)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "Human-readable label for this store.")
	initCmd.Flags().BoolVar(&initSyncTree, "synctree", false, "Initialize in synctree reconciliation mode instead of serial.")
}
