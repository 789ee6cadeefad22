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

	"github.com/spf13/cobra"

	"github.com/filoco/filoco/internal/mdapply"
	"github.com/filoco/filoco/internal/store"
)

var mdapplyForce bool

var mdapplyCmd = &cobra.Command{
	Use:   "mdapply STORE",
	Short: "Materialize the local filesystem to match the metadata store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMDApply(args[0])
	},
}

func init() {
	mdapplyCmd.Flags().BoolVarP(&mdapplyForce, "force", "f", false, "Re-apply every FOB, not only dirty ones.")
}

func runMDApply(storeArg string) error {
	storeDir, err := store.Find(storeArg)
	if err != nil {
		return err
	}
	st, err := store.Open(storeDir)
	if err != nil {
		return err
	}
	defer st.Close()

	applier, err := mdapply.New(st)
	if err != nil {
		return err
	}
	return applier.Run(context.Background(), mdapplyForce)
}
