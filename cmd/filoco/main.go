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

// Command filoco is the CLI surface for the peer-to-peer filesystem
// synchronizer (component J): init, info, scan, mdsync, mdapply.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/filoco/filoco/internal/ferrors"
)

func main() {
	os.Exit(run())
}

// run maps a subcommand's error, if any, onto spec.md §6's exit codes:
// 0 success, 1 generic error, 2 argument error, 3 store-not-found.
func run() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, err)
	return exitCodeFor(err)
}

// exitCodeFor implements the error-to-exit-code mapping in run(),
// split out so it can be exercised directly without invoking cobra.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, ferrors.ErrStoreNotFound):
		return 3
	case errors.Is(err, ferrors.ErrArgument):
		return 2
	default:
		return 1
	}
}
