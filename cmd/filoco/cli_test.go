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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasEverySubcommand(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"init", "info", "scan", "mdsync", "mdapply"}, names)
}

func TestInitCmdArgValidation(t *testing.T) {
	assert.NoError(t, initCmd.Args(initCmd, nil))
	assert.NoError(t, initCmd.Args(initCmd, []string{"dir"}))
	assert.Error(t, initCmd.Args(initCmd, []string{"dir", "extra"}))
}

func TestInfoCmdArgValidation(t *testing.T) {
	assert.Error(t, infoCmd.Args(infoCmd, nil))
	assert.NoError(t, infoCmd.Args(infoCmd, []string{"a.txt"}))
	assert.Error(t, infoCmd.Args(infoCmd, []string{"a.txt", "b.txt"}))
}

func TestMdsyncCmdArgValidation(t *testing.T) {
	assert.Error(t, mdsyncCmd.Args(mdsyncCmd, nil))
	assert.NoError(t, mdsyncCmd.Args(mdsyncCmd, []string{"store"}))
	assert.NoError(t, mdsyncCmd.Args(mdsyncCmd, []string{"store", "host:1234"}))
	assert.Error(t, mdsyncCmd.Args(mdsyncCmd, []string{"store", "host:1234", "extra"}))
}

// TestInitThenScanThenMdapply exercises a full local round trip through
// the CLI's RunE functions: initialize a store, write a file, scan it in,
// then run mdapply and expect every step to return no error (spec.md §6's
// sequence for a freshly created local store).
func TestInitThenScanThenMdapply(t *testing.T) {
	dir := t.TempDir()

	initName = "roundtrip"
	initSyncTree = false
	require.NoError(t, initCmd.RunE(initCmd, []string{dir}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))

	scanAll = false
	scanCheck = false
	scanOneShot = true
	scanWatchMode = "none"
	require.NoError(t, runScan(dir))

	mdapplyForce = false
	require.NoError(t, runMDApply(dir))
}

// TestScanCheckOnly exercises scan -c: it must run an invariant check and
// return without performing a scan.
func TestScanCheckOnly(t *testing.T) {
	dir := t.TempDir()

	initName = ""
	initSyncTree = false
	require.NoError(t, initCmd.RunE(initCmd, []string{dir}))

	scanAll = false
	scanCheck = true
	scanOneShot = true
	scanWatchMode = "none"
	require.NoError(t, runScan(dir))
}

func TestRunInfoByPath(t *testing.T) {
	dir := t.TempDir()

	initName = ""
	initSyncTree = false
	require.NoError(t, initCmd.RunE(initCmd, []string{dir}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644))

	scanAll = false
	scanCheck = false
	scanOneShot = true
	scanWatchMode = "none"
	require.NoError(t, runScan(dir))

	infoFLVGraph = true
	infoFCVGraph = false
	require.NoError(t, runInfo(filepath.Join(dir, "hello.txt")))
}
