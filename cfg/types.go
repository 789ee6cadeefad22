// Copyright 2024 Google LLC
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

package cfg

import (
	"fmt"
	"path/filepath"
	"slices"
)

// ResolvedPath is a filesystem path made absolute at decode time, so a
// relative --log-file in a config file is resolved against the
// directory the process was started from rather than wherever a
// subcommand later happens to chdir.
type ResolvedPath string

func (p *ResolvedPath) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		*p = ""
		return nil
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return err
	}
	*p = ResolvedPath(abs)
	return nil
}

// DebugCategory names one of internal/logger's debug categories, or
// "*" to enable all of them.
type DebugCategory string

// KnownDebugCategories mirrors the category names the original
// implementation's init_debug() established (D_SCAN, D_QUEUE,
// D_MDUPDATE, D_SYNCTREE, D_DBW, D_FD).
var KnownDebugCategories = []DebugCategory{
	"D_SCAN", "D_QUEUE", "D_MDUPDATE", "D_SYNCTREE", "D_DBW", "D_FD",
}

func (c *DebugCategory) UnmarshalText(text []byte) error {
	v := DebugCategory(text)
	if v == "*" || slices.Contains(KnownDebugCategories, v) {
		*c = v
		return nil
	}
	return fmt.Errorf("invalid debug category: %s (want one of %v, or \"*\")", text, KnownDebugCategories)
}
