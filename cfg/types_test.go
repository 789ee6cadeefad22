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

package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvedPathUnmarshalText(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       string
		expected ResolvedPath
	}{
		{
			name:     "empty stays empty",
			in:       "",
			expected: "",
		},
		{
			name:     "relative path resolved against cwd",
			in:       "logs/filoco.log",
			expected: ResolvedPath(filepath.Join(wd, "logs/filoco.log")),
		},
		{
			name:     "absolute path passed through",
			in:       "/var/log/filoco.log",
			expected: "/var/log/filoco.log",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p ResolvedPath
			require.NoError(t, p.UnmarshalText([]byte(tt.in)))
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestDebugCategoryUnmarshalText(t *testing.T) {
	tests := []struct {
		str     string
		wantErr bool
	}{
		{str: "D_SCAN", wantErr: false},
		{str: "D_QUEUE", wantErr: false},
		{str: "D_MDUPDATE", wantErr: false},
		{str: "D_SYNCTREE", wantErr: false},
		{str: "D_DBW", wantErr: false},
		{str: "D_FD", wantErr: false},
		{str: "*", wantErr: false},
		{str: "D_BOGUS", wantErr: true},
		{str: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			var c DebugCategory
			err := c.UnmarshalText([]byte(tt.str))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DebugCategory(tt.str), c)
		})
	}
}
