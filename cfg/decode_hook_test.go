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
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDecodeHookParsesConfig(t *testing.T) {
	v := viper.New()
	v.Set("logging.file", "filoco.log")
	v.Set("logging.prefix", "peer-a")
	v.Set("logging.max-size-mb", 128)
	v.Set("logging.max-backups", 3)
	v.Set("debug.categories", "D_SCAN,D_QUEUE")
	v.Set("metrics.addr", ":9090")

	var got Config
	require.NoError(t, v.Unmarshal(&got, viper.DecodeHook(DecodeHook())))

	require.Contains(t, string(got.Logging.File), "filoco.log")
	require.Equal(t, "peer-a", got.Logging.Prefix)
	require.Equal(t, 128, got.Logging.MaxSizeMb)
	require.Equal(t, 3, got.Logging.MaxBackups)
	require.Equal(t, []DebugCategory{"D_SCAN", "D_QUEUE"}, got.Debug.Categories)
	require.Equal(t, ":9090", got.Metrics.Addr)
}

func TestDecodeHookRejectsUnknownDebugCategory(t *testing.T) {
	v := viper.New()
	v.Set("debug.categories", "D_BOGUS")

	var got Config
	err := v.Unmarshal(&got, viper.DecodeHook(DecodeHook()))
	require.Error(t, err)
}
