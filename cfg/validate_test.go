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

	"github.com/stretchr/testify/assert"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "zero value is valid",
			config:  Config{},
			wantErr: false,
		},
		{
			name: "positive rotation settings are valid",
			config: Config{
				Logging: LoggingConfig{MaxSizeMb: 64, MaxBackups: 5},
			},
			wantErr: false,
		},
		{
			name: "negative max size is rejected",
			config: Config{
				Logging: LoggingConfig{MaxSizeMb: -1},
			},
			wantErr: true,
		},
		{
			name: "negative max backups is rejected",
			config: Config{
				Logging: LoggingConfig{MaxBackups: -1},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(&tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
