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

import "fmt"

func isValidLoggingConfig(c *LoggingConfig) error {
	if c.MaxSizeMb < 0 {
		return fmt.Errorf("log-max-size-mb must not be negative")
	}
	if c.MaxBackups < 0 {
		return fmt.Errorf("log-max-backups must not be negative")
	}
	return nil
}

// ValidateConfig returns a non-nil error if config is invalid.
func ValidateConfig(config *Config) error {
	if err := isValidLoggingConfig(&config.Logging); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}
	return nil
}
