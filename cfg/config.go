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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the persistent configuration shared by every cmd/filoco
// subcommand (component G): logging destination/rotation and the debug
// category gate, bound from flags, FILOCO_-prefixed env vars, and an
// optional --config-file through viper. Per-subcommand settings (scan's
// watch mode, mdsync's listen port, and so on) are handled locally by
// each subcommand instead of living here.
type Config struct {
	Debug DebugConfig `yaml:"debug"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// DebugConfig selects which internal/logger categories emit at debug
// level.
type DebugConfig struct {
	// Categories are the category names passed to logger.For that
	// should log at debug level (D_SCAN, D_QUEUE, D_MDUPDATE,
	// D_SYNCTREE, D_DBW, D_FD, ...). Overridden by FILOCO_DBG when set.
	Categories []DebugCategory `yaml:"categories"`
}

// LoggingConfig configures internal/logger's rotating sink.
type LoggingConfig struct {
	// File is the log destination; empty means stderr.
	File ResolvedPath `yaml:"file"`

	// Prefix (FILOCO_LOGPREFIX) is attached as a "prefix" attribute to the
	// CLI's own log records; records from other components do not carry it.
	Prefix string `yaml:"prefix"`

	MaxSizeMb  int `yaml:"max-size-mb"`
	MaxBackups int `yaml:"max-backups"`
}

// MetricsConfig controls the optional promhttp endpoint a subcommand
// may serve.
type MetricsConfig struct {
	// Addr is the listen address for internal/metrics.Handler, e.g.
	// ":9090". Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// BindFlags registers the persistent flags backing Config and binds
// each to its viper key, mirroring the teacher's generated
// cfg.BindFlags structure.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("log-file", "", "", "Write logs to this file instead of stderr.")

	err = viper.BindPFlag("logging.file", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-prefix", "", "", "Prefix attribute added to the CLI's own log records.")

	err = viper.BindPFlag("logging.prefix", flagSet.Lookup("log-prefix"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-max-size-mb", "", 64, "Rotate the log file once it exceeds this size, in MiB.")

	err = viper.BindPFlag("logging.max-size-mb", flagSet.Lookup("log-max-size-mb"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-max-backups", "", 5, "Rotated log files to retain (0 keeps all).")

	err = viper.BindPFlag("logging.max-backups", flagSet.Lookup("log-max-backups"))
	if err != nil {
		return err
	}

	flagSet.StringSliceP("debug", "", nil, "Debug-log categories to enable (D_SCAN, D_QUEUE, D_MDUPDATE, D_SYNCTREE, D_DBW, D_FD), or \"*\" for all.")

	err = viper.BindPFlag("debug.categories", flagSet.Lookup("debug"))
	if err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", "", "Serve Prometheus metrics on this address (e.g. :9090); empty disables it.")

	err = viper.BindPFlag("metrics.addr", flagSet.Lookup("metrics-addr"))
	if err != nil {
		return err
	}

	return nil
}
