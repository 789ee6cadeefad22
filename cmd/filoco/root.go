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
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/filoco/filoco/cfg"
	"github.com/filoco/filoco/internal/logger"
	"github.com/filoco/filoco/internal/metrics"
	"github.com/filoco/filoco/internal/runtimectx"
)

var (
	cfgFile string
	bindErr error

	// config is the merged flag/env/config-file settings, populated in
	// initConfig and read by every subcommand.
	config cfg.Config

	// rtctx holds FILOCO_LIBDIR/FILOCO_DBG/FILOCO_LOGPREFIX, resolved
	// once at startup per spec.md §9's "Global state" note.
	rtctx runtimectx.Context

	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "filoco",
	Short: "A peer-to-peer filesystem metadata synchronizer",
	Long: `Filoco propagates file/directory placement and content-version
metadata between peer stores without transferring file bodies itself.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := initConfig(); err != nil {
			return err
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(initCmd, infoCmd, scanCmd, mdsyncCmd, mdapplyCmd)
}

// initConfig merges the config file (if any), flags, FILOCO_ env vars,
// and decodes the result into config; it then wires up internal/logger
// and, if requested, internal/metrics' promhttp endpoint.
func initConfig() error {
	var err error
	rtctx, err = runtimectx.FromEnv()
	if err != nil {
		return fmt.Errorf("resolving runtime context: %w", err)
	}

	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return fmt.Errorf("resolving config file path: %w", err)
		}
		viper.SetConfigFile(abs)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	if err := viper.Unmarshal(&config, viper.DecodeHook(cfg.DecodeHook())); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.ValidateConfig(&config); err != nil {
		return err
	}

	// FILOCO_DBG/FILOCO_LOGPREFIX from the environment take priority over
	// the config file and flags (spec.md §6 Environment).
	debugCategories := make([]string, len(config.Debug.Categories))
	for i, c := range config.Debug.Categories {
		debugCategories[i] = string(c)
	}
	if len(rtctx.Debug) > 0 {
		debugCategories = rtctx.Debug
	}
	logPrefix := config.Logging.Prefix
	if rtctx.LogPrefix != "" {
		logPrefix = rtctx.LogPrefix
	}

	logger.Init(logger.Config{
		Path:       string(config.Logging.File),
		MaxSizeMB:  config.Logging.MaxSizeMb,
		MaxBackups: config.Logging.MaxBackups,
		Debug:      len(debugCategories) > 0,
		Categories: debugCategories,
	})
	log = logger.For("cli")
	if logPrefix != "" {
		log = log.With("prefix", logPrefix)
	}

	if config.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(config.Metrics.Addr, mux); err != nil {
				log.Error("metrics server stopped", "err", err)
			}
		}()
	}
	return nil
}
