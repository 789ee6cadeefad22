// Package runtimectx resolves the small set of environment-derived
// process settings (spec.md §6/§9: "Global state") once at startup into
// an explicit struct, threaded through constructors rather than read as
// ambient globals deeper in the call graph.
package runtimectx

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/kardianos/osext"
)

// Context holds the resolved values of FILOCO_LIBDIR, FILOCO_DBG, and
// FILOCO_LOGPREFIX.
type Context struct {
	// LibDir is FILOCO_LIBDIR, or the running executable's directory if
	// the env var is unset (osext.Executable, the same way the teacher
	// locates sibling resources relative to the binary).
	LibDir string

	// Debug is the parsed FILOCO_DBG comma-list of debug categories.
	// A single category of "*" enables every category.
	Debug []string

	// LogPrefix is FILOCO_LOGPREFIX; when set, the CLI adds it as a
	// "prefix" attribute to its own log records.
	LogPrefix string
}

// FromEnv resolves a Context from the process environment.
func FromEnv() (Context, error) {
	libDir := os.Getenv("FILOCO_LIBDIR")
	if libDir == "" {
		exe, err := osext.Executable()
		if err != nil {
			return Context{}, err
		}
		libDir = filepath.Dir(exe)
	}

	var debug []string
	if v := os.Getenv("FILOCO_DBG"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				debug = append(debug, c)
			}
		}
	}

	return Context{
		LibDir:    libDir,
		Debug:     debug,
		LogPrefix: os.Getenv("FILOCO_LOGPREFIX"),
	}, nil
}

// DebugEnabled reports whether category is named in Debug (or Debug
// contains the "*" wildcard).
func (c Context) DebugEnabled(category string) bool {
	for _, d := range c.Debug {
		if d == "*" || d == category {
			return true
		}
	}
	return false
}
