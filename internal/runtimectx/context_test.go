package runtimectx

import "testing"

func TestDebugEnabled(t *testing.T) {
	c := Context{Debug: []string{"scanner", "mdsync"}}
	if !c.DebugEnabled("scanner") {
		t.Error("expected scanner to be enabled")
	}
	if c.DebugEnabled("mdapply") {
		t.Error("mdapply should not be enabled")
	}
}

func TestDebugEnabledWildcard(t *testing.T) {
	c := Context{Debug: []string{"*"}}
	if !c.DebugEnabled("anything") {
		t.Error("expected wildcard to enable every category")
	}
}

func TestFromEnvDefaultsLibDirToExecutableDir(t *testing.T) {
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if c.LibDir == "" {
		t.Error("expected a non-empty LibDir")
	}
}
