package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// testEnv is an isolated config and data directory for running the CLI in
// process.
type testEnv struct {
	t       *testing.T
	Config  string
	DataDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{"PASSPORT_BACKEND", "PASSPORT_DATA_DIR", "PASSPORT_CONFIG_DIR", "PASSPORT_SENDGRID_API_KEY", "PASSPORT_ANTHROPIC_API_KEY"} {
		t.Setenv(key, "")
	}
	tempDir := t.TempDir()
	env := &testEnv{
		t:       t,
		Config:  filepath.Join(tempDir, "config"),
		DataDir: filepath.Join(tempDir, "data"),
	}
	if err := os.MkdirAll(env.Config, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	content := "backend: sqlite\nlog_level: error\npublic_base_url: https://dpp.example.com\n"
	if err := os.WriteFile(filepath.Join(env.Config, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

type cmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (e *testEnv) run(args ...string) cmdResult {
	e.t.Helper()
	all := append([]string{"--config-dir", e.Config, "--data-dir", e.DataDir}, args...)
	var stdout, stderr bytes.Buffer
	code := run(all, &stdout, &stderr)
	return cmdResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: code}
}

func (e *testEnv) mustRun(args ...string) cmdResult {
	e.t.Helper()
	res := e.run(args...)
	if res.ExitCode != exitSuccess {
		e.t.Fatalf("passport %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, res.ExitCode, res.Stdout, res.Stderr)
	}
	return res
}

func parseJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("parse JSON %q: %v", s, err)
	}
	return v
}
