package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	graphDir   string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir:    base,
		graphDir:   filepath.Join(base, "graph"),
		configPath: filepath.Join(base, "config.toml"),
	}

	content := fmt.Sprintf(
		"[paths]\ngraph_dir = %q\ndata_dir = %q\nlog_dir = %q\n\n[oracle]\nenabled = false\n",
		env.graphDir,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeCandidates(t *testing.T, env *cliTestEnv, name, payload string) string {
	t.Helper()
	path := filepath.Join(env.baseDir, name)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write candidates: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestProcessApplyAndStatusCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	candidates := writeCandidates(t, env, "batch.json",
		`[{"name": "Acme Corporation", "type": "customers", "confidence": 0.9,
		   "contacts": [{"name": "Jane Roe", "email": "jane@acme.com"}]}]`)

	out, _, err := runCLI(t, env, "process", candidates, "--apply", "--source", "crm")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "Session:")
	requireContains(t, out, "Applied")

	entityPath := filepath.Join(env.graphDir, "customers", "standard", "acme_corporation.json")
	if _, err := os.Stat(entityPath); err != nil {
		t.Fatalf("expected entity at %s: %v", entityPath, err)
	}

	out, _, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Indexed entities:  1")
	requireContains(t, out, "applied")

	out, _, err = runCLI(t, env, "sessions")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	requireContains(t, out, "session_")
	requireContains(t, out, "completed")
}

func TestProcessWrapperPayloadAndJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	candidates := writeCandidates(t, env, "wrapped.json",
		`{"candidates": [{"name": "Zephyr Dynamics", "type": "customers", "confidence": 0.9}]}`)

	out, _, err := runCLI(t, env, "process", candidates, "--apply", "--json")
	if err != nil {
		t.Fatalf("process --json: %v", err)
	}
	requireContains(t, out, `"SessionID"`)
	requireContains(t, out, `"OperationsApplied": 1`)
}

func TestReviewFlowEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)

	seed := writeCandidates(t, env, "seed.json",
		`[{"name": "Neptune Logistics", "type": "customers", "confidence": 0.9}]`)
	if _, _, err := runCLI(t, env, "process", seed, "--apply"); err != nil {
		t.Fatalf("seed process: %v", err)
	}

	// A near-miss name scores inside the oracle band; with the oracle
	// disabled it parks as a review question.
	nearMiss := writeCandidates(t, env, "nearmiss.json",
		`[{"name": "Neptune Logistic", "type": "customers", "confidence": 0.9}]`)
	out, _, err := runCLI(t, env, "process", nearMiss, "--apply")
	if err != nil {
		t.Fatalf("near-miss process: %v", err)
	}
	requireContains(t, out, "need review")

	out, _, err = runCLI(t, env, "review", "list")
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	requireContains(t, out, "Neptune Logistic")

	out, _, err = runCLI(t, env, "review", "next")
	if err != nil {
		t.Fatalf("review next: %v", err)
	}
	requireContains(t, out, "Question 1")
	requireContains(t, out, "Operation")

	out, _, err = runCLI(t, env, "review", "answer", "1", "approve")
	if err != nil {
		t.Fatalf("review answer: %v", err)
	}
	requireContains(t, out, "Question 1 answered: approve")

	out, _, err = runCLI(t, env, "resume")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Applied")

	entityPath := filepath.Join(env.graphDir, "customers", "standard", "neptune_logistic.json")
	if _, err := os.Stat(entityPath); err != nil {
		t.Fatalf("expected approved entity at %s: %v", entityPath, err)
	}

	out, _, err = runCLI(t, env, "review", "list")
	if err != nil {
		t.Fatalf("review list after answer: %v", err)
	}
	requireContains(t, out, "No pending questions")
}

func TestApplyDryRunWritesNothing(t *testing.T) {
	env := setupCLITestEnv(t)

	candidates := writeCandidates(t, env, "batch.json",
		`[{"name": "Acme Corporation", "type": "customers", "confidence": 0.9}]`)
	if _, _, err := runCLI(t, env, "process", candidates); err != nil {
		t.Fatalf("process without apply: %v", err)
	}

	out, _, err := runCLI(t, env, "apply", "--dry-run")
	if err != nil {
		t.Fatalf("apply --dry-run: %v", err)
	}
	requireContains(t, out, "Dry run")

	entityPath := filepath.Join(env.graphDir, "customers", "standard", "acme_corporation.json")
	if _, err := os.Stat(entityPath); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write entities, stat err: %v", err)
	}

	out, _, err = runCLI(t, env, "apply")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	requireContains(t, out, "Successful")
	if _, err := os.Stat(entityPath); err != nil {
		t.Fatalf("expected entity after apply at %s: %v", entityPath, err)
	}
}

func TestIndexRebuildCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	candidates := writeCandidates(t, env, "batch.json",
		`[{"name": "Acme Corporation", "type": "customers", "confidence": 0.9}]`)
	if _, _, err := runCLI(t, env, "process", candidates, "--apply"); err != nil {
		t.Fatalf("process: %v", err)
	}

	out, _, err := runCLI(t, env, "index", "rebuild")
	if err != nil {
		t.Fatalf("index rebuild: %v", err)
	}
	requireContains(t, out, "Indexed 1 entities")
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	env := setupCLITestEnv(t)

	path := writeCandidates(t, env, "empty.json", "")
	if _, _, err := runCLI(t, env, "process", path); err == nil {
		t.Fatal("expected error for empty candidates input")
	}
}
