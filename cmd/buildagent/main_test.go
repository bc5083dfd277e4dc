// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bureau-foundation/buildagent/lib/buildcommand"
	"github.com/bureau-foundation/buildagent/lib/buildsession"
	"github.com/bureau-foundation/buildagent/lib/process"
	"github.com/bureau-foundation/buildagent/lib/testutil"
)

// syncBuffer is a bytes.Buffer safe to read while a build writes it.
type syncBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *syncBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(data)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.String()
}

type testAgent struct {
	*agent
	stdout     *syncBuffer
	stderr     *syncBuffer
	interrupts chan os.Signal
}

func newTestAgent(t *testing.T) *testAgent {
	t.Helper()
	t.Setenv("BUILDAGENT_CONFIG", "")
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	interrupts := make(chan os.Signal, 1)
	return &testAgent{
		agent: &agent{
			stdout:     stdout,
			stderr:     stderr,
			logger:     slog.New(slog.DiscardHandler),
			interrupts: interrupts,
		},
		stdout:     stdout,
		stderr:     stderr,
		interrupts: interrupts,
	}
}

// writeAgentConfig writes a config rooted in a temporary directory and
// returns its path and the root.
func writeAgentConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	root := t.TempDir()
	content := "environment: development\n" +
		"paths:\n" +
		"  root: " + root + "\n" +
		"  work: " + filepath.Join(root, "work") + "\n" +
		"  artifacts: " + filepath.Join(root, "artifacts") + "\n" +
		"  result_log: " + filepath.Join(root, "results.jsonl") + "\n" +
		"build:\n" +
		"  cancel_timeout: 10s\n" +
		"console:\n" +
		"  color: never\n" +
		extra
	path := filepath.Join(root, "buildagent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, root
}

func writeTree(t *testing.T, root *buildcommand.Command) string {
	t.Helper()
	data, err := json.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "tree.jsonc")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readResultLog(t *testing.T, path string) []resultRecord {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening result log: %v", err)
	}
	defer file.Close()

	var records []resultRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record resultRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("result log line %q: %v", scanner.Text(), err)
		}
		records = append(records, record)
	}
	return records
}

func skipIfMlockUnavailable(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "mlock") {
		t.Skipf("mlock unavailable: %v", err)
	}
}

func TestRunPassingBuild(t *testing.T) {
	testAgent := newTestAgent(t)
	configPath, root := writeAgentConfig(t, "")

	tree := writeTree(t, buildcommand.Compose(
		buildcommand.Echo("hello ${who}"),
		buildcommand.Exec("sh", "-c", "echo from process"),
	))
	err := testAgent.run([]string{"run", "--config", configPath, "--build-id", "build-7", "--var", "who=world", tree})
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}

	output := testAgent.stdout.String()
	for _, want := range []string{"hello world\n", "from process\n"} {
		if !strings.Contains(output, want) {
			t.Errorf("console output missing %q:\n%s", want, output)
		}
	}

	records := readResultLog(t, filepath.Join(root, "results.jsonl"))
	var summary []string
	for _, record := range records {
		if record.BuildID != "build-7" {
			t.Errorf("record build_id = %q, want build-7", record.BuildID)
		}
		summary = append(summary, record.Event+" "+string(record.State)+" "+string(record.Outcome))
	}
	want := []string{"started  ", "status Completed passed"}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Errorf("result log mismatch (-want +got):\n%s", diff)
	}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		tree string
		want int
	}{
		{
			name: "failed build",
			tree: `{"name": "fail", "args": {"message": "nope"}}`,
			want: exitFailed,
		},
		{
			name: "malformed tree",
			tree: `{"name": "task", "sub_commands": []}`,
			want: exitMalformed,
		},
		{
			name: "invalid json",
			tree: `{"name": `,
			want: exitMalformed,
		},
		{
			name: "passing build with comments",
			tree: "// just an echo\n{\"name\": \"echo\", \"args\": {\"lines\": [\"ok\"]},}",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testAgent := newTestAgent(t)
			configPath, _ := writeAgentConfig(t, "")
			treePath := filepath.Join(t.TempDir(), "tree.jsonc")
			if err := os.WriteFile(treePath, []byte(tt.tree), 0o644); err != nil {
				t.Fatal(err)
			}

			err := testAgent.run([]string{"run", "--config", configPath, treePath})
			if got := process.ExitCode(err); got != tt.want {
				t.Errorf("exit code = %d (%v), want %d", got, err, tt.want)
			}
		})
	}
}

func TestRunCancelledByInterrupt(t *testing.T) {
	testAgent := newTestAgent(t)
	configPath, root := writeAgentConfig(t, "")

	tree := writeTree(t, buildcommand.Exec("sh", "-c", "echo start sleeping; sleep 50; echo after sleep").
		WithOnCancel(buildcommand.Echo("cleaning up")))

	errs := make(chan error, 1)
	go func() {
		errs <- testAgent.run([]string{"run", "--config", configPath, tree})
	}()

	testutil.WaitFor(t, func() bool {
		return strings.Contains(testAgent.stdout.String(), "start sleeping")
	}, 10*time.Second, "process output")
	testAgent.interrupts <- syscall.SIGINT

	err := testutil.RequireReceive(t, errs, 30*time.Second, "run to return after interrupt")
	if got := process.ExitCode(err); got != exitCancelled {
		t.Errorf("exit code = %d (%v), want %d", got, err, exitCancelled)
	}
	output := testAgent.stdout.String()
	if !strings.Contains(output, "cleaning up") {
		t.Errorf("on-cancel command did not run:\n%s", output)
	}
	if strings.Contains(output, "after sleep") {
		t.Errorf("process kept running after cancel:\n%s", output)
	}

	records := readResultLog(t, filepath.Join(root, "results.jsonl"))
	last := records[len(records)-1]
	if last.State != buildsession.Completed || last.Outcome != buildcommand.Cancelled {
		t.Errorf("last record = %+v, want Completed Cancelled", last)
	}
}

func TestSealedVariablesReachTheBuildRedacted(t *testing.T) {
	testAgent := newTestAgent(t)
	secretsDir := t.TempDir()
	identityPath := filepath.Join(secretsDir, "agent.key")
	sealedPath := filepath.Join(secretsDir, "sealed.yaml")
	configPath, _ := writeAgentConfig(t, "secrets:\n"+
		"  identity: "+identityPath+"\n"+
		"  sealed_variables: "+sealedPath+"\n")

	err := testAgent.run([]string{"keygen", "--config", configPath})
	skipIfMlockUnavailable(t, err)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	publicKey := strings.TrimSpace(testAgent.stdout.String())
	if !strings.HasPrefix(publicKey, "age1") {
		t.Fatalf("keygen printed %q, want an age public key", publicKey)
	}
	info, err := os.Stat(identityPath)
	if err != nil {
		t.Fatalf("identity file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("identity file mode = %v, want 0600", info.Mode().Perm())
	}

	valuePath := filepath.Join(secretsDir, "value")
	if err := os.WriteFile(valuePath, []byte("tok-9f8e7d\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := testAgent.run([]string{"seal", "--config", configPath, "--value-file", valuePath, "DEPLOY_TOKEN"}); err != nil {
		t.Fatalf("seal error: %v", err)
	}
	sealedData, err := os.ReadFile(sealedPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(sealedData), "DEPLOY_TOKEN: ") || strings.Contains(string(sealedData), "tok-9f8e7d") {
		t.Errorf("sealed-variables file = %q", sealedData)
	}

	tree := writeTree(t, buildcommand.Exec("sh", "-c", "echo token=$DEPLOY_TOKEN"))
	if err := testAgent.run([]string{"run", "--config", configPath, tree}); err != nil {
		t.Fatalf("run error: %v", err)
	}
	output := testAgent.stdout.String()
	if !strings.Contains(output, "token=******\n") {
		t.Errorf("sealed value not exported or not redacted:\n%s", output)
	}
	if strings.Contains(output, "tok-9f8e7d") {
		t.Errorf("console output leaks the sealed value:\n%s", output)
	}
}

func TestKeygenRefusesToOverwrite(t *testing.T) {
	testAgent := newTestAgent(t)
	identityPath := filepath.Join(t.TempDir(), "agent.key")
	if err := os.WriteFile(identityPath, []byte("existing"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := testAgent.run([]string{"keygen", "--identity", identityPath})
	skipIfMlockUnavailable(t, err)
	if !errors.Is(err, os.ErrExist) {
		t.Errorf("keygen over an existing file = %v, want ErrExist", err)
	}
	data, _ := os.ReadFile(identityPath)
	if string(data) != "existing" {
		t.Errorf("existing identity file was modified: %q", data)
	}
}

func TestSealRequiresRecipient(t *testing.T) {
	testAgent := newTestAgent(t)
	err := testAgent.run([]string{"seal", "--file", filepath.Join(t.TempDir(), "sealed.yaml"), "NAME"})
	if err == nil || !strings.Contains(err.Error(), "no recipient") {
		t.Errorf("seal without recipient = %v", err)
	}
}

func TestManifestAfterUpload(t *testing.T) {
	testAgent := newTestAgent(t)
	configPath, root := writeAgentConfig(t, "")

	tree := writeTree(t, buildcommand.Compose(
		buildcommand.Exec("sh", "-c", "echo report > summary.txt"),
		buildcommand.UploadArtifact("summary.txt", "reports", false),
	))
	if err := testAgent.run([]string{"run", "--config", configPath, tree}); err != nil {
		t.Fatalf("run error: %v\n%s", err, testAgent.stdout.String())
	}

	if err := testAgent.run([]string{"manifest", "--store", filepath.Join(root, "artifacts")}); err != nil {
		t.Fatalf("manifest error: %v", err)
	}
	if !strings.Contains(testAgent.stdout.String(), `"reports/summary.txt"`) {
		t.Errorf("manifest output does not list the artifact:\n%s", testAgent.stdout.String())
	}
}

func TestUnknownSubcommand(t *testing.T) {
	testAgent := newTestAgent(t)
	if err := testAgent.run([]string{"deploy"}); err == nil {
		t.Error("unknown subcommand succeeded")
	}
	if !strings.Contains(testAgent.stderr.String(), "Usage: buildagent") {
		t.Errorf("usage not printed:\n%s", testAgent.stderr.String())
	}
	if err := testAgent.run(nil); err == nil {
		t.Error("missing subcommand succeeded")
	}
}

func TestVersion(t *testing.T) {
	testAgent := newTestAgent(t)
	if err := testAgent.run([]string{"--version"}); err != nil {
		t.Fatalf("--version error: %v", err)
	}
	if !strings.HasPrefix(testAgent.stdout.String(), "buildagent ") {
		t.Errorf("--version printed %q", testAgent.stdout.String())
	}
}
