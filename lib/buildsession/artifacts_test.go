// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"

	"github.com/bureau-foundation/buildagent/lib/artifact"
	"github.com/bureau-foundation/buildagent/lib/buildcommand"
)

// fakeDownloader serves fixed bodies by URL path and records every
// requested URL.
type fakeDownloader struct {
	mu          sync.Mutex
	bodies      map[string][]byte
	notModified bool
	requests    []string
}

func (d *fakeDownloader) Perform(ctx context.Context, rawURL string, handle func(io.Reader) error) error {
	d.mu.Lock()
	d.requests = append(d.requests, rawURL)
	notModified := d.notModified
	d.mu.Unlock()

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	body, ok := d.bodies[parsed.Path]
	if !ok {
		return fmt.Errorf("server returned 404 Not Found")
	}
	if notModified && parsed.Query().Has("sha1") {
		return artifact.ErrNotModified
	}
	return handle(bytes.NewReader(body))
}

func (d *fakeDownloader) requested() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func withDownloader(downloader Downloader) func(*Config) {
	return func(config *Config) { config.Downloader = downloader }
}

func TestDownloadFileVerified(t *testing.T) {
	content := []byte("tool binary")
	downloader := &fakeDownloader{bodies: map[string][]byte{
		"/artifacts/tool":      content,
		"/artifacts/checksums": []byte("# generated\nbin/tool=" + artifact.HashBytes(content) + "\n"),
	}}
	root := buildcommand.DownloadFile("http://server/artifacts/tool", "bin/tool", "tools/tool", "http://server/artifacts/checksums")

	outcome, session, console := build(t, root, withDownloader(downloader))
	if outcome != buildcommand.Passed {
		t.Fatalf("outcome = %s, want passed; console:\n%s", outcome, console.Output())
	}
	saved, err := os.ReadFile(filepath.Join(session.WorkingDir(), "tools", "tool"))
	if err != nil || !bytes.Equal(saved, content) {
		t.Errorf("saved content = %q, %v", saved, err)
	}
	requireLine(t, console, "after verifying the integrity of its contents")
}

func TestDownloadFileMD5Checksum(t *testing.T) {
	content := []byte("legacy artifact")
	downloader := &fakeDownloader{bodies: map[string][]byte{
		"/a":    content,
		"/sums": []byte("a.bin=" + md5Hex(content)),
	}}
	root := buildcommand.DownloadFile("http://server/a", "a.bin", "a.bin", "http://server/sums")

	outcome, _, console := build(t, root, withDownloader(downloader))
	if outcome != buildcommand.Passed {
		t.Errorf("outcome = %s, want passed", outcome)
	}
	requireLine(t, console, "after verifying")
}

func TestDownloadFileChecksumMismatch(t *testing.T) {
	downloader := &fakeDownloader{bodies: map[string][]byte{
		"/a":    []byte("tampered"),
		"/sums": []byte("a.bin=" + md5Hex([]byte("original"))),
	}}
	root := buildcommand.DownloadFile("http://server/a", "a.bin", "a.bin", "http://server/sums")

	outcome, session, console := build(t, root, withDownloader(downloader))
	if outcome != buildcommand.Failed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
	requireLine(t, console, "checksum mismatch for a.bin")
	if _, err := os.Stat(filepath.Join(session.WorkingDir(), "a.bin")); err == nil {
		t.Error("mismatched download was saved")
	}
}

func TestDownloadFileWithoutChecksums(t *testing.T) {
	downloader := &fakeDownloader{bodies: map[string][]byte{"/a": []byte("x")}}
	outcome, _, console := build(t, buildcommand.DownloadFile("http://server/a", "a", "a", ""), withDownloader(downloader))
	if outcome != buildcommand.Passed {
		t.Errorf("outcome = %s, want passed", outcome)
	}
	requireLine(t, console, "without verifying the integrity")
}

func TestDownloadFileMissingChecksumEntry(t *testing.T) {
	downloader := &fakeDownloader{bodies: map[string][]byte{
		"/a":    []byte("x"),
		"/sums": []byte("other=" + md5Hex([]byte("y"))),
	}}
	_, _, console := build(t, buildcommand.DownloadFile("http://server/a", "a", "a", "http://server/sums"), withDownloader(downloader))
	requireLine(t, console, "[WARN] The checksum file has no entry for a.")
	requireLine(t, console, "without verifying")
}

func TestDownloadFileNotModified(t *testing.T) {
	content := []byte("cached")
	downloader := &fakeDownloader{bodies: map[string][]byte{"/a": content}, notModified: true}
	session, console := newTestSession(t, withDownloader(downloader))
	local := filepath.Join(session.WorkingDir(), "a")
	if err := os.WriteFile(local, content, 0o644); err != nil {
		t.Fatal(err)
	}

	outcome, err := session.Build(buildcommand.DownloadFile("http://server/a?channel=stable", "a", "a", ""))
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if outcome != buildcommand.Passed {
		t.Errorf("outcome = %s, want passed", outcome)
	}
	requireLine(t, console, "is up to date")

	requests := downloader.requested()
	if len(requests) != 1 {
		t.Fatalf("requests = %q", requests)
	}
	query, _ := url.Parse(requests[0])
	sum := fmt.Sprintf("%x", sha1.Sum(content))
	if query.Query().Get("sha1") != sum || query.Query().Get("channel") != "stable" {
		t.Errorf("request = %q, want channel kept and sha1=%s", requests[0], sum)
	}
}

func TestDownloadFailure(t *testing.T) {
	downloader := &fakeDownloader{bodies: map[string][]byte{}}
	outcome, _, console := build(t, buildcommand.DownloadFile("http://server/missing", "m", "m", ""), withDownloader(downloader))
	if outcome != buildcommand.Failed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
	requireLine(t, console, "Could not fetch artifact http://server/missing")
}

func TestDownloadWithoutDownloader(t *testing.T) {
	outcome, _, console := build(t, buildcommand.DownloadFile("http://server/a", "a", "a", ""), nil)
	if outcome != buildcommand.Failed {
		t.Errorf("outcome = %s, want failed", outcome)
	}
	requireLine(t, console, "no downloader is configured")
}

func TestDownloadDir(t *testing.T) {
	files := map[string]string{"lib/one.txt": "one", "lib/nested/two.txt": "two"}
	var archive bytes.Buffer
	writer := zip.NewWriter(&archive)
	var sums strings.Builder
	for name, content := range files {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		entry.Write([]byte(content))
		fmt.Fprintf(&sums, "deps/%s=%s\n", name, artifact.HashBytes([]byte(content)))
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	downloader := &fakeDownloader{bodies: map[string][]byte{
		"/deps.zip": archive.Bytes(),
		"/sums":     []byte(sums.String()),
	}}
	root := buildcommand.DownloadDir("http://server/deps.zip", "deps", "vendor", "http://server/sums")

	outcome, session, console := build(t, root, withDownloader(downloader))
	if outcome != buildcommand.Passed {
		t.Fatalf("outcome = %s, want passed; console:\n%s", outcome, console.Output())
	}
	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(session.WorkingDir(), "vendor", filepath.FromSlash(name)))
		if err != nil || string(got) != content {
			t.Errorf("%s = %q, %v; want %q", name, got, err, content)
		}
	}
	requireLine(t, console, "after verifying the integrity of its contents")
	for _, request := range downloader.requested() {
		if strings.Contains(request, "sha1=") {
			t.Errorf("directory download sent a digest: %s", request)
		}
	}
}

func newPublisher(t *testing.T) *artifact.LocalPublisher {
	t.Helper()
	publisher, err := artifact.NewLocalPublisher(artifact.LocalPublisherConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocalPublisher() error: %v", err)
	}
	return publisher
}

func TestUploadArtifact(t *testing.T) {
	publisher := newPublisher(t)
	session, console := newTestSession(t, func(config *Config) { config.Publisher = publisher })
	base := session.WorkingDir()
	for name, content := range map[string]string{
		"out/app.bin":        "binary",
		"out/report/index":   "index",
		"out/report/css/all": "css",
		"out/notes.txt":      "notes",
	} {
		target := filepath.Join(base, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	root := buildcommand.Compose(
		buildcommand.UploadArtifact("*.bin", "dist", false).WithWorkingDirectory("out"),
		buildcommand.UploadArtifact("out/report", "html", false),
	)
	outcome, err := session.Build(root)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if outcome != buildcommand.Passed {
		t.Fatalf("outcome = %s, want passed; console:\n%s", outcome, console.Output())
	}
	requireLine(t, console, "Uploading artifact "+filepath.Join(base, "out", "app.bin")+" to [dist/app.bin]")

	manifest, err := publisher.Manifest()
	if err != nil {
		t.Fatalf("Manifest() error: %v", err)
	}
	var paths []string
	for path := range manifest.Entries {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	want := []string{"dist/app.bin", "html/report/css/all", "html/report/index"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("published paths mismatch (-want +got):\n%s", diff)
	}

	reader, err := publisher.Open("dist/app.bin")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer reader.Close()
	if data, _ := io.ReadAll(reader); string(data) != "binary" {
		t.Errorf("published content = %q", data)
	}
}

func TestUploadArtifactNoMatch(t *testing.T) {
	for _, ignore := range []bool{false, true} {
		publisher := newPublisher(t)
		outcome, _, console := build(t, buildcommand.UploadArtifact("*.missing", "dist", ignore), func(config *Config) {
			config.Publisher = publisher
		})
		if ignore {
			if outcome != buildcommand.Passed {
				t.Errorf("ignored: outcome = %s, want passed", outcome)
			}
			requireLine(t, console, "[WARN] The rule [*.missing] cannot match any resource under")
		} else {
			if outcome != buildcommand.Failed {
				t.Errorf("outcome = %s, want failed", outcome)
			}
			requireLine(t, console, "[ERROR] The rule [*.missing] cannot match any resource under")
		}
	}
}

func TestGenerateProperty(t *testing.T) {
	publisher := newPublisher(t)
	session, console := newTestSession(t, func(config *Config) { config.Publisher = publisher })
	if err := os.WriteFile(filepath.Join(session.WorkingDir(), "version.txt"), []byte("  1.4.2  \nignored\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := buildcommand.Compose(
		buildcommand.GenerateProperty("version", "version.txt"),
		buildcommand.GenerateProperty("missing", "nope.txt").WithRunIf(buildcommand.RunIfAny),
	)
	outcome, err := session.Build(root)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if outcome != buildcommand.Failed {
		t.Errorf("outcome = %s, want failed for the missing file", outcome)
	}
	requireLine(t, console, "Property version = 1.4.2 created.")
	requireLine(t, console, "Failed to create property missing. File "+filepath.Join(session.WorkingDir(), "nope.txt")+" does not exist.")

	manifest, err := publisher.Manifest()
	if err != nil {
		t.Fatalf("Manifest() error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"version": "1.4.2"}, manifest.Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
}
