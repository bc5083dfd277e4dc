// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buildsession

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/buildagent/lib/artifact"
	"github.com/bureau-foundation/buildagent/lib/buildcommand"
)

// Publisher stores build artifacts and properties. lib/artifact's
// LocalPublisher is the agent's implementation.
type Publisher interface {
	Upload(ctx context.Context, source, destination string) error
	SetProperty(ctx context.Context, property artifact.Property) error
}

// Downloader fetches a URL and hands the response body to handle.
// A server answer of "not modified" is reported as
// artifact.ErrNotModified.
type Downloader interface {
	Perform(ctx context.Context, url string, handle func(body io.Reader) error) error
}

func executeDownloadFile(command *buildcommand.Command, session *Session) (bool, error) {
	return download(command, session, false)
}

func executeDownloadDir(command *buildcommand.Command, session *Session) (bool, error) {
	return download(command, session, true)
}

// download fetches a file, or a zip archive of a directory, into dest
// and verifies it against the optional checksum file.
func download(command *buildcommand.Command, session *Session, directory bool) (bool, error) {
	source := command.StringArg("url")
	if session.downloader == nil {
		session.Printf("Could not fetch artifact %s: no downloader is configured", source)
		return false, nil
	}

	destination := session.ResolveRelativeDir(command.WorkingDirectory, command.StringArg("dest"))
	checksumPath := command.StringArg("src")

	err := fetch(session, command, source, destination, checksumPath, directory)
	if err != nil {
		session.logger.Error("artifact download failed", "url", source, "error", err)
		session.Printf("Could not fetch artifact %s: %v", source, err)
		return false, nil
	}
	return true, nil
}

func fetch(session *Session, command *buildcommand.Command, source, destination, checksumPath string, directory bool) error {
	ctx := session.Context()

	var checksums artifact.Checksums
	if checksumURL := command.StringArg("checksumUrl"); checksumURL != "" {
		err := session.downloader.Perform(ctx, checksumURL, func(body io.Reader) error {
			parsed, err := artifact.ParseChecksums(body)
			checksums = parsed
			return err
		})
		if err != nil {
			return fmt.Errorf("fetching checksums: %w", err)
		}
	}

	requestURL := source
	if !directory {
		withDigest, err := withExistingDigest(source, destination)
		if err != nil {
			return err
		}
		requestURL = withDigest
	}

	parent := filepath.Dir(destination)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	temporary, err := os.CreateTemp(parent, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(temporary.Name())

	err = session.downloader.Perform(ctx, requestURL, func(body io.Reader) error {
		if _, err := temporary.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := temporary.Truncate(0); err != nil {
			return err
		}
		_, err := io.Copy(temporary, body)
		return err
	})
	closeErr := temporary.Close()
	if errors.Is(err, artifact.ErrNotModified) {
		session.Printf("Artifact at [%s] is up to date.", destination)
		return nil
	}
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	if directory {
		return placeDirectory(session, temporary.Name(), destination, checksumPath, checksums)
	}
	return placeFile(session, temporary.Name(), destination, checksumPath, checksums)
}

func placeFile(session *Session, downloaded, destination, checksumPath string, checksums artifact.Checksums) error {
	verified, err := verify(session, checksums, checksumPath, downloaded)
	if err != nil {
		return err
	}
	if err := os.Rename(downloaded, destination); err != nil {
		return err
	}
	printSaved(session, destination, verified)
	return nil
}

func placeDirectory(session *Session, archive, destination, checksumPath string, checksums artifact.Checksums) error {
	files, err := artifact.ExtractZip(archive, destination)
	if err != nil {
		return err
	}
	verifiedAll := checksums != nil
	for _, name := range files {
		verified, err := verify(session, checksums, path.Join(checksumPath, name), filepath.Join(destination, filepath.FromSlash(name)))
		if err != nil {
			return err
		}
		verifiedAll = verifiedAll && verified
	}
	printSaved(session, destination, verifiedAll)
	return nil
}

func verify(session *Session, checksums artifact.Checksums, checksumPath, localPath string) (bool, error) {
	if checksums == nil {
		return false, nil
	}
	verified, err := checksums.Verify(checksumPath, localPath)
	if err != nil {
		return false, err
	}
	if !verified {
		session.Printf("[WARN] The checksum file has no entry for %s.", checksumPath)
	}
	return verified, nil
}

func printSaved(session *Session, destination string, verified bool) {
	if verified {
		session.Printf("Saved artifact to [%s] after verifying the integrity of its contents.", destination)
	} else {
		session.Printf("Saved artifact to [%s] without verifying the integrity of its contents.", destination)
	}
}

// withExistingDigest adds the SHA-1 of an existing local copy to the
// URL, letting the server answer "not modified".
func withExistingDigest(source, destination string) (string, error) {
	file, err := os.Open(destination)
	if errors.Is(err, fs.ErrNotExist) {
		return source, nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		return source, err
	}

	hasher := sha1.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing existing %s: %w", destination, err)
	}

	parsed, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	query := parsed.Query()
	query.Set("sha1", hex.EncodeToString(hasher.Sum(nil)))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// executeUploadArtifact publishes the files matching the src glob
// (relative to the node's working directory) under dest. A matched
// directory is published recursively, keeping its layout.
func executeUploadArtifact(command *buildcommand.Command, session *Session) (bool, error) {
	pattern := command.StringArg("src")
	destination := command.StringArg("dest")
	base := session.ResolveRelativeDir(command.WorkingDirectory)

	if session.publisher == nil {
		session.Printf("Cannot upload %s: no artifact store is configured", pattern)
		return false, nil
	}

	matches, err := filepath.Glob(filepath.Join(base, pattern))
	if err != nil {
		return false, fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		message := fmt.Sprintf("The rule [%s] cannot match any resource under [%s]", pattern, base)
		if command.BoolArg("ignoreUnmatchError") {
			session.Printf("[WARN] %s", message)
			return true, nil
		}
		session.Printf("[ERROR] %s", message)
		return false, nil
	}

	for _, match := range matches {
		if err := uploadPath(session, match, destination); err != nil {
			session.logger.Error("artifact upload failed", "source", match, "error", err)
			session.Printf("Failed to upload %s: %v", match, err)
			return false, nil
		}
	}
	return true, nil
}

func uploadPath(session *Session, source, destination string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		target := path.Join(destination, filepath.Base(source))
		session.Printf("Uploading artifact %s to [%s]", source, target)
		return session.publisher.Upload(session.Context(), source, target)
	}

	prefix := path.Join(destination, filepath.Base(source))
	session.Printf("Uploading artifacts from %s to [%s]", source, prefix)
	return filepath.WalkDir(source, func(current string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		relative, err := filepath.Rel(source, current)
		if err != nil {
			return err
		}
		return session.publisher.Upload(session.Context(), current, path.Join(prefix, filepath.ToSlash(relative)))
	})
}

// executeGenerateProperty publishes a property whose value is the
// first line of the src file, trimmed.
func executeGenerateProperty(command *buildcommand.Command, session *Session) (bool, error) {
	name := command.StringArg("name")
	source := session.ResolveRelativeDir(command.WorkingDirectory, command.StringArg("src"))

	if session.publisher == nil {
		session.Printf("Failed to create property %s: no artifact store is configured", name)
		return false, nil
	}

	value, err := firstLine(source)
	if errors.Is(err, fs.ErrNotExist) {
		session.Printf("Failed to create property %s. File %s does not exist.", name, source)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", source, err)
	}

	if err := session.publisher.SetProperty(session.Context(), artifact.Property{Name: name, Value: value}); err != nil {
		session.logger.Error("publishing property failed", "name", name, "error", err)
		session.Printf("Failed to create property %s: %v", name, err)
		return false, nil
	}
	session.Printf("Property %s = %s created.", name, value)
	return true, nil
}

func firstLine(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	return "", scanner.Err()
}
