// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/buildagent/lib/clock"
	"github.com/bureau-foundation/buildagent/lib/codec"
)

// Directory and file names within a local store root.
const (
	objectsDir   = "objects"
	tmpDir       = "tmp"
	manifestFile = "manifest.cbor"
)

// ManifestEntry describes one published artifact.
type ManifestEntry struct {
	// Path is the artifact's destination path, slash separated.
	Path string `json:"path"`

	// Digest is the BLAKE3 digest of the uncompressed content.
	Digest string `json:"digest"`

	Size        int64       `json:"size"`
	Compression Compression `json:"compression"`
	StoredSize  int64       `json:"stored_size"`

	// UploadedAt is Unix seconds.
	UploadedAt int64 `json:"uploaded_at"`
}

// Manifest is the index of a local store, persisted as deterministic
// CBOR.
type Manifest struct {
	Entries    map[string]ManifestEntry `json:"entries"`
	Properties map[string]string        `json:"properties"`
}

// LocalPublisherConfig configures a LocalPublisher.
type LocalPublisherConfig struct {
	// Root is the store directory. It is created if missing.
	Root string

	// Compression is the codec for new objects. Empty selects zstd.
	Compression Compression

	Clock  clock.Clock
	Logger *slog.Logger
}

// LocalPublisher stores published artifacts and properties in a
// directory. Objects are content addressed, so publishing identical
// content under two paths stores it once. It is safe for concurrent
// use within one process.
type LocalPublisher struct {
	root        string
	compression Compression
	clock       clock.Clock
	logger      *slog.Logger

	mu sync.Mutex
}

// NewLocalPublisher opens (creating if needed) a store at config.Root.
func NewLocalPublisher(config LocalPublisherConfig) (*LocalPublisher, error) {
	if config.Root == "" {
		return nil, errors.New("artifact store root is required")
	}
	compression, err := ParseCompression(string(config.Compression))
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{config.Root, filepath.Join(config.Root, objectsDir), filepath.Join(config.Root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}

	publisherClock := config.Clock
	if publisherClock == nil {
		publisherClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &LocalPublisher{
		root:        config.Root,
		compression: compression,
		clock:       publisherClock,
		logger:      logger,
	}, nil
}

// Upload stores the file at source under the artifact path
// destination, replacing any earlier artifact at that path.
func (p *LocalPublisher) Upload(ctx context.Context, source, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destination, err := cleanArtifactPath(destination)
	if err != nil {
		return err
	}

	digest, size, err := HashFile(source)
	if err != nil {
		return err
	}

	objectCodec := compressionFor(source, p.compression)
	storedSize, err := p.storeObject(source, digest, objectCodec)
	if err != nil {
		return fmt.Errorf("storing %s: %w", destination, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	manifest, err := p.loadManifest()
	if err != nil {
		return err
	}
	manifest.Entries[destination] = ManifestEntry{
		Path:        destination,
		Digest:      digest,
		Size:        size,
		Compression: objectCodec,
		StoredSize:  storedSize,
		UploadedAt:  p.clock.Now().Unix(),
	}
	if err := p.saveManifest(manifest); err != nil {
		return err
	}

	p.logger.Info("artifact published",
		"path", destination,
		"digest", digest,
		"size", size,
		"stored_size", storedSize,
		"compression", objectCodec,
	)
	return nil
}

// storeObject writes the compressed object for digest unless it
// already exists, and returns its stored size.
func (p *LocalPublisher) storeObject(source, digest string, objectCodec Compression) (int64, error) {
	objectPath := p.objectPath(digest, objectCodec)
	if info, err := os.Stat(objectPath); err == nil {
		return info.Size(), nil
	}

	input, err := os.Open(source)
	if err != nil {
		return 0, err
	}
	defer input.Close()

	temporary, err := os.CreateTemp(filepath.Join(p.root, tmpDir), "object-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(temporary.Name())

	if err := compressStream(temporary, input, objectCodec); err != nil {
		temporary.Close()
		return 0, err
	}
	info, err := temporary.Stat()
	if err != nil {
		temporary.Close()
		return 0, err
	}
	if err := temporary.Close(); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return 0, err
	}
	if err := os.Rename(temporary.Name(), objectPath); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (p *LocalPublisher) objectPath(digest string, objectCodec Compression) string {
	return filepath.Join(p.root, objectsDir, digest[:2], digest+"."+string(objectCodec))
}

// SetProperty records a build property, replacing an earlier value.
func (p *LocalPublisher) SetProperty(ctx context.Context, property Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if property.Name == "" {
		return errors.New("property name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	manifest, err := p.loadManifest()
	if err != nil {
		return err
	}
	manifest.Properties[property.Name] = property.Value
	if err := p.saveManifest(manifest); err != nil {
		return err
	}
	p.logger.Info("property published", "name", property.Name)
	return nil
}

// Manifest returns the store's current manifest.
func (p *LocalPublisher) Manifest() (*Manifest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadManifest()
}

// Checksums returns the BLAKE3 checksums of every published artifact,
// in the form a checksum file carries.
func (p *LocalPublisher) Checksums() (Checksums, error) {
	manifest, err := p.Manifest()
	if err != nil {
		return nil, err
	}
	checksums := make(Checksums, len(manifest.Entries))
	for artifactPath, entry := range manifest.Entries {
		checksums[artifactPath] = entry.Digest
	}
	return checksums, nil
}

// Open returns the uncompressed content of the artifact at path.
func (p *LocalPublisher) Open(artifactPath string) (io.ReadCloser, error) {
	artifactPath, err := cleanArtifactPath(artifactPath)
	if err != nil {
		return nil, err
	}
	manifest, err := p.Manifest()
	if err != nil {
		return nil, err
	}
	entry, ok := manifest.Entries[artifactPath]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", artifactPath, fs.ErrNotExist)
	}

	file, err := os.Open(p.objectPath(entry.Digest, entry.Compression))
	if err != nil {
		return nil, err
	}
	reader, err := decompressStream(file, entry.Compression)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &objectReader{ReadCloser: reader, file: file}, nil
}

type objectReader struct {
	io.ReadCloser
	file *os.File
}

func (r *objectReader) Close() error {
	r.ReadCloser.Close()
	return r.file.Close()
}

func (p *LocalPublisher) loadManifest() (*Manifest, error) {
	manifest := &Manifest{}
	data, err := os.ReadFile(filepath.Join(p.root, manifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading manifest: %w", err)
	default:
		if err := codec.Unmarshal(data, manifest); err != nil {
			return nil, fmt.Errorf("decoding manifest: %w", err)
		}
	}
	if manifest.Entries == nil {
		manifest.Entries = make(map[string]ManifestEntry)
	}
	if manifest.Properties == nil {
		manifest.Properties = make(map[string]string)
	}
	return manifest, nil
}

func (p *LocalPublisher) saveManifest(manifest *Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	temporary := filepath.Join(p.root, tmpDir, manifestFile)
	if err := os.WriteFile(temporary, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(temporary, filepath.Join(p.root, manifestFile)); err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

// cleanArtifactPath normalizes an artifact path to a clean relative
// slash path that stays inside the store.
func cleanArtifactPath(artifactPath string) (string, error) {
	cleaned := path.Clean("/" + filepath.ToSlash(artifactPath))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid artifact path %q", artifactPath)
	}
	return cleaned, nil
}
