// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names the codec stored objects are written with. The
// names are persisted in store manifests.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

// ParseCompression parses a codec name. The empty name selects zstd.
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(name)) {
	case "", CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	case CompressionNone:
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want zstd, lz4 or none)", name)
	}
}

// alreadyCompressed lists extensions of formats that do not shrink
// further; they are stored as is whatever the store's codec.
var alreadyCompressed = map[string]bool{
	".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".zst": true, ".lz4": true,
	".zip": true, ".jar": true, ".war": true, ".7z": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".mp4": true, ".webm": true, ".mp3": true,
}

// compressionFor returns the codec to store path with.
func compressionFor(path string, configured Compression) Compression {
	if alreadyCompressed[strings.ToLower(filepath.Ext(path))] {
		return CompressionNone
	}
	return configured
}

// compressStream copies source into destination through the codec.
func compressStream(destination io.Writer, source io.Reader, codec Compression) error {
	switch codec {
	case CompressionNone:
		_, err := io.Copy(destination, source)
		return err

	case CompressionLZ4:
		writer := lz4.NewWriter(destination)
		if _, err := io.Copy(writer, source); err != nil {
			writer.Close()
			return fmt.Errorf("lz4 compress: %w", err)
		}
		return writer.Close()

	case CompressionZstd:
		writer, err := zstd.NewWriter(destination, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("zstd encoder: %w", err)
		}
		if _, err := io.Copy(writer, source); err != nil {
			writer.Close()
			return fmt.Errorf("zstd compress: %w", err)
		}
		return writer.Close()

	default:
		return fmt.Errorf("unsupported compression %q", codec)
	}
}

// decompressStream returns a reader of source's uncompressed content.
// Closing it releases decoder resources but not source.
func decompressStream(source io.Reader, codec Compression) (io.ReadCloser, error) {
	switch codec {
	case CompressionNone:
		return io.NopCloser(source), nil

	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(source)), nil

	case CompressionZstd:
		decoder, err := zstd.NewReader(source)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return decoder.IOReadCloser(), nil

	default:
		return nil, fmt.Errorf("unsupported compression %q", codec)
	}
}
