// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact moves build artifacts between the agent and
// storage: publishing uploaded files and build properties, fetching
// artifacts over HTTP, and verifying what was fetched.
//
// The package is organized in layers, each usable independently:
//
//   - Hashing: plain (unkeyed) BLAKE3 over file content, rendered as
//     64 lowercase hex characters, so digests can be checked with
//     standard b3sum tooling.
//
//   - Checksums: the "path=hexdigest" checksum file that accompanies
//     downloads. A 32-character digest is MD5 (older servers); a
//     64-character digest is BLAKE3.
//
//   - Compression: streaming zstd or LZ4 frames for stored artifacts,
//     chosen per store. Digests are always computed on uncompressed
//     bytes so a store can change codec without changing identities.
//
//   - Local store: [LocalPublisher] keeps artifacts under a directory,
//     content-addressed by digest, with a CBOR manifest (via lib/codec)
//     mapping destination paths and build properties to objects.
//
//   - Transfer: [HTTPDownloader] fetches URLs with bounded retries and
//     reports 304 responses as [ErrNotModified]. [ExtractZip] unpacks
//     directory artifacts, rejecting entries that escape the
//     destination.
package artifact
