// Package update keeps the locally installed artifact in sync with the one
// published on GitHub.
//
// A Source fetches the remote descriptor (the Contents API listing or the
// latest release) and picks the artifact by extension. The Checker compares
// the artifact's identifier with the version marker persisted next to the
// install and downloads a replacement only when they differ.
//
// # Identifiers
//
// The identifier is opaque and compared for equality only. For the Contents
// API it is the git blob sha of the file, for releases it is "asset-<id>",
// which changes whenever an asset is re-uploaded.
//
// # Failure Handling
//
// Downloads land in a temporary file inside the install directory and are
// renamed over the artifact once complete. The marker is written after the
// rename, so a failed check never leaves a new marker next to an old
// artifact.
//
// # Descriptor Cache
//
// The ETag of the last descriptor response is kept in descriptor-cache.json
// under the state directory and sent back as If-None-Match. A 304 answer
// reuses the cached artifact description and does not count against the
// GitHub rate limit.
package update
