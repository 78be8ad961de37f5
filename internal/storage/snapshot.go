// Package storage holds helpers shared by the blob store backends.
// Concrete stores live in the gcs, local and memory subpackages.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// SnapshotContentType is the content type used for evidence snapshots.
const SnapshotContentType = "text/plain; charset=utf-8"

// SnapshotPath returns the object path of an evidence snapshot:
// snapshots/<client>/<company>/<hash>.txt.
func SnapshotPath(clientID, companyID, hash string) (string, error) {
	for _, part := range []string{clientID, companyID, hash} {
		if strings.TrimSpace(part) == "" {
			return "", fmt.Errorf("snapshot path needs client, company and hash")
		}
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid snapshot path segment %q", part)
		}
	}
	return fmt.Sprintf("snapshots/%s/%s/%s.txt", clientID, companyID, hash), nil
}

// Discard is a BlobStore that drops content. It is used when snapshots are disabled.
type Discard struct{}

// PutObject drains r and returns an empty URI.
func (Discard) PutObject(_ context.Context, _ string, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", fmt.Errorf("discard object: %w", err)
	}
	return "", nil
}
