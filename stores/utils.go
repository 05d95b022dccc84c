package stores

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// errFileExists is returned by writeExclusiveFile when path is already taken
var errFileExists = errors.New("file already exists")

// writeExclusiveFile writes data to path only if path does not exist yet.
// The content is written to a temp file and then hard-linked into place, so
// readers never see a partial file and two writers cannot both succeed.
func writeExclusiveFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// link fails with EEXIST instead of replacing, unlike rename
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return errFileExists
		}
		return fmt.Errorf("failed to link temp file: %w", err)
	}
	return nil
}

// emailKey turns an email into a filename-safe key. Emails are case-sensitive.
func emailKey(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
