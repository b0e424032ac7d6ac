package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"dashdl/internal/logger"
	"dashdl/internal/media"
)

// Store manages the per-asset working directory that holds raw segment
// files between download and assembly. Re-running a download over an
// existing store resumes it: segments already on disk are skipped.
type Store struct {
	dir    string
	logger logger.Logger
}

// Open creates (if needed) and returns the store for one asset.
func Open(log logger.Logger, workDir, assetID string) (*Store, error) {
	dir := filepath.Join(workDir, assetID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: log}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// SegmentPath returns the on-disk path for a segment name.
func (s *Store) SegmentPath(name string) string {
	return filepath.Join(s.dir, name+media.DiskExt)
}

// Has reports whether the named segment is already on disk.
func (s *Store) Has(name string) bool {
	_, err := os.Stat(s.SegmentPath(name))
	return err == nil
}

// Write persists segment bytes and returns the path written.
func (s *Store) Write(name string, data []byte) (string, error) {
	path := s.SegmentPath(name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing segment %s: %w", name, err)
	}
	return path, nil
}

// Read returns the bytes of a segment already on disk.
func (s *Store) Read(name string) ([]byte, error) {
	return os.ReadFile(s.SegmentPath(name))
}

// Remove deletes one file, tolerating files already gone.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveAll deletes a set of files, collecting every failure rather
// than stopping at the first.
func (s *Store) RemoveAll(paths []string) error {
	var result *multierror.Error
	for _, path := range paths {
		if err := s.Remove(path); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// RemoveDirIfEmpty removes the store directory when nothing is left in
// it. A populated directory is left alone so partial downloads stay
// resumable.
func (s *Store) RemoveDirIfEmpty() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	s.logger.Debugf("removing empty work dir %s", s.dir)
	return os.Remove(s.dir)
}
