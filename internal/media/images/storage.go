// Package images provides avatar image storage and placeholder generation.
package images

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage holds uploaded images on disk, one file per owner ID.
// Writes go through a temp file and rename so readers never observe a
// partially written image.
type Storage struct {
	dir string
}

// NewStorage creates the storage directory {basePath}/{subdir} if needed.
func NewStorage(basePath, subdir string) (*Storage, error) {
	if basePath == "" || subdir == "" {
		return nil, errors.New("storage path components cannot be empty")
	}

	dir := filepath.Join(basePath, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", subdir, err)
	}

	return &Storage{dir: dir}, nil
}

// checkID rejects IDs that would escape the storage directory.
func checkID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid image id %q", id)
	}
	return nil
}

// Save stores image bytes for an owner, replacing any previous image.
func (s *Storage) Save(id string, data []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("image data cannot be empty")
	}

	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close image: %w", err)
	}

	if err := os.Rename(tmpName, s.Path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store image: %w", err)
	}
	return nil
}

// Get returns the stored image bytes for an owner.
func (s *Storage) Get(id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image not found for %s: %w", id, err)
		}
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

// Exists reports whether an image is stored for an owner.
func (s *Storage) Exists(id string) bool {
	if checkID(id) != nil {
		return false
	}
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Delete removes an owner's image. Missing images are not an error.
func (s *Storage) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// Hash returns the hex SHA-256 of a stored image for ETag validation.
func (s *Storage) Hash(id string) (string, error) {
	data, err := s.Get(id)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Path returns the filesystem path for an owner's image.
func (s *Storage) Path(id string) string {
	return filepath.Join(s.dir, id+".img")
}
