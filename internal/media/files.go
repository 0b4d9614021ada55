// ABOUTME: Transient file storage for uploaded photos and generated images
// ABOUTME: One photo slot per user; files are removed after use on a best-effort basis

package media

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps transient image files under a scratch directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the scratch directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the scratch directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// SavePhoto writes an uploaded photo for userID. A later upload from the
// same user overwrites the earlier file.
func (f *FileStore) SavePhoto(userID string, data []byte, ext string) (string, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "jpg"
	}
	return f.write(fmt.Sprintf("photo-%s.%s", userKey(userID), ext), data)
}

// SaveGenerated writes a generated image for userID.
func (f *FileStore) SaveGenerated(userID string, data []byte) (string, error) {
	return f.write(fmt.Sprintf("generated-%s.png", userKey(userID)), data)
}

func (f *FileStore) write(name string, data []byte) (string, error) {
	path := filepath.Join(f.dir, name)

	// Write then rename so a reader never sees a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming %s: %w", name, err)
	}
	return path, nil
}

// Read returns the contents of a stored file.
func (f *FileStore) Read(path string) ([]byte, error) {
	if err := f.owns(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading media file: %w", err)
	}
	return data, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (f *FileStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := f.owns(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing media file: %w", err)
	}
	return nil
}

// owns rejects paths outside the scratch directory.
func (f *FileStore) owns(path string) error {
	rel, err := filepath.Rel(f.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("path %q is outside the media directory", path)
	}
	return nil
}

// userKey maps a user ID to a file name component. Distinct IDs always
// get distinct keys.
func userKey(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// Slug reduces an identifier to characters safe for a file name.
// Matrix IDs like @alice:example.org become _alice_example.org. Different
// IDs can share a slug, so it only suits labels such as database names.
func Slug(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "anonymous"
	}
	return s
}
