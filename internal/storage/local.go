package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lakewatch/thermal-service/internal/apperrors"
)

const (
	sidecarSuffix = ".meta"
	tempPrefix    = ".tmp-"
)

// LocalStorage keeps artifacts on the local filesystem with a JSON sidecar
// per object holding its Metadata.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// BasePath returns the storage root.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// Put writes content and its sidecar. The checksum and, when unset, the
// content type are filled in from the content and key.
func (s *LocalStorage) Put(_ context.Context, key string, content []byte, metadata *Metadata) error {
	fullPath := s.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	if err := writeAtomic(fullPath, content); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	meta := Metadata{}
	if metadata != nil {
		meta = *metadata
	}
	if meta.ContentType == "" {
		meta.ContentType = ContentTypeFor(key)
	}
	meta.Checksum = Checksum(content)
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", key, err)
	}
	if err := writeAtomic(fullPath+sidecarSuffix, raw); err != nil {
		return fmt.Errorf("write metadata for %s: %w", key, err)
	}
	return nil
}

// writeAtomic writes through a temp file in the same directory so readers
// never see a partial artifact.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Get reads an artifact.
func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(s.keyToPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound("artifact %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return content, nil
}

// Stat reports an artifact from its sidecar. Objects written without one
// are hashed on demand.
func (s *LocalStorage) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	fullPath := s.keyToPath(key)
	st, err := os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound("artifact %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	info := &ObjectInfo{Key: key, Size: st.Size(), ModifiedAt: st.ModTime()}
	if raw, err := os.ReadFile(fullPath + sidecarSuffix); err == nil {
		var meta Metadata
		if json.Unmarshal(raw, &meta) == nil {
			info.Metadata = &meta
			info.ContentType = meta.ContentType
			info.Checksum = meta.Checksum
		}
	}
	if info.ContentType == "" {
		info.ContentType = ContentTypeFor(key)
	}
	if info.Checksum == "" {
		sum, err := fileChecksum(fullPath)
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", key, err)
		}
		info.Checksum = sum
	}
	return info, nil
}

// Delete removes an artifact and its sidecar. Missing keys are not an error.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath := s.keyToPath(key)
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	_ = os.Remove(fullPath + sidecarSuffix)
	return nil
}

// List walks the directory holding prefix and returns matching keys.
// Sidecars and in-flight temp files are never listed.
func (s *LocalStorage) List(_ context.Context, prefix string) ([]string, error) {
	root := s.keyToPath(prefix)
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		root = filepath.Dir(root)
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}

	keys := []string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, sidecarSuffix) || strings.HasPrefix(name, tempPrefix) {
			return nil
		}
		if key := s.pathToKey(p); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyToPath roots the key before cleaning so ".." cannot escape basePath.
func (s *LocalStorage) keyToPath(key string) string {
	clean := filepath.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return filepath.Join(s.basePath, strings.TrimPrefix(clean, "/"))
}

func (s *LocalStorage) pathToKey(p string) string {
	rel, err := filepath.Rel(s.basePath, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum is the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
