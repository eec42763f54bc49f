package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chartgpt/chartgpt/internal/storage"
)

// Store is a directory-backed ObjectStore for development and single-node use.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local store root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create local store root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	normalized, fullPath, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create parent dir for %q: %w", normalized, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".put-*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp file for %q: %w", normalized, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	hash := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), body)
	if err != nil {
		_ = tmp.Close()
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: %w", normalized, err)
	}
	if err := tmp.Close(); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("close object %q: %w", normalized, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("commit object %q: %w", normalized, err)
	}
	return storage.ObjectInfo{Key: normalized, Size: written, ETag: hex.EncodeToString(hash.Sum(nil))}, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	normalized, fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %q: %w", normalized, err)
	}
	return file, nil
}

func (s *Store) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	normalized, fullPath, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", normalized, err)
	}
	return storage.ObjectInfo{Key: normalized, Size: info.Size(), LastModified: info.ModTime().UTC()}, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	normalized, fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", normalized, err)
	}
	return nil
}

func (s *Store) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	infos := make([]storage.ObjectInfo, 0)
	err := filepath.WalkDir(s.root, func(fullPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, fullPath)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		infos = append(infos, storage.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects %q: %w", prefix, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) resolve(key string) (string, string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}
