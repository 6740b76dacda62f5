package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"legal-rag/internal/helper"
)

// LocalDir serves objects from a directory, keys being slash separated
// paths relative to it.
type LocalDir struct {
	root string
}

func NewLocalDir(root string) *LocalDir {
	return &LocalDir{root: root}
}

func (d *LocalDir) Root() string { return d.root }

func (d *LocalDir) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

func (d *LocalDir) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", d.root, ErrNotFound)
		}
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *LocalDir) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (d *LocalDir) Put(_ context.Context, key string, data []byte, _ string) error {
	path := d.path(key)
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (d *LocalDir) EnsureBucket(_ context.Context) error {
	return helper.CreateFolder(d.root)
}
