package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type LocalProvider struct {
	baseDir string
}

var _ Provider = (*LocalProvider)(nil)

func NewLocalProvider(dir string) (*LocalProvider, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", baseDir, err)
	}

	return &LocalProvider{baseDir: baseDir}, nil
}

func (p *LocalProvider) fullpath(key string) (string, error) {
	path := filepath.Join(p.baseDir, filepath.FromSlash(key))
	if path != p.baseDir && !strings.HasPrefix(path, p.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes scratch directory", key)
	}
	return path, nil
}

func (p *LocalProvider) PutObject(ctx context.Context, key string, data io.Reader) error {
	path, err := p.fullpath(key)
	if err != nil {
		return err
	}

	dst, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", key, err)
	}

	if _, err := io.Copy(dst, data); err != nil {
		dst.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write file %s: %w", key, err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close file %s: %w", key, err)
	}

	return nil
}

const createAttempts = 5

// createFile creates path along with its parent directories. A concurrent
// DeleteObject can prune a parent between MkdirAll and Create, so both steps
// are retried while the failure is a missing directory.
func createFile(path string) (*os.File, error) {
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		if err = os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}

		var f *os.File
		if f, err = os.Create(path); err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, err
}

func (p *LocalProvider) GetObject(ctx context.Context, key string) ([]byte, error) {
	path, err := p.fullpath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", key, err)
	}
	return data, nil
}

func (p *LocalProvider) DeleteObject(ctx context.Context, key string) error {
	path, err := p.fullpath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file %s: %w", key, err)
	}

	p.pruneEmptyDirs(filepath.Dir(path))
	return nil
}

// pruneEmptyDirs removes now-empty parents of a deleted object, stopping at the
// first directory that still has entries. Top level directories such as runs/
// are shared by every run and are never removed.
func (p *LocalProvider) pruneEmptyDirs(dir string) {
	for strings.HasPrefix(dir, p.baseDir+string(filepath.Separator)) && filepath.Dir(dir) != p.baseDir {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (p *LocalProvider) ListObjects(ctx context.Context, prefix string) ([]Object, error) {
	root, err := p.fullpath(prefix)
	if err != nil {
		return nil, err
	}

	var objects []Object
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(p.baseDir, path)
		if err != nil {
			return err
		}

		objects = append(objects, Object{Name: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files under %s: %w", prefix, err)
	}

	return objects, nil
}
