package attachments

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlob stores objects as files below Root.
type LocalBlob struct {
	Root string
}

func NewLocalBlob(root string) *LocalBlob {
	return &LocalBlob{Root: root}
}

func (b *LocalBlob) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(b.Root, filepath.FromSlash(key)), nil
}

func (b *LocalBlob) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (b *LocalBlob) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (b *LocalBlob) Delete(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	b.pruneEmpty(filepath.Dir(p))
	return nil
}

// pruneEmpty removes empty directories left behind by Delete, up to Root.
func (b *LocalBlob) pruneEmpty(dir string) {
	for {
		rel, err := filepath.Rel(b.Root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (b *LocalBlob) List(_ context.Context, prefix string) ([]Object, error) {
	start := b.Root
	if prefix != "" {
		p, err := b.path(strings.TrimSuffix(prefix, "/"))
		if err != nil {
			return nil, err
		}
		start = p
	}
	var out []Object
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".part") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.Root, p)
		if err != nil {
			return err
		}
		out = append(out, Object{Key: filepath.ToSlash(rel), Updated: info.ModTime()})
		return nil
	})
	return out, err
}
