package buildfan

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// StoreDir snapshots dir into the cache under key as a zstd-compressed
// tarball. Used for the dependency tree the external installer produces.
func (c *Cache) StoreDir(key, dir string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("cache store dir %q: mkdir: %w", key, err)
	}
	tmp, err := os.CreateTemp(c.Dir, ".cache-tmp-*")
	if err != nil {
		return fmt.Errorf("cache store dir %q: tmpfile: %w", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		cleanup()
		return fmt.Errorf("cache store dir %q: %w", key, err)
	}
	tw := tar.NewWriter(enc)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		tw.Close()
		enc.Close()
		cleanup()
		return fmt.Errorf("cache store dir %q: %w", key, walkErr)
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		cleanup()
		return fmt.Errorf("cache store dir %q: %w", key, err)
	}
	if err := enc.Close(); err != nil {
		cleanup()
		return fmt.Errorf("cache store dir %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache store dir %q: %w", key, err)
	}
	if err := os.Rename(tmpName, c.entryPath(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache store dir %q: rename: %w", key, err)
	}
	return nil
}

// RestoreDir extracts the first key that hits into dest and reports which
// key matched. Misses and corrupt entries return ok=false with no error:
// the cache only buys time, never correctness.
func (c *Cache) RestoreDir(keys []string, dest string) (string, bool) {
	for _, key := range keys {
		if err := c.extract(key, dest); err == nil {
			return key, true
		}
	}
	return "", false
}

func (c *Cache) extract(key, dest string) error {
	path, ok := c.lookup(key)
	if !ok {
		return fmt.Errorf("cache entry %q: no match", key)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		name := filepath.FromSlash(hdr.Name)
		if strings.Contains(name, "..") {
			return fmt.Errorf("cache entry %q: unsafe path %q", key, hdr.Name)
		}
		target := filepath.Join(dest, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}
