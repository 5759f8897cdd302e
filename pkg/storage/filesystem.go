package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Archive keeps raw source snapshots (fetched HTML, uploaded PDFs) on disk so a batch can be
// re-parsed after an adapter fix without hitting the institution again.
type Archive struct {
	baseDir string
	now     func() time.Time
}

// NewArchive ensures the base directory exists and returns a handle.
func NewArchive(baseDir string) (*Archive, error) {
	if baseDir == "" {
		baseDir = "./snapshots"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Archive{baseDir: baseDir, now: time.Now}, nil
}

// Put writes data under institution/YYYYMMDD/<uuid>.<ext> and returns the relative name.
func (a *Archive) Put(institution, ext string, data []byte) (string, error) {
	institution = sanitize(institution)
	if institution == "" {
		return "", fmt.Errorf("snapshot requires an institution")
	}
	ext = strings.TrimPrefix(ext, ".")
	name := filepath.Join(institution, a.now().UTC().Format("20060102"), uuid.NewString()+"."+ext)

	path := filepath.Join(a.baseDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return name, nil
}

// Read returns the bytes of a stored snapshot.
func (a *Archive) Read(name string) ([]byte, error) {
	path, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Prune removes snapshots older than ttl and returns the deleted names.
func (a *Archive) Prune(ttl time.Duration) ([]string, error) {
	cutoff := a.now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(a.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(a.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prune snapshots: %w", err)
	}
	return deleted, nil
}

func (a *Archive) resolve(name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("snapshot name %q escapes archive", name)
	}
	return filepath.Join(a.baseDir, clean), nil
}

func sanitize(v string) string {
	v = strings.TrimSpace(v)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, v)
}
