package tagcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileBackend stores one JSON file per page:
// "<dir>/<12hex scope>_<page>.json", where the scope hashes the server URL
// and company id. Update is atomic within one process only.
type FileBackend struct {
	dir   string
	scope string
	mu    sync.Mutex
}

// NewFileBackend scopes entries to one server and company inside dir.
func NewFileBackend(dir, baseURL, companyID string) *FileBackend {
	return &FileBackend{dir: dir, scope: scopeHash(baseURL, companyID)}
}

func scopeHash(baseURL, companyID string) string {
	hash := sha1.Sum([]byte(strings.TrimSuffix(baseURL, "/") + "\x00" + companyID))
	return hex.EncodeToString(hash[:6])
}

// Dir returns the directory holding the cache files.
func (b *FileBackend) Dir() string {
	return b.dir
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, b.scope+"_"+sanitizeKey(key)+".json")
}

func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *FileBackend) Store(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(key, data)
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := os.Remove(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (b *FileBackend) Update(_ context.Context, key string, fn UpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, err := os.ReadFile(b.path(key))
	found := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	next, err := fn(cur, found)
	if err != nil || next == nil {
		return err
	}
	return b.write(key, next)
}

// write replaces the file via a temp file and rename so readers never see a
// partial entry.
func (b *FileBackend) write(key string, data []byte) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, ".tagcache-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Clear removes every cache file in the directory, for all scopes. Only
// names matching the cache filename scheme are touched.
func (b *FileBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ClearDir(b.dir)
}

// ClearDir removes cache files from dir without needing a configured scope.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isCacheFilename(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// DefaultDir returns "$XDG_CACHE_HOME/inbox-cli/tags" or the platform
// equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "inbox-cli", "tags"), nil
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "page"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, key)
}

func isCacheFilename(name string) bool {
	// Expected: "<12hex>_<page>.json"
	if filepath.Ext(name) != ".json" {
		return false
	}
	scope, page, ok := strings.Cut(strings.TrimSuffix(name, ".json"), "_")
	if !ok || page == "" || len(scope) != 12 {
		return false
	}
	_, err := hex.DecodeString(scope)
	return err == nil
}
