package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"github.com/kognic/kognic-auth-go/tokencache"
)

// FileStore caches tokens in a single JSON file. Writes use temp file +
// rename for crash safety and set 0600 permissions.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore at path, creating parent directories with
// 0700 permissions if they don't exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cache file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return &FileStore{path: path, logger: slog.Default()}, nil
}

// Load returns the cached token for key if present and fresh.
func (f *FileStore) Load(ctx context.Context, key tokencache.Key) *oauth2.Token {
	if ctx.Err() != nil {
		return nil
	}

	st, ok := f.loadAll()[key.String()]
	if !ok {
		return nil
	}
	tok := st.token()
	if !usable(tok) {
		f.logger.Debug("cached file token expired, discarding", "key", key.String())
		return nil
	}
	return tok
}

// Save persists the token for key. Failures are logged at debug level.
func (f *FileStore) Save(ctx context.Context, key tokencache.Key, tok *oauth2.Token) {
	if ctx.Err() != nil || tok == nil {
		return
	}

	all := f.loadAll()
	all[key.String()] = newStoredToken(tok)
	if err := f.saveAll(all); err != nil {
		f.logger.Debug("failed to save token to file cache", "error", err)
	}
}

// Clear removes the cached token for key.
func (f *FileStore) Clear(ctx context.Context, key tokencache.Key) {
	if ctx.Err() != nil {
		return
	}

	all := f.loadAll()
	if _, ok := all[key.String()]; !ok {
		return
	}
	delete(all, key.String())
	if err := f.saveAll(all); err != nil {
		f.logger.Debug("failed to clear token from file cache", "error", err)
	}
}

// loadAll reads the whole cache file; any failure yields an empty cache.
func (f *FileStore) loadAll() map[string]storedToken {
	all := make(map[string]storedToken)

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Debug("failed to read token cache file", "error", err)
		}
		return all
	}
	if err := json.Unmarshal(data, &all); err != nil {
		f.logger.Debug("token cache file is corrupt, starting fresh", "error", err)
		return make(map[string]storedToken)
	}
	return all
}

// saveAll atomically replaces the cache file using temp file + rename.
func (f *FileStore) saveAll(all map[string]storedToken) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tempName, 0600); err != nil {
		return err
	}

	// Atomic rename to final location
	return os.Rename(tempName, f.path)
}
