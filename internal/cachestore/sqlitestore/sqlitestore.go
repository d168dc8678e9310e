// Package sqlitestore implements cachestore.CacheStore on top of a local
// SQLite database via modernc.org/sqlite, so the edge cache survives a
// gateway restart. Bodies at or above a configured size threshold are
// spilled to a file under the store's objects directory instead of being
// inlined into the row.
package sqlitestore

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/objectgw/gateway/internal/cachestore"
	"github.com/objectgw/gateway/internal/gwerr"
)

//go:embed migrations
var migrationsFS embed.FS

// Store is a CacheStore backend persisted to a SQLite database.
type Store struct {
	db            *sql.DB
	objectsDir    string
	diskThreshold int64
}

func initSchema(db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readErr := migrationsFS.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", path, readErr)
		}

		slog.Info("running cache store migration", "path", path)
		_, execErr := db.Exec(string(content))
		return execErr
	})
}

// Open creates or opens the SQLite database rooted at dir, applying its
// embedded migrations. Bodies at or above diskThreshold bytes are stored as
// files under dir/objects instead of inline in the row.
func Open(dir string, diskThreshold int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("sqlitestore: Dir must not be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, gwerr.Internal("sqlitestore.Open", err)
	}

	objectsDir := filepath.Join(dir, "objects")
	if err := os.MkdirAll(objectsDir, 0o755); err != nil {
		return nil, gwerr.Internal("sqlitestore.Open", err)
	}

	dbPath := filepath.Join(dir, "cache.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, gwerr.Internal("sqlitestore.Open", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, gwerr.Internal("sqlitestore.Open", err)
	}

	if diskThreshold <= 0 {
		diskThreshold = 64 * 1024
	}

	return &Store{db: db, objectsDir: objectsDir, diskThreshold: diskThreshold}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements cachestore.CacheStore.
func (s *Store) Get(key string) (cachestore.CachedEntry, bool, error) {
	row := s.db.QueryRow(
		`SELECT mtime, etag, content_type, size, file_path, body FROM cache_entries WHERE key = ?`,
		key,
	)

	var (
		mtime       int64
		etag        []byte
		contentType sql.NullString
		size        int64
		filePath    sql.NullString
		body        []byte
	)

	if err := row.Scan(&mtime, &etag, &contentType, &size, &filePath, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cachestore.CachedEntry{}, false, nil
		}
		return cachestore.CachedEntry{}, false, gwerr.Internal("sqlitestore.Get", err)
	}

	entry := cachestore.CachedEntry{
		MTime:       time.Unix(mtime, 0),
		ETag:        etag,
		ContentType: contentType.String,
		Size:        size,
		FilePath:    filePath.String,
		Body:        body,
	}

	return entry, true, nil
}

// Put implements cachestore.CacheStore.
func (s *Store) Put(key string, entry cachestore.CachedEntry) error {
	filePath := entry.FilePath
	body := entry.Body

	if filePath == "" && int64(len(entry.Body)) >= s.diskThreshold {
		spillPath := filepath.Join(s.objectsDir, objectFileName(key))
		if err := os.WriteFile(spillPath, entry.Body, 0o644); err != nil {
			return gwerr.Internal("sqlitestore.Put", err)
		}
		filePath = spillPath
		body = nil
	}

	_, err := s.db.Exec(
		`INSERT INTO cache_entries (key, mtime, etag, content_type, size, file_path, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   mtime = excluded.mtime,
		   etag = excluded.etag,
		   content_type = excluded.content_type,
		   size = excluded.size,
		   file_path = excluded.file_path,
		   body = excluded.body`,
		key, entry.MTime.Unix(), entry.ETag, entry.ContentType, entry.Size, nullIfEmpty(filePath), body,
	)
	if err != nil {
		return gwerr.Internal("sqlitestore.Put", err)
	}

	return nil
}

// Delete implements cachestore.CacheStore.
func (s *Store) Delete(key string) error {
	var filePath sql.NullString
	row := s.db.QueryRow(`SELECT file_path FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&filePath); err == nil && filePath.Valid {
		_ = os.Remove(filePath.String)
	}

	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return gwerr.Internal("sqlitestore.Delete", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func objectFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
