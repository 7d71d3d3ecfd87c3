package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teledrive-vn/teledrive/internal/pkg/logger"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var sessionBucket = []byte("session")

var sessionKey = []byte("data")

const (
	snapshotAttempts = 3
	snapshotBackoff  = time.Second
)

// SessionStore holds the canonical session database. The MTProto auth
// state lives in a single Bolt bucket; per-operation clients read from
// scratch snapshots so the canonical file is never locked by a client.
type SessionStore struct {
	path   string
	logger *logger.Logger
}

// NewSessionStore creates the store, ensuring the parent directory and
// the database file exist.
func NewSessionStore(path string, log *logger.Logger) (*SessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ensure session bucket: %w", err)
	}

	return &SessionStore{path: path, logger: log}, nil
}

// Path returns the canonical session file path
func (s *SessionStore) Path() string {
	return s.path
}

// Snapshot copies the session database to dst through a Bolt read
// transaction, which is the database's online backup path and safe
// against concurrent writers. Retries on failure; when every attempt
// fails it returns fallback=true and the caller may use the canonical
// path at the cost of possible lock contention.
func (s *SessionStore) Snapshot(dst string) (fallback bool, err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return true, fmt.Errorf("create scratch dir: %w", err)
	}

	for attempt := 1; attempt <= snapshotAttempts; attempt++ {
		err = s.snapshotOnce(dst)
		if err == nil {
			return false, nil
		}
		s.logger.Warn("session snapshot failed",
			zap.Int("attempt", attempt),
			zap.String("dst", dst),
			zap.Error(err),
		)
		if attempt < snapshotAttempts {
			time.Sleep(snapshotBackoff)
		}
	}

	s.logger.Warn("all session snapshot attempts failed, falling back to canonical session file",
		zap.String("path", s.path),
		zap.Error(err),
	)
	return true, err
}

func (s *SessionStore) snapshotOnce(dst string) error {
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{
		ReadOnly: true,
		Timeout:  time.Second,
	})
	if err != nil {
		return fmt.Errorf("open canonical session db: %w", err)
	}
	defer db.Close()

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	err = db.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return f.Sync()
}

// StoreSessionData writes raw session bytes into the canonical database.
// Used by the session-acquisition collaborator after a login.
func (s *SessionStore) StoreSessionData(data []byte) error {
	storage := NewBoltSessionStorage(s.path)
	return storage.StoreSession(context.Background(), data)
}

// BoltSessionStorage adapts a Bolt database file to the session storage
// interface the MTProto client expects.
type BoltSessionStorage struct {
	path string
}

// NewBoltSessionStorage creates storage over the given Bolt file
func NewBoltSessionStorage(path string) *BoltSessionStorage {
	return &BoltSessionStorage{path: path}
}

// LoadSession returns the stored session bytes, or nil when none exist
func (b *BoltSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	db, err := bbolt.Open(b.path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	defer db.Close()

	var data []byte
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(sessionKey); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// StoreSession persists session bytes
func (b *BoltSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	db, err := bbolt.Open(b.path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("open session db: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		return bucket.Put(sessionKey, data)
	})
}
