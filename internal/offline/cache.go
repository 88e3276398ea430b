package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"pickline/internal/logging"
	"pickline/internal/picking"
)

const (
	cacheKeyPrefix = "session/"

	cacheOpenAttempts = 20
	cacheOpenBackoff  = 50 * time.Millisecond
)

// Cache keeps the last session view the device fetched so the picker can keep
// working while offline. A directory-backed cache opens badger for each
// operation and closes it straight after, so the drain loop and one-shot
// device commands can share the directory; badger allows one holder at a time.
type Cache struct {
	opts badger.Options
	mem  *badger.DB
}

// OpenCache prepares the badger directory at dir. The database itself is
// opened per operation.
func OpenCache(dir string, logger *slog.Logger) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("open session cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open session cache: %w", err)
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger: logging.NewComponentLogger(logger, "session-cache")}).
		WithNumVersionsToKeep(1).
		WithValueLogFileSize(16 << 20)
	return &Cache{opts: opts}, nil
}

// OpenMemoryCache returns a cache that lives only for the process.
func OpenMemoryCache() (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open session cache: %w", err)
	}
	return &Cache{mem: db}, nil
}

// Close releases the in-memory handle. Directory caches hold nothing between
// operations.
func (c *Cache) Close() error {
	if c == nil || c.mem == nil {
		return nil
	}
	return c.mem.Close()
}

// with runs fn against an open database. Directory caches wait for another
// holder of the badger lock to finish before giving up.
func (c *Cache) with(fn func(db *badger.DB) error) error {
	if c.mem != nil {
		return fn(c.mem)
	}
	var (
		db  *badger.DB
		err error
	)
	for attempt := 0; attempt < cacheOpenAttempts; attempt++ {
		db, err = badger.Open(c.opts)
		if err == nil || !isDirectoryLocked(err) {
			break
		}
		time.Sleep(cacheOpenBackoff)
	}
	if err != nil {
		return fmt.Errorf("open session cache: %w", err)
	}
	fnErr := fn(db)
	if err := db.Close(); err != nil && fnErr == nil {
		return fmt.Errorf("close session cache: %w", err)
	}
	return fnErr
}

// badger reports a held directory lock only through its message.
func isDirectoryLocked(err error) bool {
	return strings.Contains(err.Error(), "Cannot acquire directory lock")
}

// Put stores the view under its picker.
func (c *Cache) Put(pickerID string, view picking.SessionView) error {
	key, err := cacheKey(pickerID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal session view: %w", err)
	}
	return c.with(func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, payload)
		})
	})
}

// Get returns the cached view, or nil when the picker has none.
func (c *Cache) Get(pickerID string) (*picking.SessionView, error) {
	key, err := cacheKey(pickerID)
	if err != nil {
		return nil, err
	}
	var view *picking.SessionView
	err = c.with(func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				var decoded picking.SessionView
				if err := json.Unmarshal(val, &decoded); err != nil {
					return fmt.Errorf("decode session view: %w", err)
				}
				view = &decoded
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read session cache: %w", err)
	}
	return view, nil
}

// Wipe drops every cached view.
func (c *Cache) Wipe() error {
	if err := c.with(func(db *badger.DB) error { return db.DropAll() }); err != nil {
		return fmt.Errorf("wipe session cache: %w", err)
	}
	return nil
}

func cacheKey(pickerID string) ([]byte, error) {
	pickerID = strings.TrimSpace(pickerID)
	if pickerID == "" {
		return nil, errors.New("session cache: picker id is required")
	}
	return []byte(cacheKeyPrefix + pickerID), nil
}

// badgerLogger routes badger's printf-style output into slog. Info and debug
// chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Delete forgets the picker's cached view.
func (c *Cache) Delete(pickerID string) error {
	key, err := cacheKey(pickerID)
	if err != nil {
		return err
	}
	return c.with(func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
	})
}
