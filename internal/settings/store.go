// Package settings persists the flat string-keyed scalar preferences.
// Readers tolerate missing keys by falling back to the supplied default.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/atcscribe/atcscribe-core/internal/config"
)

// Documented setting keys. Anything else is caller-defined.
const (
	KeyDarkMode    = "dark_mode"
	KeyLastChannel = "last_channel"
)

// Store is a BadgerDB-backed key/value settings store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the settings store. InMemory mode runs the real
// badger engine without disk persistence, used by tests.
func Open(cfg config.SettingsConfig, log *slog.Logger) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("settings dir is required for on-disk mode")
	}
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	opts = opts.WithLogger(badgerLogger{log: log})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// String returns the value for key, or def when the key is absent.
func (s *Store) String(key, def string) (string, error) {
	var val string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		val = string(raw)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return val, nil
}

// SetString stores value under key.
func (s *Store) SetString(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Bool returns the value for key, or def when the key is absent or not a
// parseable boolean.
func (s *Store) Bool(key string, def bool) (bool, error) {
	raw, err := s.String(key, strconv.FormatBool(def))
	if err != nil {
		return def, err
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return parsed, nil
}

// SetBool stores value under key.
func (s *Store) SetBool(key string, value bool) error {
	return s.SetString(key, strconv.FormatBool(value))
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// badgerLogger routes badger output to slog, dropping info/debug noise.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error(fmt.Sprintf("badger: "+f, v...)) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (l badgerLogger) Infof(string, ...interface{})        {}
func (l badgerLogger) Debugf(string, ...interface{})       {}
