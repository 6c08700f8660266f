package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

// configKey is the badger key holding the configuration document.
var configKey = []byte("config:mirrors")

// Persister saves and loads the configuration document.
type Persister interface {
	// Load returns the saved configuration, or nil when nothing was saved yet.
	Load(ctx context.Context) (*domain.Configuration, error)
	Save(ctx context.Context, cfg *domain.Configuration) error
	Close() error
}

// BadgerPersister stores the configuration as a single JSON document in badger.
type BadgerPersister struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens (creating if needed) a badger database at path.
func OpenBadger(path string, logger *slog.Logger) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened successfully", "path", path)
	}
	return &BadgerPersister{db: db, logger: logger}, nil
}

// Load implements Persister.
func (p *BadgerPersister) Load(_ context.Context) (*domain.Configuration, error) {
	var cfg domain.Configuration
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(configKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration document: %w", err)
	}
	return &cfg, nil
}

// Save implements Persister.
func (p *BadgerPersister) Save(_ context.Context, cfg *domain.Configuration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(configKey, data)
	})
}

// Close gracefully closes the database connection.
func (p *BadgerPersister) Close() error {
	if p.logger != nil {
		p.logger.Info("Closing database connection")
	}
	return p.db.Close()
}

// MemoryPersister keeps the last saved document in memory.
// It round-trips through JSON so tests exercise the same encoding as badger.
type MemoryPersister struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Load implements Persister.
func (p *MemoryPersister) Load(_ context.Context) (*domain.Configuration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil, nil
	}
	var cfg domain.Configuration
	if err := json.Unmarshal(p.data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save implements Persister.
func (p *MemoryPersister) Save(_ context.Context, cfg *domain.Configuration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	p.data = data
	p.saves++
	return nil
}

// Close implements Persister.
func (p *MemoryPersister) Close() error { return nil }

// Saves returns how many times Save succeeded.
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

// FailWith makes subsequent saves return err. Pass nil to recover.
func (p *MemoryPersister) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}
