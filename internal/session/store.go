package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
	"github.com/pkg/errors"
)

// Store loads and saves a State through a storage backend. Saves are
// serialized so the poll goroutines and the command dispatcher never
// write the backend concurrently.
type Store struct {
	mu      sync.Mutex
	storage base.Storage
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStorage sets the storage backend.
func WithStorage(storage base.Storage) StoreOption {
	return func(st *Store) {
		st.storage = storage
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(st *Store) {
		st.logger = logger
	}
}

// NewStore creates a session store.
func NewStore(opts ...StoreOption) (*Store, error) {
	var st Store
	for _, opt := range opts {
		opt(&st)
	}

	if st.storage == nil {
		return nil, errors.New("requires storage")
	}

	if st.logger == nil {
		return nil, errors.New("requires slogger")
	}

	return &st, nil
}

// Load restores state from the backend. An absent document leaves the
// state fresh: default lookback cursors, no listeners.
func (st *Store) Load(ctx context.Context, state *State) error {
	data, err := st.storage.Read(ctx)
	if errors.Is(err, base.ErrNotExist) {
		st.logger.InfoContext(ctx, "No session document found, starting fresh")
		return nil
	}
	if err != nil {
		st.logger.ErrorContext(ctx, "Failed to read session document", slog.Any("error", utils.WrapError(err)))
		return err
	}
	if err := state.Restore(data); err != nil {
		st.logger.ErrorContext(ctx, "Failed to restore session document", slog.Any("error", utils.WrapError(err)))
		return err
	}
	return nil
}

// Save writes the current state to the backend. A write failure is
// surfaced to the caller but must not crash the process; the in-memory
// state stays authoritative for the running process.
func (st *Store) Save(ctx context.Context, state *State) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := state.Serialize()
	if err != nil {
		return err
	}
	if err := st.storage.Write(ctx, data); err != nil {
		st.logger.ErrorContext(ctx, "Failed to persist session document", slog.Any("error", utils.WrapError(err)))
		return err
	}
	return nil
}
