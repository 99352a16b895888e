package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"optionsBot/config"
	"optionsBot/internal/adapters/postgres"
	"optionsBot/internal/adapters/redisstore"
	"optionsBot/internal/adapters/sqlite"
	"optionsBot/internal/ports"
	"optionsBot/internal/position"
)

// Storage is the trade ledger and position snapshot store selected by config.
type Storage struct {
	Ledger  ports.TradeLedger
	Store   ports.PositionStore
	closers []io.Closer
}

// OpenStorage connects the configured ledger and store backends. A single
// SQLite database serves both when both select it.
func OpenStorage(ctx context.Context, cfg *config.Config, logger ports.Logger) (*Storage, error) {
	s := &Storage{}
	var repo *sqlite.Repository
	openSQLite := func() (*sqlite.Repository, error) {
		if repo != nil {
			return repo, nil
		}
		r, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: logger})
		if err != nil {
			return nil, err
		}
		repo = r
		s.closers = append(s.closers, r)
		return r, nil
	}

	switch cfg.LedgerBackend {
	case config.BackendSQLite:
		r, err := openSQLite()
		if err != nil {
			return nil, s.fail(fmt.Errorf("open sqlite ledger: %w", err))
		}
		s.Ledger = r
	case config.BackendPostgres:
		l, err := postgres.New(ctx, postgres.ClientConfig{DSN: cfg.PostgresDSN, MaxConns: 4}, logger)
		if err != nil {
			return nil, s.fail(fmt.Errorf("open postgres ledger: %w", err))
		}
		s.closers = append(s.closers, l)
		s.Ledger = l
	default:
		return nil, s.fail(fmt.Errorf("%w: unknown ledger backend %q", ports.ErrConfigurationError, cfg.LedgerBackend))
	}

	switch cfg.StoreBackend {
	case config.BackendSQLite:
		r, err := openSQLite()
		if err != nil {
			return nil, s.fail(fmt.Errorf("open sqlite store: %w", err))
		}
		s.Store = r
	case config.BackendRedis:
		st, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, s.fail(fmt.Errorf("open redis store: %w", err))
		}
		s.closers = append(s.closers, st)
		s.Store = st
	case config.BackendMemory:
		s.Store = position.NewMemoryStore()
	default:
		return nil, s.fail(fmt.Errorf("%w: unknown store backend %q", ports.ErrConfigurationError, cfg.StoreBackend))
	}
	return s, nil
}

func (s *Storage) fail(err error) error {
	return errors.Join(err, s.Close())
}

// Close closes every opened backend.
func (s *Storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
