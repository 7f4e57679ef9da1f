// Package searchindex suspends and rebuilds the entity name search index
// around bulk writes, where keeping the GIN index live costs more than one
// rebuild at the end.
package searchindex

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/registry/internal/db"
)

// Advisory lock key for entity index maintenance. Arbitrary but must stay
// stable across releases so old and new workers contend on the same lock.
const maintenanceLockKey int64 = 7421101

// session is one pinned database session. pg_advisory_lock and its unlock
// only pair up when issued on the same session, so the maintainer must not
// let these statements spread across pooled connections.
type session interface {
	Exec(ctx context.Context, query string, args ...any) (db.CommandTag, error)
	Close() error
}

type Maintainer struct {
	pool    *db.Pool
	logger  zerolog.Logger
	acquire func(ctx context.Context) (session, error)
}

func NewMaintainer(pool *db.Pool, logger zerolog.Logger) *Maintainer {
	return &Maintainer{
		pool:   pool,
		logger: logger,
		acquire: func(ctx context.Context) (session, error) {
			return pool.Conn(ctx)
		},
	}
}

// WithSuspended drops the entity search index, runs fn, then rebuilds the
// index. Lock, drop, rebuild, and unlock all run on one pinned session: the
// advisory lock is session-scoped, and an unlock issued from any other
// pooled connection would release nothing while the holder idles in the
// pool. The rebuild runs even when fn fails; a missing index is worse than a
// failed batch.
func (m *Maintainer) WithSuspended(ctx context.Context, fn func(context.Context) error) error {
	if m == nil || m.acquire == nil {
		return fmt.Errorf("search index maintainer is not initialized")
	}

	conn, err := m.acquire(ctx)
	if err != nil {
		return fmt.Errorf("pin maintenance session: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, maintenanceLockKey); err != nil {
		return fmt.Errorf("acquire index maintenance lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, maintenanceLockKey); err != nil {
			m.logger.Warn().Err(err).Msg("release index maintenance lock failed")
		}
	}()

	if _, err := conn.Exec(ctx, dropIndexSQL()); err != nil {
		return fmt.Errorf("drop entity search index: %w", err)
	}
	m.logger.Info().Str("index", db.EntitySearchIndexName).Msg("entity search index suspended")

	runErr := fn(ctx)

	if _, err := conn.Exec(context.WithoutCancel(ctx), db.EntitySearchIndexDDL); err != nil {
		if runErr != nil {
			m.logger.Error().Err(err).Msg("index rebuild failed after batch error")
			return runErr
		}
		return fmt.Errorf("rebuild entity search index: %w", err)
	}
	m.logger.Info().Str("index", db.EntitySearchIndexName).Msg("entity search index rebuilt")

	return runErr
}

// Suspend drops the entity search index if it exists.
func (m *Maintainer) Suspend(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, dropIndexSQL()); err != nil {
		return fmt.Errorf("drop entity search index: %w", err)
	}
	return nil
}

// Rebuild recreates the entity search index if it is absent.
func (m *Maintainer) Rebuild(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, db.EntitySearchIndexDDL); err != nil {
		return fmt.Errorf("rebuild entity search index: %w", err)
	}
	return nil
}

func dropIndexSQL() string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS %s`, db.EntitySearchIndexName)
}
