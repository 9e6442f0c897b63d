package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/clinaudit/internal/domain"
)

type Store struct {
	pool   *pgxpool.Pool
	events *EventRepo
	outbox *OutboxRepo
	users  *UserRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:   pool,
		events: NewEventRepo(pool),
		outbox: NewOutboxRepo(pool),
		users:  NewUserRepo(pool),
	}, nil
}

// Migrate creates the audit tables, indexes and the append-only trigger if
// they do not exist yet. The users table belongs to the identity service and
// is not touched.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres.Store.Migrate: statement %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Events() domain.AuditEventRepository  { return s.events }
func (s *Store) Outbox() domain.AuditOutboxRepository { return s.outbox }
func (s *Store) Users() domain.UserRepository         { return s.users }
