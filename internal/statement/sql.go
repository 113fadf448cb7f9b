package statement

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

type SQLOption func(*SQL)

func WithSQLLogger(logger *zap.Logger) SQLOption {
	return func(s *SQL) {
		s.logger = logger
	}
}

// SQL executes statements over a live database connection. Used when
// database.connection_string is configured and the target speaks the
// Postgres wire protocol.
type SQL struct {
	logger *zap.Logger
	db     *sql.DB
}

func NewSQL(ctx context.Context, connectionString string, opts ...SQLOption) (*SQL, error) {
	s := &SQL{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	return s, nil
}

func (s *SQL) Execute(ctx context.Context, stmt string) error {
	s.logger.Debug("executing statement", zap.String("statement", stmt))
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *SQL) Close() error {
	return s.db.Close()
}
