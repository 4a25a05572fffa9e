package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Jerry-Khobby/matchmaking-system/pkg/database"
	"github.com/lib/pq"
)

// querier *sql.DB 와 *sql.Tx 공통 메서드
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore PostgreSQL 기반 Store
type PostgresStore struct {
	db *database.DB
	// 트랜잭션 밖의 오토커밋 저장소
	repos pgRepositories
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{
		db:    db,
		repos: newPGRepositories(db),
	}
}

type pgRepositories struct {
	users   *PgUserRepository
	queue   *PgQueueRepository
	matches *PgMatchRepository
}

func newPGRepositories(q querier) pgRepositories {
	return pgRepositories{
		users:   &PgUserRepository{q: q},
		queue:   &PgQueueRepository{q: q},
		matches: &PgMatchRepository{q: q},
	}
}

func (r pgRepositories) Users() UserDirectory     { return r.users }
func (r pgRepositories) Queue() QueueRepository   { return r.queue }
func (r pgRepositories) Matches() MatchRepository { return r.matches }

func (s *PostgresStore) Users() UserDirectory     { return s.repos.users }
func (s *PostgresStore) Queue() QueueRepository   { return s.repos.queue }
func (s *PostgresStore) Matches() MatchRepository { return s.repos.matches }

// RunAtomic 하나의 sql.Tx 안에서 fn 실행. 에러/panic 시 롤백
func (s *PostgresStore) RunAtomic(ctx context.Context, fn func(tx Repositories) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) && err == nil {
			err = fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
	}()

	if err = fn(newPGRepositories(sqlTx)); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation unique_violation (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
