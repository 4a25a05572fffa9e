package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/lib/pq"
)

type PgUserRepository struct {
	q querier
}

const userColumns = `id, username, region, rating, status, match_history, created_at, updated_at`

// Create 새 사용자 생성
func (r *PgUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, region, rating, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.Region,
		user.Rating,
		user.Status,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// Get ID로 사용자 찾기
func (r *PgUserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByUsername 사용자명으로 찾기
func (r *PgUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, username))
}

func (r *PgUserRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var history pq.StringArray
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Region,
		&user.Rating,
		&user.Status,
		&history,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.MatchHistory = []string(history)
	return user, nil
}

// UpdateRating 레이팅 갱신
func (r *PgUserRepository) UpdateRating(ctx context.Context, id string, rating int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET rating = $1, updated_at = NOW() WHERE id = $2`,
		rating, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return requireAffected(res)
}

// UpdateStatus 상태 갱신
func (r *PgUserRepository) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return requireAffected(res)
}

// AppendMatchHistory 매치 기록 추가
func (r *PgUserRepository) AppendMatchHistory(ctx context.Context, id, matchID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET match_history = array_append(match_history, $1), updated_at = NOW() WHERE id = $2`,
		matchID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to append match history: %w", err)
	}
	return requireAffected(res)
}
