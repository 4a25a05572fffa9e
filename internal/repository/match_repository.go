package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
	"github.com/lib/pq"
)

type PgMatchRepository struct {
	q querier
}

const matchColumns = `
	id, mode, region, status,
	player1_id, player1_name, player1_rating, player1_team,
	player2_id, player2_name, player2_rating, player2_team,
	winner_id, winner_rating_after, loser_rating_after, rating_delta,
	started_at, ended_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	match := &models.Match{}
	var (
		winnerAfter sql.NullInt64
		loserAfter  sql.NullInt64
		delta       sql.NullInt64
	)
	p1, p2 := &match.Players[0], &match.Players[1]
	err := row.Scan(
		&match.ID,
		&match.Mode,
		&match.Region,
		&match.Status,
		&p1.PlayerID, &p1.DisplayName, &p1.RatingAtCreation, &p1.Team,
		&p2.PlayerID, &p2.DisplayName, &p2.RatingAtCreation, &p2.Team,
		&match.WinnerID,
		&winnerAfter,
		&loserAfter,
		&delta,
		&match.StartedAt,
		&match.EndedAt,
		&match.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if winnerAfter.Valid && loserAfter.Valid && delta.Valid {
		match.Result = &models.MatchResult{
			WinnerRatingAfter: int(winnerAfter.Int64),
			LoserRatingAfter:  int(loserAfter.Int64),
			RatingDelta:       int(delta.Int64),
		}
	}
	return match, nil
}

// Insert 새 매치 생성
func (r *PgMatchRepository) Insert(ctx context.Context, match *models.Match) error {
	query := `
		INSERT INTO matches (
			id, mode, region, status,
			player1_id, player1_name, player1_rating, player1_team,
			player2_id, player2_name, player2_rating, player2_team,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	p1, p2 := match.Players[0], match.Players[1]
	_, err := r.q.ExecContext(ctx, query,
		match.ID, match.Mode, match.Region, match.Status,
		p1.PlayerID, p1.DisplayName, p1.RatingAtCreation, p1.Team,
		p2.PlayerID, p2.DisplayName, p2.RatingAtCreation, p2.Team,
		match.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// FindByID ID로 매치 찾기
func (r *PgMatchRepository) FindByID(ctx context.Context, id string) (*models.Match, error) {
	return r.findOne(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
}

// FindByIDForUpdate 행 잠금 후 조회 (트랜잭션 안에서만 의미 있음)
func (r *PgMatchRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Match, error) {
	return r.findOne(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id)
}

func (r *PgMatchRepository) findOne(ctx context.Context, query, id string) (*models.Match, error) {
	match, err := scanMatch(r.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}
	return match, nil
}

// TransitionStatus status 조건부 상태 변경
func (r *PgMatchRepository) TransitionStatus(
	ctx context.Context,
	id string,
	from []models.MatchStatus,
	to models.MatchStatus,
	at time.Time,
) (bool, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	query := `
		UPDATE matches
		SET status = $1,
		    started_at = CASE WHEN $1 = 'active' THEN $2 ELSE started_at END,
		    ended_at = CASE WHEN $1 IN ('finished', 'cancelled') THEN $2 ELSE ended_at END
		WHERE id = $3 AND status = ANY($4)
	`
	res, err := r.q.ExecContext(ctx, query, string(to), at, id, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("failed to update match status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update match status: %w", err)
	}
	return n == 1, nil
}

// Finish 매치 결과 저장 (active 상태에서만)
func (r *PgMatchRepository) Finish(ctx context.Context, id, winnerID string, result models.MatchResult, at time.Time) (bool, error) {
	query := `
		UPDATE matches
		SET status = 'finished',
		    winner_id = $1,
		    winner_rating_after = $2,
		    loser_rating_after = $3,
		    rating_delta = $4,
		    ended_at = $5
		WHERE id = $6 AND status = 'active' AND winner_id IS NULL
	`
	res, err := r.q.ExecContext(ctx, query,
		winnerID,
		result.WinnerRatingAfter,
		result.LoserRatingAfter,
		result.RatingDelta,
		at,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update match result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update match result: %w", err)
	}
	return n == 1, nil
}

// List 최신순 매치 목록
func (r *PgMatchRepository) List(ctx context.Context, limit, offset int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	return r.queryMany(ctx, query, limit, offset)
}

// Count 전체 매치 수
func (r *PgMatchRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return total, nil
}

// ListByStatus 특정 상태의 매치 목록
func (r *PgMatchRepository) ListByStatus(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE status = $1 ORDER BY created_at DESC, id DESC`
	return r.queryMany(ctx, query, string(status))
}

// ListFinishedByPlayer 플레이어의 종료된 매치 (최신순)
func (r *PgMatchRepository) ListFinishedByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE (player1_id = $1 OR player2_id = $1) AND status = 'finished'
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.queryMany(ctx, query, playerID, limit)
}

func (r *PgMatchRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Match, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := []*models.Match{}
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	return matches, nil
}
