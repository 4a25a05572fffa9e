package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
)

type PgQueueRepository struct {
	q querier
}

const queueColumns = `id, player_id, display_name, rating, mode, region, joined_at`

// Insert 매칭 큐에 추가. 이미 큐에 있는 플레이어면 ErrDuplicate
func (r *PgQueueRepository) Insert(ctx context.Context, entry *models.QueueEntry) error {
	query := `
		INSERT INTO matchmaking_queue (id, player_id, display_name, rating, mode, region, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		entry.ID,
		entry.PlayerID,
		entry.DisplayName,
		entry.Rating,
		entry.Mode,
		entry.Region,
		entry.JoinedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("player %s: %w", entry.PlayerID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue player: %w", err)
	}
	return nil
}

// DeleteByPlayer 큐에서 제거. 동시에 같은 행을 지우는 트랜잭션은 먼저 커밋한 쪽만 true
func (r *PgQueueRepository) DeleteByPlayer(ctx context.Context, playerID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM matchmaking_queue WHERE player_id = $1`, playerID)
	if err != nil {
		return false, fmt.Errorf("failed to remove from queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove from queue: %w", err)
	}
	return n > 0, nil
}

// DeleteEntry 스캔 시점의 항목만 제거. 나갔다가 다시 들어온 플레이어의 새 항목은 건드리지 않는다
func (r *PgQueueRepository) DeleteEntry(ctx context.Context, playerID, entryID string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM matchmaking_queue WHERE player_id = $1 AND id = $2`, playerID, entryID)
	if err != nil {
		return false, fmt.Errorf("failed to remove queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return n > 0, nil
}

// FindByPlayer 플레이어의 큐 항목
func (r *PgQueueRepository) FindByPlayer(ctx context.Context, playerID string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM matchmaking_queue WHERE player_id = $1`

	entry := models.QueueEntry{}
	err := r.q.QueryRowContext(ctx, query, playerID).Scan(
		&entry.ID,
		&entry.PlayerID,
		&entry.DisplayName,
		&entry.Rating,
		&entry.Mode,
		&entry.Region,
		&entry.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}
	return &entry, nil
}

// GroupByRegion 모드별 대기자를 region으로 묶는다 (FIFO 유지)
func (r *PgQueueRepository) GroupByRegion(ctx context.Context, mode string) (map[string][]models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM matchmaking_queue
		WHERE mode = $1
		ORDER BY region ASC, joined_at ASC, id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to get waiting players: %w", err)
	}
	defer rows.Close()

	groups := make(map[string][]models.QueueEntry)
	for rows.Next() {
		var entry models.QueueEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.PlayerID,
			&entry.DisplayName,
			&entry.Rating,
			&entry.Mode,
			&entry.Region,
			&entry.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue: %w", err)
		}
		groups[entry.Region] = append(groups[entry.Region], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	return groups, nil
}

// Stats (region, mode) 별 집계
func (r *PgQueueRepository) Stats(ctx context.Context) ([]models.QueueStats, error) {
	query := `
		SELECT region, mode, COUNT(*), AVG(rating)::float8, MIN(joined_at)
		FROM matchmaking_queue
		GROUP BY region, mode
		ORDER BY region, mode
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer rows.Close()

	stats := []models.QueueStats{}
	for rows.Next() {
		var s models.QueueStats
		if err := rows.Scan(&s.Region, &s.Mode, &s.Count, &s.AvgRating, &s.OldestJoinTime); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
