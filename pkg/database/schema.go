package database

// player_id 유니크 인덱스가 플레이어당 큐 항목 1개를 보장한다
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		region        TEXT NOT NULL,
		rating        INTEGER NOT NULL DEFAULT 1200,
		status        TEXT NOT NULL DEFAULT 'idle',
		match_history TEXT[] NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS matchmaking_queue (
		id           TEXT PRIMARY KEY,
		player_id    TEXT NOT NULL REFERENCES users(id),
		display_name TEXT NOT NULL,
		rating       INTEGER NOT NULL,
		mode         TEXT NOT NULL,
		region       TEXT NOT NULL,
		joined_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_matchmaking_queue_player ON matchmaking_queue (player_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matchmaking_queue_bucket ON matchmaking_queue (mode, region, joined_at)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id                  TEXT PRIMARY KEY,
		mode                TEXT NOT NULL,
		region              TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		player1_id          TEXT NOT NULL,
		player1_name        TEXT NOT NULL,
		player1_rating      INTEGER NOT NULL,
		player1_team        TEXT NOT NULL DEFAULT '',
		player2_id          TEXT NOT NULL,
		player2_name        TEXT NOT NULL,
		player2_rating      INTEGER NOT NULL,
		player2_team        TEXT NOT NULL DEFAULT '',
		winner_id           TEXT,
		winner_rating_after INTEGER,
		loser_rating_after  INTEGER,
		rating_delta        INTEGER,
		started_at          TIMESTAMPTZ,
		ended_at            TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches (status)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_player1 ON matches (player1_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_player2 ON matches (player2_id, created_at DESC)`,
}
