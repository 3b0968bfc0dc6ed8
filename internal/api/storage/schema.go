package storage

// Schema creates generation_jobs. The API service inserts queued rows; the
// worker claims them and writes tracker snapshots back.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS generation_jobs (
		request_key       TEXT PRIMARY KEY,
		request           JSONB NOT NULL,
		state             TEXT NOT NULL DEFAULT 'IDLE',
		job_id            TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT '',
		progress          DOUBLE PRECISION NOT NULL DEFAULT 0,
		audio_url         TEXT NOT NULL DEFAULT '',
		error_message     TEXT NOT NULL DEFAULT '',
		error_kind        TEXT NOT NULL DEFAULT '',
		job_error         TEXT NOT NULL DEFAULT '',
		retry_count       INTEGER NOT NULL DEFAULT 0,
		polls             INTEGER NOT NULL DEFAULT 0,
		worker_id         TEXT,
		last_heartbeat_at TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_generation_jobs_created
		ON generation_jobs (created_at DESC, request_key DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_generation_jobs_state_created
		ON generation_jobs (state, created_at DESC, request_key DESC)`,
}
