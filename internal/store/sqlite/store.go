package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crisiswatch/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	final_output TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	finished_at INTEGER NULL
);

CREATE TABLE IF NOT EXISTS run_events (
	run_id TEXT NOT NULL,
	event_id INTEGER NOT NULL,
	agent TEXT NOT NULL,
	type TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY(run_id, event_id),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, event_id);

CREATE TABLE IF NOT EXISTS run_decisions (
	run_id TEXT PRIMARY KEY,
	monitor_flagged INTEGER NULL,
	monitor_engagement INTEGER NULL,
	severity_level TEXT NULL,
	severity_reasoning TEXT NULL,
	strategy_action TEXT NULL,
	strategy_tone TEXT NULL,
	strategy_escalate INTEGER NULL,
	recommendation_status TEXT NULL,
	recommendation_reason TEXT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS run_responses (
	run_id TEXT NOT NULL,
	tweet_id TEXT NOT NULL,
	user TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY(run_id, tweet_id, user),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	user TEXT NOT NULL,
	text TEXT NOT NULL,
	likes INTEGER NOT NULL DEFAULT 0,
	retweets INTEGER NOT NULL DEFAULT 0,
	wave INTEGER NOT NULL DEFAULT 1,
	posted_at INTEGER NOT NULL,
	received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_wave ON posts(wave, received_at);
`

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs(id, status, final_output, started_at, finished_at) VALUES(?, ?, ?, ?, NULL)`,
		run.ID, string(run.Status), run.FinalOutput, run.StartedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status domain.RunStatus, finalOutput string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, final_output = ?, finished_at = ? WHERE id = ?`,
		string(status), finalOutput, time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, final_output, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	var r domain.Run
	var status string
	var started int64
	var finished sql.NullInt64
	if err := row.Scan(&r.ID, &status, &r.FinalOutput, &started, &finished); err != nil {
		return domain.Run{}, fmt.Errorf("get run: %w", err)
	}
	r.Status = domain.RunStatus(status)
	r.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		r.FinishedAt = time.Unix(finished.Int64, 0).UTC()
	}
	return r, nil
}

func (s *Store) AppendEvent(ctx context.Context, runID string, ev domain.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO run_events(run_id, event_id, agent, type, message, created_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		runID, ev.ID, ev.Agent, string(ev.Type), ev.Message, ev.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, runID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT event_id, agent, type, message, created_at FROM run_events
		WHERE run_id = ? ORDER BY event_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var kind string
		var created int64
		if err := rows.Scan(&ev.ID, &ev.Agent, &kind, &ev.Message, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = domain.EventType(kind)
		ev.Timestamp = time.Unix(created, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) SaveDecisions(ctx context.Context, runID string, d domain.Decisions) error {
	var (
		monitorFlagged       sql.NullInt64
		monitorEngagement    sql.NullInt64
		severityLevel        sql.NullString
		severityReasoning    sql.NullString
		strategyAction       sql.NullString
		strategyTone         sql.NullString
		strategyEscalate     sql.NullInt64
		recommendationStatus sql.NullString
		recommendationReason sql.NullString
	)
	if d.Monitor != nil {
		monitorFlagged = sql.NullInt64{Int64: int64(d.Monitor.Flagged), Valid: true}
		monitorEngagement = sql.NullInt64{Int64: int64(d.Monitor.Engagement), Valid: true}
	}
	if d.Severity != nil {
		severityLevel = sql.NullString{String: string(d.Severity.Level), Valid: true}
		severityReasoning = sql.NullString{String: d.Severity.Reasoning, Valid: true}
	}
	if d.Strategy != nil {
		strategyAction = sql.NullString{String: string(d.Strategy.Action), Valid: true}
		strategyTone = sql.NullString{String: string(d.Strategy.Tone), Valid: true}
		escalate := int64(0)
		if d.Strategy.Escalate {
			escalate = 1
		}
		strategyEscalate = sql.NullInt64{Int64: escalate, Valid: true}
	}
	if d.Recommendation != nil {
		recommendationStatus = sql.NullString{String: string(d.Recommendation.Status), Valid: true}
		recommendationReason = sql.NullString{String: d.Recommendation.Reason, Valid: true}
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO run_decisions(
			run_id, monitor_flagged, monitor_engagement, severity_level, severity_reasoning,
			strategy_action, strategy_tone, strategy_escalate,
			recommendation_status, recommendation_reason, updated_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			monitor_flagged = excluded.monitor_flagged,
			monitor_engagement = excluded.monitor_engagement,
			severity_level = excluded.severity_level,
			severity_reasoning = excluded.severity_reasoning,
			strategy_action = excluded.strategy_action,
			strategy_tone = excluded.strategy_tone,
			strategy_escalate = excluded.strategy_escalate,
			recommendation_status = excluded.recommendation_status,
			recommendation_reason = excluded.recommendation_reason,
			updated_at = excluded.updated_at`,
		runID, monitorFlagged, monitorEngagement, severityLevel, severityReasoning,
		strategyAction, strategyTone, strategyEscalate,
		recommendationStatus, recommendationReason, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save decisions: %w", err)
	}
	return nil
}

func (s *Store) GetDecisions(ctx context.Context, runID string) (domain.Decisions, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT monitor_flagged, monitor_engagement, severity_level, severity_reasoning,
			strategy_action, strategy_tone, strategy_escalate,
			recommendation_status, recommendation_reason
		FROM run_decisions WHERE run_id = ?`,
		runID,
	)
	var (
		monitorFlagged       sql.NullInt64
		monitorEngagement    sql.NullInt64
		severityLevel        sql.NullString
		severityReasoning    sql.NullString
		strategyAction       sql.NullString
		strategyTone         sql.NullString
		strategyEscalate     sql.NullInt64
		recommendationStatus sql.NullString
		recommendationReason sql.NullString
	)
	if err := row.Scan(
		&monitorFlagged, &monitorEngagement, &severityLevel, &severityReasoning,
		&strategyAction, &strategyTone, &strategyEscalate,
		&recommendationStatus, &recommendationReason,
	); err != nil {
		return domain.Decisions{}, fmt.Errorf("get decisions: %w", err)
	}

	var d domain.Decisions
	if monitorFlagged.Valid {
		d.Monitor = &domain.MonitorSummary{
			Flagged:    int(monitorFlagged.Int64),
			Engagement: int(monitorEngagement.Int64),
		}
	}
	if severityLevel.Valid {
		d.Severity = &domain.SeverityVerdict{
			Level:     domain.SeverityLevel(severityLevel.String),
			Reasoning: severityReasoning.String,
		}
	}
	if strategyAction.Valid {
		d.Strategy = &domain.Strategy{
			Action:   domain.StrategyAction(strategyAction.String),
			Tone:     domain.StrategyTone(strategyTone.String),
			Escalate: strategyEscalate.Int64 == 1,
		}
	}
	if recommendationStatus.Valid {
		d.Recommendation = &domain.Recommendation{
			Status: domain.RecommendationStatus(recommendationStatus.String),
			Reason: recommendationReason.String,
		}
	}
	return d, nil
}

func (s *Store) SaveResponse(ctx context.Context, runID string, r domain.Response) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO run_responses(run_id, tweet_id, user, text, created_at)
		VALUES(?, ?, ?, ?, ?)`,
		runID, r.ID, r.User, r.Text, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

func (s *Store) ListResponses(ctx context.Context, runID string) ([]domain.Response, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT tweet_id, user, text FROM run_responses WHERE run_id = ? ORDER BY created_at ASC, tweet_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []domain.Response
	for rows.Next() {
		var r domain.Response
		if err := rows.Scan(&r.ID, &r.User, &r.Text); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SavePost(ctx context.Context, post domain.Post) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO posts(id, user, text, likes, retweets, wave, posted_at, received_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.User, post.Text, post.Likes, post.Retweets, post.Wave,
		post.Timestamp.Unix(), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save post: %w", err)
	}
	return nil
}

func (s *Store) ListPosts(ctx context.Context, wave int) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, user, text, likes, retweets, wave, posted_at FROM posts
		WHERE wave = ? ORDER BY received_at ASC, id ASC`,
		wave,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []domain.Post
	for rows.Next() {
		var p domain.Post
		var posted int64
		if err := rows.Scan(&p.ID, &p.User, &p.Text, &p.Likes, &p.Retweets, &p.Wave, &posted); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Timestamp = time.Unix(posted, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
