package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	plerrors "github.com/parleyhq/parley/pkg/errors"
	"github.com/parleyhq/parley/pkg/logging"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresStore creates a new meeting store.
func NewPostgresStore(pool *pgxpool.Pool, logger logging.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger.With(logging.F("component", "meeting_store")),
	}
}

const meetingColumns = `
	id, name, user_id, agent_id, status,
	started_at, ended_at, transcript_url, recording_url, summary,
	created_at, updated_at
`

// GetMeeting retrieves a meeting by ID.
func (s *PostgresStore) GetMeeting(ctx context.Context, id string) (*Meeting, error) {
	query := `SELECT` + meetingColumns + `FROM meetings WHERE id = $1`
	return s.scanMeeting(s.pool.QueryRow(ctx, query, id))
}

// GetAgent retrieves an agent by ID.
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, user_id, name, instruction, created_at, updated_at
		FROM agents
		WHERE id = $1
	`
	a := &Agent{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.Name, &a.Instruction, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, plerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// StartMeeting flips an upcoming meeting to active in a single conditional
// update. The status predicate is the idempotency guard: a redelivered
// session_started event matches zero rows.
func (s *PostgresStore) StartMeeting(ctx context.Context, id string, now time.Time) (*Meeting, error) {
	query := `
		UPDATE meetings
		SET status = $3, started_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING` + meetingColumns

	m, err := s.scanMeeting(s.pool.QueryRow(ctx, query, id, now, StatusActive, StatusUpcoming))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Meeting started",
		logging.F("meeting_id", m.ID),
		logging.F("agent_id", m.AgentID))

	return m, nil
}

// FinishMeeting flips an active meeting to processing. Zero matched rows
// means duplicate or out-of-order delivery and is reported as (false, nil).
func (s *PostgresStore) FinishMeeting(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE meetings
		SET status = $3, ended_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	tag, err := s.pool.Exec(ctx, query, id, now, StatusProcessing, StatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to finish meeting: %w", err)
	}

	changed := tag.RowsAffected() > 0
	if changed {
		s.logger.Info("Meeting moved to processing", logging.F("meeting_id", id))
	}
	return changed, nil
}

// SetTranscriptURL stores the transcript location and returns the updated row.
func (s *PostgresStore) SetTranscriptURL(ctx context.Context, id, url string) (*Meeting, error) {
	query := `
		UPDATE meetings
		SET transcript_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING` + meetingColumns

	return s.scanMeeting(s.pool.QueryRow(ctx, query, id, url))
}

// SetRecordingURL stores the recording location. Unconditional by design.
func (s *PostgresStore) SetRecordingURL(ctx context.Context, id, url string) error {
	query := `
		UPDATE meetings
		SET recording_url = $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, url); err != nil {
		return fmt.Errorf("failed to set recording url: %w", err)
	}
	return nil
}

// GetCompletedMeeting retrieves a meeting only when it has finished
// post-processing.
func (s *PostgresStore) GetCompletedMeeting(ctx context.Context, id string) (*Meeting, error) {
	query := `SELECT` + meetingColumns + `FROM meetings WHERE id = $1 AND status = $2`
	return s.scanMeeting(s.pool.QueryRow(ctx, query, id, StatusCompleted))
}

// CompleteMeeting stores the summary and flips processing to completed.
func (s *PostgresStore) CompleteMeeting(ctx context.Context, id, summary string) (bool, error) {
	query := `
		UPDATE meetings
		SET status = $3, summary = $2, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	tag, err := s.pool.Exec(ctx, query, id, summary, StatusCompleted, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to complete meeting: %w", err)
	}

	changed := tag.RowsAffected() > 0
	if changed {
		s.logger.Info("Meeting completed", logging.F("meeting_id", id))
	}
	return changed, nil
}

func (s *PostgresStore) scanMeeting(row pgx.Row) (*Meeting, error) {
	m := &Meeting{}
	err := row.Scan(
		&m.ID, &m.Name, &m.UserID, &m.AgentID, &m.Status,
		&m.StartedAt, &m.EndedAt, &m.TranscriptURL, &m.RecordingURL, &m.Summary,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, plerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan meeting: %w", err)
	}
	return m, nil
}
