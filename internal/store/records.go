package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-pipeline-go/internal/types"
)

const recordColumns = `sid, call_status, recording_url, call_from, call_to, direction, duration,
	start_time, end_time, transcript, transcript_status, summary, threat, priority,
	human_intervention, satisfaction, frustration, nuisance, repeated_complaint,
	next_best_action, open_questions, pii_details, completed, created_at, updated_at, completed_at`

// Insert adds a new record for meta. Existing rows are never modified; the
// return value reports whether a row was created.
func (s *Store) Insert(ctx context.Context, meta types.CallMeta) (bool, error) {
	if strings.TrimSpace(meta.SID) == "" {
		return false, errors.New("insert record: sid is required")
	}
	now := s.timestamp()
	res, err := s.exec(ctx, `INSERT INTO call_records
		(sid, call_status, recording_url, call_from, call_to, direction, duration, start_time, end_time,
		 transcript_status, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(sid) DO NOTHING`,
		meta.SID, meta.Status, nullString(meta.RecordingURL), meta.From, meta.To, meta.Direction,
		meta.Duration, meta.StartTime, meta.EndTime, string(types.TranscriptPending), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", meta.SID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", meta.SID, err)
	}
	return n > 0, nil
}

// InsertMany inserts every call in order and returns how many were new.
func (s *Store) InsertMany(ctx context.Context, metas []types.CallMeta) (int, error) {
	inserted := 0
	for _, meta := range metas {
		ok, err := s.Insert(ctx, meta)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// ListIncomplete returns records with completed = 0 in insertion order. A
// non-empty statusFilter restricts results to that provider call status.
func (s *Store) ListIncomplete(ctx context.Context, statusFilter string) ([]types.Record, error) {
	query := "SELECT " + recordColumns + " FROM call_records WHERE completed = 0"
	var args []any
	if statusFilter != "" {
		query += " AND call_status = ?"
		args = append(args, statusFilter)
	}
	query += " ORDER BY rowid"
	return s.queryRecords(ctx, query, args...)
}

// ListCompleted returns completed records, newest first. limit <= 0 means all.
func (s *Store) ListCompleted(ctx context.Context, limit int) ([]types.Record, error) {
	query := "SELECT " + recordColumns + " FROM call_records WHERE completed = 1 ORDER BY completed_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryRecords(ctx, query)
}

// List returns every record in insertion order. limit <= 0 means all.
func (s *Store) List(ctx context.Context, limit int) ([]types.Record, error) {
	query := "SELECT " + recordColumns + " FROM call_records ORDER BY rowid"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryRecords(ctx, query)
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, sid string) (*types.Record, error) {
	records, err := s.queryRecords(ctx, "SELECT "+recordColumns+" FROM call_records WHERE sid = ?", sid)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// SaveTranscript checkpoints a transcript for an incomplete record.
func (s *Store) SaveTranscript(ctx context.Context, sid, transcript string, status types.TranscriptStatus) error {
	res, err := s.exec(ctx, `UPDATE call_records
		SET transcript = ?, transcript_status = ?, updated_at = ?
		WHERE sid = ? AND completed = 0`,
		transcript, string(status), s.timestamp(), sid,
	)
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", sid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// Complete writes the transcript, every analysis column and completed = 1 in
// a single statement. It never touches a record that is already complete.
func (s *Store) Complete(ctx context.Context, c types.Completion) error {
	cols, err := c.Analysis.Columns()
	if err != nil {
		return fmt.Errorf("complete %s: %w", c.SID, err)
	}
	now := s.timestamp()
	res, err := s.exec(ctx, `UPDATE call_records SET
		call_status = CASE WHEN ? = '' THEN call_status ELSE ? END,
		transcript = ?, transcript_status = ?,
		summary = ?, threat = ?, priority = ?, human_intervention = ?, satisfaction = ?,
		frustration = ?, nuisance = ?, repeated_complaint = ?, next_best_action = ?,
		open_questions = ?, pii_details = ?,
		completed = 1, completed_at = ?, updated_at = ?
		WHERE sid = ? AND completed = 0`,
		c.CallStatus, c.CallStatus,
		c.Transcript, string(types.TranscriptCompleted),
		cols.Summary, cols.Threat, cols.Priority, cols.HumanIntervention, cols.Satisfaction,
		cols.Frustration, cols.Nuisance, cols.RepeatedComplaint, cols.NextBestAction,
		cols.OpenQuestions, cols.PIIDetails,
		now, now,
		c.SID,
	)
	if err != nil {
		return fmt.Errorf("complete %s: %w", c.SID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete %s: %w", c.SID, err)
	}
	if n == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// Stats summarizes record counts.
type Stats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	WithTranscript int `json:"with_transcript"`
}

// Stats returns record counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(1),
		COALESCE(SUM(CASE WHEN completed = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN transcript IS NOT NULL AND transcript <> '' THEN 1 ELSE 0 END), 0)
		FROM call_records`)
	if err := row.Scan(&st.Total, &st.Completed, &st.WithTranscript); err != nil {
		return Stats{}, fmt.Errorf("record stats: %w", err)
	}
	st.Pending = st.Total - st.Completed
	return st, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (types.Record, error) {
	var (
		rec                                                   types.Record
		recordingURL, transcript, summary, threat, priority   sql.NullString
		intervention, satisfaction, frustration, nuisance     sql.NullString
		repeated, nextAction, openQuestions, pii, completedAt sql.NullString
		transcriptStatus, createdAt, updatedAt                string
		completed                                             int
	)
	err := rows.Scan(
		&rec.SID, &rec.Status, &recordingURL, &rec.From, &rec.To, &rec.Direction, &rec.Duration,
		&rec.StartTime, &rec.EndTime, &transcript, &transcriptStatus, &summary, &threat, &priority,
		&intervention, &satisfaction, &frustration, &nuisance, &repeated,
		&nextAction, &openQuestions, &pii, &completed, &createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return types.Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.RecordingURL = recordingURL.String
	rec.Transcript = transcript.String
	rec.TranscriptStatus = types.TranscriptStatus(transcriptStatus)
	rec.Summary = summary.String
	rec.Threat = threat.String
	rec.Priority = priority.String
	rec.HumanIntervention = intervention.String
	rec.Satisfaction = satisfaction.String
	rec.Frustration = frustration.String
	rec.Nuisance = nuisance.String
	rec.RepeatedComplaint = repeated.String
	rec.NextBestAction = nextAction.String
	rec.OpenQuestions = openQuestions.String
	rec.PIIDetails = pii.String
	rec.Completed = completed == 1
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid && completedAt.String != "" {
		t := parseTime(completedAt.String)
		rec.CompletedAt = &t
	}
	return rec, nil
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
