package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/abduction.report/internal/monitoring"
	"github.com/banshee-data/abduction.report/internal/pose/l1landmarks"
	"github.com/banshee-data/abduction.report/internal/pose/l3geometry"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
)

var logf = monitoring.Component("storage")

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Store persists sessions.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and migrates it to the
// latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the connection for admin tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SessionSummary is a session without its records.
type SessionSummary struct {
	ID          string         `json:"id"`
	SubjectID   string         `json:"subject_id"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
	IntervalMs  float64        `json:"interval_ms"`
	DurationMs  float64        `json:"duration_ms"`
	Status      sampler.Status `json:"status"`
	RecordCount int            `json:"record_count"`
	ValidCount  int            `json:"valid_count"`
	Notes       string         `json:"notes,omitempty"`
}

// retryOnBusy retries fn while SQLite reports the database as locked.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func nullAngle(a l3geometry.Angle) sql.NullFloat64 {
	return sql.NullFloat64{Float64: a.Deg, Valid: a.Defined}
}

func angleFrom(n sql.NullFloat64) l3geometry.Angle {
	if !n.Valid {
		return l3geometry.Undefined()
	}
	return l3geometry.Degrees(n.Float64)
}

func nullJSON(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// SaveSession stores a finalized session and its records in one
// transaction.
func (s *Store) SaveSession(ctx context.Context, sess *sampler.Session) error {
	if sess == nil {
		return errors.New("nil session")
	}
	return retryOnBusy(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (
				session_id, subject_id, started_at_ns, ended_at_ns,
				interval_ms, duration_ms, status, record_count, valid_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.SubjectID, sess.StartedAt.UnixNano(), sess.EndedAt.UnixNano(),
			sess.IntervalMs, sess.DurationMs, string(sess.Status), len(sess.Records), sess.ValidCount(),
		); err != nil {
			return fmt.Errorf("insert session %s: %w", sess.ID, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO session_records (
				session_id, record_index, offset_ms, captured_at_ns, source_ts_ms,
				valid, quality, avg_angle, left_angle, right_angle,
				midline_json, landmarks_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range sess.Records {
			midline, err := nullJSON(r.Midline, r.Midline != nil)
			if err != nil {
				return err
			}
			landmarks, err := nullJSON(r.Landmarks, r.Landmarks != nil)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				sess.ID, r.Index, r.OffsetMs, r.CapturedAt.UnixNano(), r.SourceTimestampMs,
				r.Valid, r.Quality,
				nullAngle(r.Angles.Average), nullAngle(r.Angles.Left), nullAngle(r.Angles.Right),
				midline, landmarks,
			); err != nil {
				return fmt.Errorf("insert record %d: %w", r.Index, err)
			}
		}
		return tx.Commit()
	})
}

const summaryColumns = `session_id, subject_id, started_at_ns, ended_at_ns,
	interval_ms, duration_ms, status, record_count, valid_count, notes`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (SessionSummary, error) {
	var (
		sum            SessionSummary
		started, ended int64
		status         string
	)
	err := row.Scan(&sum.ID, &sum.SubjectID, &started, &ended,
		&sum.IntervalMs, &sum.DurationMs, &status, &sum.RecordCount, &sum.ValidCount, &sum.Notes)
	if err != nil {
		return sum, err
	}
	sum.StartedAt = time.Unix(0, started).UTC()
	sum.EndedAt = time.Unix(0, ended).UTC()
	sum.Status = sampler.Status(status)
	return sum, nil
}

// GetSummary returns the session row without records.
func (s *Store) GetSummary(ctx context.Context, id string) (SessionSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM sessions WHERE session_id = ?`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sum, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sum, err
}

// GetSession loads a session with all records in index order.
func (s *Store) GetSession(ctx context.Context, id string) (*sampler.Session, error) {
	sum, err := s.GetSummary(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := &sampler.Session{
		ID:         sum.ID,
		SubjectID:  sum.SubjectID,
		StartedAt:  sum.StartedAt,
		EndedAt:    sum.EndedAt,
		IntervalMs: sum.IntervalMs,
		DurationMs: sum.DurationMs,
		Status:     sum.Status,
		Records:    make([]sampler.SampleRecord, 0, sum.RecordCount),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_index, offset_ms, captured_at_ns, source_ts_ms, valid, quality,
		       avg_angle, left_angle, right_angle, midline_json, landmarks_json
		FROM session_records WHERE session_id = ? ORDER BY record_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r                  sampler.SampleRecord
			captured           int64
			avg, left, right   sql.NullFloat64
			midline, landmarks sql.NullString
		)
		if err := rows.Scan(&r.Index, &r.OffsetMs, &captured, &r.SourceTimestampMs, &r.Valid, &r.Quality,
			&avg, &left, &right, &midline, &landmarks); err != nil {
			return nil, err
		}
		r.SubjectID = sess.SubjectID
		r.CapturedAt = time.Unix(0, captured).UTC()
		r.Angles = l3geometry.AngleReading{Left: angleFrom(left), Right: angleFrom(right), Average: angleFrom(avg)}
		if midline.Valid {
			var m l3geometry.Midline
			if err := json.Unmarshal([]byte(midline.String), &m); err != nil {
				return nil, fmt.Errorf("record %d midline: %w", r.Index, err)
			}
			r.Midline = &m
		}
		if landmarks.Valid {
			var sk l1landmarks.Skeleton
			if err := json.Unmarshal([]byte(landmarks.String), &sk); err != nil {
				return nil, fmt.Errorf("record %d landmarks: %w", r.Index, err)
			}
			r.Landmarks = &sk
		}
		sess.Records = append(sess.Records, r)
	}
	return sess, rows.Err()
}

// ListSessions returns the most recent sessions first. An empty subject
// lists every subject; limit <= 0 means no limit.
func (s *Store) ListSessions(ctx context.Context, subject string, limit int) ([]SessionSummary, error) {
	q := `SELECT ` + summaryColumns + ` FROM sessions`
	var args []any
	if subject != "" {
		q += ` WHERE subject_id = ?`
		args = append(args, subject)
	}
	q += ` ORDER BY started_at_ns DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SetNotes attaches free-text clinician notes to a session.
func (s *Store) SetNotes(ctx context.Context, id, notes string) error {
	return s.mustAffect(ctx, id, `UPDATE sessions SET notes = ? WHERE session_id = ?`, notes, id)
}

// DeleteSession removes a session and its records.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.mustAffect(ctx, id, `DELETE FROM sessions WHERE session_id = ?`, id)
}

func (s *Store) mustAffect(ctx context.Context, id, query string, args ...any) error {
	return retryOnBusy(func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Sink returns a sampler.FinalizeFunc that saves every finalized session.
// Failures are logged; the session stays available from the sampler.
func (s *Store) Sink() sampler.FinalizeFunc {
	return func(sess *sampler.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SaveSession(ctx, sess); err != nil {
			logf("failed to save session %s: %v", sess.ID, err)
		}
	}
}
