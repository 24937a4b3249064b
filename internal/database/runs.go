package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRunNotFound   = errors.New("run not found")
	ErrInvalidRating = errors.New("rating must be useful or not_useful")
)

const runColumns = `r.id, r.mode, r.labels, r.author, r.provider, r.model, r.context,
	r.output_markdown, r.raw_output, r.status, r.error, r.duration_ms, r.created_at, f.rating`

// InsertRun stores a run and returns its ID. An empty ID is assigned a new UUID.
func (db *DB) InsertRun(r *Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusOK
	}
	labels := r.Labels
	if labels == nil {
		labels = []string{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encoding labels: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO insight_runs (id, mode, labels, author, provider, model, context, output_markdown, raw_output, status, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, string(labelsJSON), r.Author, r.Provider, r.Model, r.Context,
		r.Markdown, r.RawOutput, r.Status, r.Error, r.DurationMS,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	db.logger.Debug("stored insight run", zap.String("id", r.ID), zap.String("mode", r.Mode), zap.String("status", r.Status))
	return r.ID, nil
}

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT `+runColumns+` FROM insight_runs r
		 LEFT JOIN run_feedback f ON f.run_id = r.id
		 WHERE r.id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first. An empty mode lists all.
func (db *DB) ListRuns(mode string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM insight_runs r LEFT JOIN run_feedback f ON f.run_id = r.id`
	var args []any
	if mode != "" {
		query += ` WHERE r.mode = ?`
		args = append(args, mode)
	}
	query += ` ORDER BY r.created_at DESC, r.rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its feedback.
func (db *DB) DeleteRun(id string) error {
	res, err := db.conn.Exec(`DELETE FROM insight_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RateRun inserts or replaces the feedback for a run.
func (db *DB) RateRun(id, rating, note string) error {
	if rating != RatingUseful && rating != RatingNotUseful {
		return ErrInvalidRating
	}
	var exists int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM insight_runs WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrRunNotFound
	}

	var notePtr *string
	if strings.TrimSpace(note) != "" {
		notePtr = &note
	}
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO run_feedback (run_id, rating, note) VALUES (?, ?, ?)`,
		id, rating, notePtr,
	)
	return err
}

// GetRunFeedback returns the feedback for a run, or nil if unrated.
func (db *DB) GetRunFeedback(id string) (*RunFeedback, error) {
	row := db.conn.QueryRow(`SELECT run_id, rating, note, created_at FROM run_feedback WHERE run_id = ?`, id)
	var f RunFeedback
	if err := row.Scan(&f.RunID, &f.Rating, &f.Note, &f.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// GetStats returns aggregate history statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{ByMode: map[string]int{}}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM insight_runs", &s.TotalRuns},
		{"SELECT COUNT(*) FROM insight_runs WHERE status = 'failed'", &s.FailedRuns},
		{"SELECT COUNT(*) FROM run_feedback", &s.Rated},
		{"SELECT COUNT(*) FROM run_feedback WHERE rating = 'useful'", &s.Useful},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	rows, err := db.conn.Query(`SELECT mode, COUNT(*) FROM insight_runs GROUP BY mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		s.ByMode[mode] = n
	}
	return s, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var labels string
	if err := s.Scan(&r.ID, &r.Mode, &labels, &r.Author, &r.Provider, &r.Model, &r.Context,
		&r.Markdown, &r.RawOutput, &r.Status, &r.Error, &r.DurationMS, &r.CreatedAt, &r.Rating); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labels), &r.Labels); err != nil {
		return nil, fmt.Errorf("decoding labels for run %s: %w", r.ID, err)
	}
	return &r, nil
}
