package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activation outcomes.
const (
	OutcomeExecuted  = "executed"
	OutcomeDismissed = "dismissed"
	OutcomeReplayed  = "replayed"
	OutcomeFailed    = "failed"
)

// ErrNotFound is returned when an activation does not exist.
var ErrNotFound = errors.New("activation not found")

const timeLayout = "2006-01-02 15:04:05"

// Activation is one trigger press and what came of it
type Activation struct {
	ID           string
	Timestamp    time.Time
	Profile      string
	Trigger      string
	ItemLabel    string
	Action       string
	Value        string
	Outcome      string
	HoldMs       int64
	ErrorMessage string
}

// SaveActivation saves an activation. A missing ID or timestamp is filled in.
func (db *DB) SaveActivation(a *Activation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Timestamp = a.Timestamp.UTC().Truncate(time.Second)

	query := `
		INSERT INTO activations (
			id, timestamp, profile, trigger_key, item_label, action, value,
			outcome, hold_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage sql.NullString
	if a.ErrorMessage != "" {
		errorMessage = sql.NullString{String: a.ErrorMessage, Valid: true}
	}

	_, err := db.conn.Exec(query,
		a.ID, a.Timestamp.Format(timeLayout), a.Profile, a.Trigger, a.ItemLabel, a.Action, a.Value,
		a.Outcome, a.HoldMs, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save activation: %w", err)
	}
	return nil
}

// GetActivations retrieves activations with pagination, newest first
func (db *DB) GetActivations(limit, offset int) ([]Activation, error) {
	query := `
		SELECT
			id, timestamp, profile, trigger_key, item_label, action, value,
			outcome, hold_ms, error_message
		FROM activations
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query activations: %w", err)
	}
	defer rows.Close()

	var activations []Activation
	for rows.Next() {
		var a Activation
		var timestamp string
		var errorMessage sql.NullString

		err := rows.Scan(
			&a.ID, &timestamp, &a.Profile, &a.Trigger, &a.ItemLabel, &a.Action, &a.Value,
			&a.Outcome, &a.HoldMs, &errorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activation: %w", err)
		}

		a.Timestamp, err = parseTimestamp(timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse activation timestamp: %w", err)
		}
		if errorMessage.Valid {
			a.ErrorMessage = errorMessage.String
		}

		activations = append(activations, a)
	}

	return activations, rows.Err()
}

// parseTimestamp accepts what SaveActivation writes and the RFC 3339 form
// the driver may hand back for DATETIME columns.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// DeleteActivation deletes an activation by ID
func (db *DB) DeleteActivation(id string) error {
	result, err := db.conn.Exec(`DELETE FROM activations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete activation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetActivationCount returns the total number of activations
func (db *DB) GetActivationCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM activations").Scan(&count)
	return count, err
}
