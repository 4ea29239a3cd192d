package storage

import (
	"fmt"
)

// DailyStats represents statistics for a single day
type DailyStats struct {
	Date             string
	TotalActivations int
	ExecutedCount    int
	DismissedCount   int
	ReplayedCount    int
	FailedCount      int
}

// ProfileStats represents statistics grouped by profile
type ProfileStats struct {
	Profile          string
	TotalActivations int
	ExecutedCount    int
	DismissedCount   int
	ReplayedCount    int
	FailedCount      int
	AvgHoldMs        float64
}

// OverallStats represents overall statistics
type OverallStats struct {
	TotalActivations int
	ExecutedCount    int
	DismissedCount   int
	ReplayedCount    int
	FailedCount      int
	AvgHoldMs        float64
	TopItem          string
}

const outcomeColumns = `
	COUNT(*),
	COALESCE(SUM(CASE WHEN outcome = 'executed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = 'dismissed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = 'replayed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0)`

const sinceDays = `timestamp >= datetime('now', '-' || ? || ' days')`

// GetDailyStats retrieves statistics grouped by date for the last N days
func (db *DB) GetDailyStats(days int) ([]DailyStats, error) {
	query := `
		SELECT DATE(timestamp) AS date,` + outcomeColumns + `
		FROM activations
		WHERE ` + sinceDays + `
		GROUP BY DATE(timestamp)
		ORDER BY date DESC
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStats
	for rows.Next() {
		var s DailyStats
		err := rows.Scan(&s.Date, &s.TotalActivations, &s.ExecutedCount, &s.DismissedCount, &s.ReplayedCount, &s.FailedCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetProfileStats retrieves statistics grouped by profile for the last N days
func (db *DB) GetProfileStats(days int) ([]ProfileStats, error) {
	query := `
		SELECT profile,` + outcomeColumns + `,
			COALESCE(AVG(hold_ms), 0)
		FROM activations
		WHERE ` + sinceDays + `
		GROUP BY profile
		ORDER BY COUNT(*) DESC, profile
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile stats: %w", err)
	}
	defer rows.Close()

	var stats []ProfileStats
	for rows.Next() {
		var s ProfileStats
		err := rows.Scan(&s.Profile, &s.TotalActivations, &s.ExecutedCount, &s.DismissedCount, &s.ReplayedCount, &s.FailedCount, &s.AvgHoldMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetOverallStats retrieves overall statistics for the last N days
func (db *DB) GetOverallStats(days int) (*OverallStats, error) {
	query := `
		SELECT` + outcomeColumns + `,
			COALESCE(AVG(hold_ms), 0)
		FROM activations
		WHERE ` + sinceDays

	var stats OverallStats
	err := db.conn.QueryRow(query, days).Scan(
		&stats.TotalActivations,
		&stats.ExecutedCount,
		&stats.DismissedCount,
		&stats.ReplayedCount,
		&stats.FailedCount,
		&stats.AvgHoldMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overall stats: %w", err)
	}

	top := `
		SELECT item_label
		FROM activations
		WHERE outcome = 'executed' AND ` + sinceDays + `
		GROUP BY item_label
		ORDER BY COUNT(*) DESC, item_label
		LIMIT 1
	`
	rows, err := db.conn.Query(top, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query top item: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&stats.TopItem); err != nil {
			return nil, fmt.Errorf("failed to scan top item: %w", err)
		}
	}

	return &stats, rows.Err()
}
