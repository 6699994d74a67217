package mirror

import (
	"context"
	"fmt"
)

// RecordConnection tallies one successful scan for the event, keyed by the
// scan's millisecond timestamp. Two scans in the same millisecond collapse
// into one row, which matches how the tally has always been counted.
func (m *Mirror) RecordConnection(ctx context.Context, eventID string, scannedAtMillis int64) error {
	query := `
		INSERT INTO connections (event_id, scanned_at, count)
		VALUES (?, ?, 1)
		ON CONFLICT (event_id, scanned_at) DO UPDATE SET count = 1`

	if _, err := m.db.ExecContext(ctx, query, eventID, scannedAtMillis); err != nil {
		return fmt.Errorf("record connection: %w", err)
	}
	return nil
}

// CountConnections returns the event-wide connection tally.
func (m *Mirror) CountConnections(ctx context.Context, eventID string) (int, error) {
	var total int
	err := m.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM connections WHERE event_id = ?`,
		eventID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count connections: %w", err)
	}
	return total, nil
}
