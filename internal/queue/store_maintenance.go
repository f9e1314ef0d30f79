package queue

import (
	"context"
	"fmt"
)

// Stats returns a count of jobs grouped by status, optionally for one kind.
func (s *Store) Stats(ctx context.Context, kind Kind) (map[Status]int, error) {
	query := `SELECT status, COUNT(1) FROM jobs`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
