package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/skipif/internal/strategy"
)

// ReadMarker returns the payload of the marker of kind for output.
// Returns an error wrapping strategy.ErrNoMarker if none is stored.
func (s *Store) ReadMarker(ctx context.Context, output string, kind strategy.Kind) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM markers
		WHERE output = ? AND kind = ?
	`, output, kind.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %s marker for %s: %w", kind, output, strategy.ErrNoMarker)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s marker: %w", kind, err)
	}
	if payload == nil {
		payload = []byte{}
	}
	return payload, nil
}

// WriteMarker creates or replaces the marker of kind for output.
func (s *Store) WriteMarker(ctx context.Context, output string, kind strategy.Kind, payload []byte) error {
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markers (output, kind, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(output, kind) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, output, kind.String(), payload, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("write %s marker: %w", kind, err)
	}
	return nil
}

// RemoveMarker deletes the marker of kind for output. Removing an absent
// marker is not an error.
func (s *Store) RemoveMarker(ctx context.Context, output string, kind strategy.Kind) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM markers
		WHERE output = ? AND kind = ?
	`, output, kind.String())
	if err != nil {
		return fmt.Errorf("remove %s marker: %w", kind, err)
	}
	return nil
}

// MarkerOutputs returns every output with at least one stored marker, in
// lexical order.
func (s *Store) MarkerOutputs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT output FROM markers
		ORDER BY output COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query marker outputs: %w", err)
	}
	defer rows.Close()

	outputs := []string{}
	for rows.Next() {
		var output string
		if err := rows.Scan(&output); err != nil {
			return nil, fmt.Errorf("scan marker output: %w", err)
		}
		outputs = append(outputs, output)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marker outputs: %w", err)
	}
	return outputs, nil
}

var _ strategy.MarkerBackend = (*Store)(nil)
