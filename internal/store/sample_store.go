package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// SampleStore owns the durable movement log. Samples are append-only;
// the only in-place mutation is flipping the uploaded flag.
type SampleStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSampleStore creates a sample store over an opened database
func NewSampleStore(db *sql.DB, logger *zap.Logger) *SampleStore {
	return &SampleStore{
		db:     db,
		logger: logger,
	}
}

// Append durably inserts one sample and returns its assigned id
func (s *SampleStore) Append(ctx context.Context, sample models.LocationSample) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO move_log (recorded_at, latitude, longitude, accuracy, activity_status, uploaded)
		VALUES (?, ?, ?, ?, ?, 0)
	`, sample.RecordedAt, sample.Latitude, sample.Longitude, sample.Accuracy, string(sample.Activity))
	if err != nil {
		return 0, fmt.Errorf("failed to append sample: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

// Pending returns up to limit not-yet-uploaded samples, oldest first.
// FIFO order here is what keeps uploads chronological at the backend.
func (s *SampleStore) Pending(ctx context.Context, limit int) ([]models.LocationSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, latitude, longitude, accuracy, activity_status, uploaded
		FROM move_log
		WHERE uploaded = 0
		ORDER BY recorded_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// MarkUploaded flags the given samples as uploaded. Idempotent; a no-op
// on empty input.
func (s *SampleStore) MarkUploaded(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE move_log SET uploaded = 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to mark uploaded: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	s.logger.Debug("Samples marked uploaded",
		zap.Int("requested", len(ids)),
		zap.Int64("updated", rowsAffected),
	)
	return nil
}

// Latest returns the most recently recorded sample, or nil when empty
func (s *SampleStore) Latest(ctx context.Context) (*models.LocationSample, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, recorded_at, latitude, longitude, accuracy, activity_status, uploaded
		FROM move_log
		ORDER BY recorded_at DESC
		LIMIT 1
	`)

	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sample: %w", err)
	}
	return &sample, nil
}

// Count returns the total number of stored samples
func (s *SampleStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM move_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return count, nil
}

// RecentWindow returns the n most recent samples, newest first
func (s *SampleStore) RecentWindow(ctx context.Context, n int) ([]models.LocationSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, latitude, longitude, accuracy, activity_status, uploaded
		FROM move_log
		ORDER BY recorded_at DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// AllAscending returns every sample ordered by recorded time
func (s *SampleStore) AllAscending(ctx context.Context) ([]models.LocationSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, latitude, longitude, accuracy, activity_status, uploaded
		FROM move_log
		ORDER BY recorded_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSample(row rowScanner) (models.LocationSample, error) {
	var sample models.LocationSample
	var activity string
	var uploaded int
	err := row.Scan(&sample.ID, &sample.RecordedAt, &sample.Latitude,
		&sample.Longitude, &sample.Accuracy, &activity, &uploaded)
	if err != nil {
		return models.LocationSample{}, err
	}
	sample.Activity = models.ActivityStatus(activity)
	sample.Uploaded = uploaded != 0
	return sample, nil
}

func scanSamples(rows *sql.Rows) ([]models.LocationSample, error) {
	var samples []models.LocationSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return samples, nil
}
