package store

import (
	"context"
	"database/sql"
	"fmt"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// SessionStatus is the durable record of session health.
// ReauthRequired=true always carries a reason.
type SessionStatus struct {
	IsSessionManaged     bool
	ReauthRequired       bool
	ReauthReason         *models.AuthErrorCode
	ReauthDetectedAt     *int64
	LastReauthNotifiedAt *int64
}

// SessionStatusStore persists session status. All mutation goes through
// the mark* transition methods so a half-finished caller cannot leave a
// partial record behind.
type SessionStatusStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSessionStatusStore(db *sql.DB, logger *zap.Logger) *SessionStatusStore {
	return &SessionStatusStore{
		db:     db,
		logger: logger,
	}
}

// Status reads the current record, returning zero values when none exists
func (s *SessionStatusStore) Status(ctx context.Context) (SessionStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT is_session_managed, reauth_required, reauth_reason, reauth_detected_at, last_reauth_notified_at
		FROM session_status WHERE id = 1
	`)

	var status SessionStatus
	var managed, required int
	var reason sql.NullString
	var detectedAt, notifiedAt sql.NullInt64
	err := row.Scan(&managed, &required, &reason, &detectedAt, &notifiedAt)
	if err == sql.ErrNoRows {
		return SessionStatus{}, nil
	}
	if err != nil {
		return SessionStatus{}, fmt.Errorf("failed to read session status: %w", err)
	}

	status.IsSessionManaged = managed != 0
	status.ReauthRequired = required != 0
	if reason.Valid {
		code := models.AuthErrorCode(reason.String)
		status.ReauthReason = &code
	}
	if detectedAt.Valid {
		v := detectedAt.Int64
		status.ReauthDetectedAt = &v
	}
	if notifiedAt.Valid {
		v := notifiedAt.Int64
		status.LastReauthNotifiedAt = &v
	}
	return status, nil
}

// MarkSessionEstablished records a completed login and clears any reauth flag
func (s *SessionStatusStore) MarkSessionEstablished(ctx context.Context) error {
	return s.upsert(ctx, `
		INSERT INTO session_status (id, is_session_managed, reauth_required, reauth_reason, reauth_detected_at)
		VALUES (1, 1, 0, NULL, NULL)
		ON CONFLICT(id) DO UPDATE SET
			is_session_managed = 1,
			reauth_required = 0,
			reauth_reason = NULL,
			reauth_detected_at = NULL
	`)
}

// MarkRefreshSucceeded clears a pending reauth flag after a good refresh
func (s *SessionStatusStore) MarkRefreshSucceeded(ctx context.Context) error {
	return s.upsert(ctx, `
		INSERT INTO session_status (id, is_session_managed, reauth_required, reauth_reason, reauth_detected_at)
		VALUES (1, 1, 0, NULL, NULL)
		ON CONFLICT(id) DO UPDATE SET
			is_session_managed = 1,
			reauth_required = 0,
			reauth_reason = NULL,
			reauth_detected_at = NULL
	`)
}

// MarkReauthRequired records that silent refresh is no longer possible
func (s *SessionStatusStore) MarkReauthRequired(ctx context.Context, reason models.AuthErrorCode, detectedAt int64) error {
	err := s.upsert(ctx, `
		INSERT INTO session_status (id, is_session_managed, reauth_required, reauth_reason, reauth_detected_at)
		VALUES (1, 1, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_session_managed = 1,
			reauth_required = 1,
			reauth_reason = excluded.reauth_reason,
			reauth_detected_at = excluded.reauth_detected_at
	`, string(reason), detectedAt)
	if err != nil {
		return err
	}
	s.logger.Warn("Reauthentication required", zap.String("reason", string(reason)))
	return nil
}

// MarkReauthNotificationSent records when the user was last notified
func (s *SessionStatusStore) MarkReauthNotificationSent(ctx context.Context, notifiedAt int64) error {
	return s.upsert(ctx, `
		INSERT INTO session_status (id, last_reauth_notified_at)
		VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_reauth_notified_at = excluded.last_reauth_notified_at
	`, notifiedAt)
}

func (s *SessionStatusStore) upsert(ctx context.Context, query string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}
