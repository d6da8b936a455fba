package session

import (
	"fmt"
	"os"
	"time"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// ReauthNotifier surfaces "please log in again" to the user. Returns
// whether the notification was actually delivered; rate limiting lives
// in the caller (keep-alive job), which records delivery time.
type ReauthNotifier interface {
	NotifyReauthRequired(reason models.AuthErrorCode) bool
}

// LogReauthNotifier is the headless default: a prominent log line plus a
// marker file external tooling can watch. Deployments with a real
// notification channel substitute their own implementation.
type LogReauthNotifier struct {
	markerPath string
	logger     *zap.Logger
}

// NewLogReauthNotifier creates the default notifier. markerPath may be
// empty to skip the marker file.
func NewLogReauthNotifier(markerPath string, logger *zap.Logger) *LogReauthNotifier {
	return &LogReauthNotifier{
		markerPath: markerPath,
		logger:     logger,
	}
}

func (n *LogReauthNotifier) NotifyReauthRequired(reason models.AuthErrorCode) bool {
	n.logger.Warn("Session expired, sign in again from connection settings",
		zap.String("reason", string(reason)),
	)
	if n.markerPath != "" {
		content := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), reason)
		if err := os.WriteFile(n.markerPath, []byte(content), 0o600); err != nil {
			n.logger.Error("Failed to write reauth marker file",
				zap.String("path", n.markerPath),
				zap.Error(err),
			)
		}
	}
	return true
}
