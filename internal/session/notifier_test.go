package session

import (
	"os"
	"path/filepath"
	"testing"

	"yamichi77/movement-log-agent/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogReauthNotifierWritesMarkerFile(t *testing.T) {
	markerPath := filepath.Join(t.TempDir(), "reauth-required")
	n := NewLogReauthNotifier(markerPath, zap.NewNop())

	require.True(t, n.NotifyReauthRequired(models.CodeSessionExpired))

	content, err := os.ReadFile(markerPath)
	require.NoError(t, err)
	require.Contains(t, string(content), "SESSION_EXPIRED")
}

func TestLogReauthNotifierWithoutMarkerPath(t *testing.T) {
	n := NewLogReauthNotifier("", zap.NewNop())
	require.True(t, n.NotifyReauthRequired(models.CodeSessionInvalid))
}
