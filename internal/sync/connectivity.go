package sync

import (
	"context"
	"errors"
	"fmt"

	"yamichi77/movement-log-agent/internal/authapi"
	"yamichi77/movement-log-agent/internal/gateway"
	"yamichi77/movement-log-agent/internal/models"
	"yamichi77/movement-log-agent/internal/session"

	"go.uber.org/zap"
)

// ConnectionStore persists connection settings after a successful test
type ConnectionStore interface {
	SaveConnection(ctx context.Context, settings models.ConnectionSettings) error
}

// SessionMarker records that a working session was confirmed
type SessionMarker interface {
	MarkSessionEstablished(ctx context.Context) error
}

// TokenHolder is the slice of the session manager connectivity uses
type TokenHolder interface {
	AccessToken() string
	RefreshAccessToken(ctx context.Context, baseURL string) (models.RefreshResult, error)
}

// Connectivity verifies backend reachability with the current session
// and, on success, commits the settings and arms keep-alive. This is the
// settings-screen "test connection" action, not part of the sync loop.
type Connectivity struct {
	gateway        gateway.MovementAPI
	tokens         TokenHolder
	connections    ConnectionStore
	status         SessionMarker
	events         *session.EventBus
	startKeepAlive func()
	logger         *zap.Logger
}

func NewConnectivity(
	api gateway.MovementAPI,
	tokens TokenHolder,
	connections ConnectionStore,
	status SessionMarker,
	events *session.EventBus,
	startKeepAlive func(),
	logger *zap.Logger,
) *Connectivity {
	return &Connectivity{
		gateway:        api,
		tokens:         tokens,
		connections:    connections,
		status:         status,
		events:         events,
		startKeepAlive: startKeepAlive,
		logger:         logger,
	}
}

// Test verifies the settings against the backend. It reports whether the
// server rotated the session while proving the token. An absent token
// raises the login signal instead of probing anonymously.
func (c *Connectivity) Test(ctx context.Context, settings models.ConnectionSettings) (bool, error) {
	baseURL, err := authapi.NormalizeBaseURL(settings.BaseURL)
	if err != nil {
		return false, err
	}
	settings.BaseURL = baseURL

	token := c.tokens.AccessToken()
	if token == "" {
		c.events.RequireLogin(models.CodeSessionExpired, baseURL)
		return false, fmt.Errorf("no active session, login required")
	}

	sessionRotated := false
	if err := c.gateway.VerifyToken(ctx, baseURL, token); err != nil {
		var unauthorized *authapi.UnauthorizedError
		if !errors.As(err, &unauthorized) {
			return false, err
		}
		refreshed, refreshErr := c.tokens.RefreshAccessToken(ctx, baseURL)
		if refreshErr != nil {
			return false, refreshErr
		}
		sessionRotated = refreshed.SessionRotated
		if err := c.gateway.VerifyToken(ctx, baseURL, refreshed.AccessToken); err != nil {
			return false, err
		}
	}

	if err := c.connections.SaveConnection(ctx, settings); err != nil {
		return false, err
	}
	if err := c.status.MarkSessionEstablished(ctx); err != nil {
		return false, err
	}
	if c.startKeepAlive != nil {
		c.startKeepAlive()
	}

	c.logger.Info("Connectivity verified",
		zap.String("base_url", baseURL),
		zap.Bool("session_rotated", sessionRotated),
	)
	return sessionRotated, nil
}
