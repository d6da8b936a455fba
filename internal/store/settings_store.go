package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

const (
	keyBaseURL        = "connection.base_url"
	keyUploadPath     = "connection.upload_path"
	keySendStatusText = "connection.send_status_text"

	keyDeviceID = "device.id"

	keyFreqWalking = "frequency.walking_sec"
	keyFreqRunning = "frequency.running_sec"
	keyFreqBicycle = "frequency.bicycle_sec"
	keyFreqVehicle = "frequency.vehicle_sec"
	keyFreqStill   = "frequency.still_sec"
)

// SettingsStore persists connection and tracking-frequency settings plus
// the human-readable send status line.
type SettingsStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSettingsStore(db *sql.DB, logger *zap.Logger) *SettingsStore {
	return &SettingsStore{
		db:     db,
		logger: logger,
	}
}

// Connection returns the stored connection settings; absent keys are empty
func (s *SettingsStore) Connection(ctx context.Context) (models.ConnectionSettings, error) {
	baseURL, err := s.get(ctx, keyBaseURL)
	if err != nil {
		return models.ConnectionSettings{}, err
	}
	uploadPath, err := s.get(ctx, keyUploadPath)
	if err != nil {
		return models.ConnectionSettings{}, err
	}
	return models.ConnectionSettings{
		BaseURL:    baseURL,
		UploadPath: uploadPath,
	}, nil
}

// SaveConnection persists connection settings
func (s *SettingsStore) SaveConnection(ctx context.Context, settings models.ConnectionSettings) error {
	if err := s.set(ctx, keyBaseURL, settings.BaseURL); err != nil {
		return err
	}
	return s.set(ctx, keyUploadPath, settings.UploadPath)
}

// SendStatusText returns the last recorded sync status line
func (s *SettingsStore) SendStatusText(ctx context.Context) (string, error) {
	return s.get(ctx, keySendStatusText)
}

// SaveSendStatusText records the latest sync status line
func (s *SettingsStore) SaveSendStatusText(ctx context.Context, text string) error {
	return s.set(ctx, keySendStatusText, text)
}

// Frequency returns the stored frequency settings. Missing or out-of-range
// values fall back to defaults so the sampler always has usable intervals.
func (s *SettingsStore) Frequency(ctx context.Context) (models.TrackingFrequencySettings, error) {
	settings := models.TrackingFrequencySettings{
		WalkingSec: s.getInt(ctx, keyFreqWalking, models.DefaultFrequency.WalkingSec),
		RunningSec: s.getInt(ctx, keyFreqRunning, models.DefaultFrequency.RunningSec),
		BicycleSec: s.getInt(ctx, keyFreqBicycle, models.DefaultFrequency.BicycleSec),
		VehicleSec: s.getInt(ctx, keyFreqVehicle, models.DefaultFrequency.VehicleSec),
		StillSec:   s.getInt(ctx, keyFreqStill, models.DefaultFrequency.StillSec),
	}
	if !settings.Valid() {
		return models.DefaultFrequency, nil
	}
	return settings, nil
}

// SaveFrequency persists frequency settings, rejecting out-of-range values
func (s *SettingsStore) SaveFrequency(ctx context.Context, settings models.TrackingFrequencySettings) error {
	if !settings.Valid() {
		return fmt.Errorf("frequency settings out of range [%d, %d] seconds",
			models.FrequencyMinSec, models.FrequencyMaxSec)
	}

	pairs := map[string]int{
		keyFreqWalking: settings.WalkingSec,
		keyFreqRunning: settings.RunningSec,
		keyFreqBicycle: settings.BicycleSec,
		keyFreqVehicle: settings.VehicleSec,
		keyFreqStill:   settings.StillSec,
	}
	for key, value := range pairs {
		if err := s.set(ctx, key, strconv.Itoa(value)); err != nil {
			return err
		}
	}
	return nil
}

// DeviceID returns the persisted device identifier, empty when unset
func (s *SettingsStore) DeviceID(ctx context.Context) (string, error) {
	return s.get(ctx, keyDeviceID)
}

// SaveDeviceID persists the device identifier
func (s *SettingsStore) SaveDeviceID(ctx context.Context, id string) error {
	return s.set(ctx, keyDeviceID, id)
}

// SeedConnection stores the given settings only when none exist yet
func (s *SettingsStore) SeedConnection(ctx context.Context, settings models.ConnectionSettings) error {
	existing, err := s.get(ctx, keyBaseURL)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	s.logger.Info("Seeding connection settings from config",
		zap.String("base_url", settings.BaseURL),
	)
	return s.SaveConnection(ctx, settings)
}

// SeedFrequency stores the given frequency settings only when none exist
// yet; pushed settings from the server are never overwritten on restart.
func (s *SettingsStore) SeedFrequency(ctx context.Context, settings models.TrackingFrequencySettings) error {
	existing, err := s.get(ctx, keyFreqWalking)
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	if !settings.Valid() {
		settings = models.DefaultFrequency
	}
	return s.SaveFrequency(ctx, settings)
}

func (s *SettingsStore) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) getInt(ctx context.Context, key string, fallback int) int {
	raw, err := s.get(ctx, key)
	if err != nil || raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func (s *SettingsStore) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}
