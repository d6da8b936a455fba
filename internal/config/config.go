package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the full agent configuration
type Config struct {
	Env         string `yaml:"env" env:"APP_ENV" env-default:"production"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"movement-log.db"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
	} `yaml:"log"`

	Backend struct {
		BaseURL    string `yaml:"base_url" env:"BACKEND_BASE_URL"`
		UploadPath string `yaml:"upload_path" env:"BACKEND_UPLOAD_PATH" env-default:"/api/movelog"`
		Timeout    int    `yaml:"timeout" env:"BACKEND_TIMEOUT" env-default:"30"`
	} `yaml:"backend"`

	Tracking struct {
		WalkingSec int  `yaml:"walking_sec" env-default:"30"`
		RunningSec int  `yaml:"running_sec" env-default:"25"`
		BicycleSec int  `yaml:"bicycle_sec" env-default:"20"`
		VehicleSec int  `yaml:"vehicle_sec" env-default:"15"`
		StillSec   int  `yaml:"still_sec" env-default:"900"`
		DebugGPS   bool `yaml:"debug_gps" env:"DEBUG_GPS" env-default:"false"`
	} `yaml:"tracking"`

	Position struct {
		Source       string `yaml:"source" env:"POSITION_SOURCE" env-default:"gpsd"`
		GpsdAddr     string `yaml:"gpsd_addr" env:"GPSD_ADDR" env-default:"localhost:2947"`
		SerialDevice string `yaml:"serial_device" env:"SERIAL_DEVICE" env-default:"/dev/ttyUSB0"`
		SerialBaud   int    `yaml:"serial_baud" env:"SERIAL_BAUD" env-default:"9600"`
	} `yaml:"position"`

	Sync struct {
		IntervalSec      int `yaml:"interval_sec" env-default:"60"`
		RetryIntervalSec int `yaml:"retry_interval_sec" env-default:"30"`
		BatchLimit       int `yaml:"batch_limit" env-default:"200"`
	} `yaml:"sync"`

	KeepAlive struct {
		IntervalHours int `yaml:"interval_hours" env-default:"6"`
	} `yaml:"keep_alive"`

	Session struct {
		InvalidRetries int `yaml:"invalid_retries" env-default:"1"`
	} `yaml:"session"`

	Tray struct {
		Enabled bool `yaml:"enabled" env:"TRAY_ENABLED" env-default:"false"`
	} `yaml:"tray"`
}

// LoadConfig reads configuration from a YAML file with env overrides
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return &cfg, nil
}
