package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Collision policies for two captures resolving to the same second.
const (
	CollisionOverwrite = "overwrite"
	CollisionSuffix    = "suffix"
)

// Camera backends.
const (
	CameraRPiCam = "rpicam"
	CameraMock   = "mock"
)

// CameraConfig describes how to drive the camera.
// Type selects a concrete implementation ("rpicam" or "mock").
type CameraConfig struct {
	Type         string            `yaml:"type"`           // e.g., "rpicam"
	Command      string            `yaml:"command"`        // still capture binary (rpicam-still, libcamera-still)
	WidthPx      int               `yaml:"width_px"`       // 0 = full sensor resolution
	HeightPx     int               `yaml:"height_px"`      // 0 = full sensor resolution
	Quality      int               `yaml:"quality"`        // JPEG quality 1-100
	TimeoutMs    int               `yaml:"timeout_ms"`     // upper bound for one still capture
	MaxImageSize datasize.ByteSize `yaml:"max_image_size"` // e.g., "32MB"
}

// OutputConfig describes where pictures go.
type OutputConfig struct {
	PicturesDir     string `yaml:"pictures_dir"`     // "~" expands to the user's home
	CollisionPolicy string `yaml:"collision_policy"` // "overwrite" or "suffix"
}

// TriggerConfig describes the physical push button and busy LED.
type TriggerConfig struct {
	ButtonPin  int `yaml:"button_pin"`  // BCM pin, 0 = no button. Active LOW with pull-up.
	LEDPin     int `yaml:"led_pin"`     // BCM pin, 0 = no LED
	PollMs     int `yaml:"poll_ms"`     // button sampling period
	DebounceMs int `yaml:"debounce_ms"` // stable time before a press counts
}

// WebConfig holds settings for the web trigger page.
type WebConfig struct {
	MinIntervalMs int `yaml:"min_interval_ms"` // minimum time between two accepted POST /capture
}

// MetricsConfig holds OpenTelemetry export settings.
type MetricsConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"` // host:port, empty = metrics disabled
	IntervalSec  int    `yaml:"interval_sec"`  // export interval
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel    int  `yaml:"debug_level"`    // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO      bool `yaml:"mock_gpio"`      // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	FocusEstimate bool `yaml:"focus_estimate"` // compute a coarse sharpness score per capture
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Output   OutputConfig   `yaml:"output"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Web      WebConfig      `yaml:"web"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath checks that path points to a .yaml file directly inside
// a "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file, applies .env and environment overrides, and returns
// the validated configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PISNAP_PICTURES_DIR"); v != "" {
		c.Output.PicturesDir = v
	}
	if v := os.Getenv("PISNAP_CAMERA_TYPE"); v != "" {
		c.Camera.Type = v
	}
	if v := os.Getenv("PISNAP_OTLP_ENDPOINT"); v != "" {
		c.Metrics.OTLPEndpoint = v
	}
	if v := os.Getenv("PISNAP_DEBUG_LEVEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PISNAP_DEBUG_LEVEL: %w", err)
		}
		c.Defaults.DebugLevel = n
	}
	return nil
}

func (c *Config) normalize() error {
	// Basic validation
	switch c.Camera.Type {
	case CameraRPiCam, CameraMock:
	case "":
		return fmt.Errorf("camera.type is required")
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}
	if c.Camera.Command == "" {
		c.Camera.Command = "rpicam-still"
	}
	if c.Camera.WidthPx < 0 || c.Camera.HeightPx < 0 {
		return fmt.Errorf("camera width_px/height_px must be >= 0")
	}
	if c.Camera.Quality == 0 {
		c.Camera.Quality = 93 // rpicam-still default
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return fmt.Errorf("camera.quality must be between 1 and 100, got %d", c.Camera.Quality)
	}
	if c.Camera.TimeoutMs <= 0 {
		c.Camera.TimeoutMs = 10000 // 10s covers sensor mode switch + AE/AWB settle
	}
	if c.Camera.MaxImageSize == 0 {
		c.Camera.MaxImageSize = 32 * datasize.MB
	}

	if c.Output.PicturesDir == "" {
		c.Output.PicturesDir = "~/Pictures"
	}
	dir, err := ExpandHome(c.Output.PicturesDir)
	if err != nil {
		return err
	}
	c.Output.PicturesDir = dir
	switch c.Output.CollisionPolicy {
	case "":
		c.Output.CollisionPolicy = CollisionOverwrite
	case CollisionOverwrite, CollisionSuffix:
	default:
		return fmt.Errorf("output.collision_policy must be %q or %q, got %q",
			CollisionOverwrite, CollisionSuffix, c.Output.CollisionPolicy)
	}

	if c.Trigger.ButtonPin < 0 || c.Trigger.LEDPin < 0 {
		return fmt.Errorf("trigger pins must be >= 0")
	}
	if c.Trigger.ButtonPin != 0 && c.Trigger.ButtonPin == c.Trigger.LEDPin {
		return fmt.Errorf("trigger.button_pin and trigger.led_pin must differ")
	}
	if c.Trigger.PollMs <= 0 {
		c.Trigger.PollMs = 10
	}
	if c.Trigger.DebounceMs <= 0 {
		c.Trigger.DebounceMs = 50
	}

	if c.Web.MinIntervalMs < 0 {
		return fmt.Errorf("web.min_interval_ms must be >= 0")
	}
	if c.Web.MinIntervalMs == 0 {
		c.Web.MinIntervalMs = 1000
	}

	if c.Metrics.IntervalSec <= 0 {
		c.Metrics.IntervalSec = 30
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// CaptureTimeout returns the upper bound for a single still capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Camera.TimeoutMs) * time.Millisecond
}

// PollInterval returns the button sampling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Trigger.PollMs) * time.Millisecond
}

// Debounce returns how long the button must stay pressed before it counts.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Trigger.DebounceMs) * time.Millisecond
}

// MinCaptureInterval returns the minimum time between two web-triggered captures.
func (c *Config) MinCaptureInterval() time.Duration {
	return time.Duration(c.Web.MinIntervalMs) * time.Millisecond
}

// MetricsInterval returns the OTLP export interval.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.Metrics.IntervalSec) * time.Second
}
