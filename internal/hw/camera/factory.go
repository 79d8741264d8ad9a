package camera

import (
	"fmt"

	"github.com/cjeanneret/PiSnap/internal/config"
	"github.com/cjeanneret/PiSnap/internal/debug"
)

// NewFromConfig selects a camera implementation based on configuration.
func NewFromConfig(cfg *config.Config, clock MonotonicClock) (Camera, error) {
	switch cfg.Camera.Type {
	case config.CameraRPiCam:
		return NewRPiCam(RPiCamConfig{
			Command:      cfg.Camera.Command,
			WidthPx:      cfg.Camera.WidthPx,
			HeightPx:     cfg.Camera.HeightPx,
			Quality:      cfg.Camera.Quality,
			Timeout:      cfg.CaptureTimeout(),
			MaxImageSize: cfg.Camera.MaxImageSize,
		}), nil
	case config.CameraMock:
		debug.Info("Using MOCK camera (development mode)")
		return NewMock(clock, cfg.Camera.WidthPx, cfg.Camera.HeightPx), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}
