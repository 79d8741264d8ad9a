package camera

import (
	"context"
	"errors"
)

// Metadata is the per-frame metadata reported by the driver
// (SensorTimestamp, ExposureTime, AnalogueGain, ...).
type Metadata map[string]any

// ErrClosed is returned by SwitchAndCapture after Close.
var ErrClosed = errors.New("camera closed")

// Camera is the high-level interface used by the rest of the application.
// It represents the camera device regardless of how it's driven
// (libcamera apps, a mock for development, ...).
//
// Implementations do not serialize callers; the capture orchestrator owns
// exclusive access to the device.
type Camera interface {
	// SwitchAndCapture moves the sensor from preview to the still
	// configuration, takes one full-resolution frame and hands back the
	// request holding it. The caller must Release the request.
	SwitchAndCapture(ctx context.Context) (Request, error)

	// Close releases the device.
	Close() error
}

// Request is one completed still capture. Its buffers stay valid until Release.
type Request interface {
	// Image returns the encoded JPEG.
	Image() []byte
	// Metadata returns the frame metadata.
	Metadata() Metadata
	// Release hands the request back to the driver.
	Release() error
}
