package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/PiSnap/internal/debug"
)

// MonotonicClock reports time elapsed on the clock sensor timestamps count on.
type MonotonicClock interface {
	Monotonic() (time.Duration, error)
}

// Mock is a Camera that renders a test pattern, for development on a PC
// and for tests.
type Mock struct {
	clock  MonotonicClock
	width  int
	height int

	mu            sync.Mutex
	fail          error
	dropTimestamp bool
	captures      int
	outstanding   int
	closed        bool
}

// NewMock creates a mock camera producing width x height JPEGs.
func NewMock(clock MonotonicClock, width, height int) *Mock {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &Mock{clock: clock, width: width, height: height}
}

// FailWith makes subsequent captures fail with err (nil restores success).
func (m *Mock) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// DropTimestamp makes subsequent captures omit SensorTimestamp.
func (m *Mock) DropTimestamp(drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropTimestamp = drop
}

// Captures returns how many captures succeeded.
func (m *Mock) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// Outstanding returns how many requests have not been released.
func (m *Mock) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// SwitchAndCapture renders one frame.
func (m *Mock) SwitchAndCapture(ctx context.Context) (Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.fail != nil {
		return nil, m.fail
	}

	mono, err := m.clock.Monotonic()
	if err != nil {
		return nil, fmt.Errorf("read monotonic clock: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, testPattern(m.width, m.height, m.captures), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode test pattern: %w", err)
	}

	md := Metadata{
		"ExposureTime":  10000,
		"AnalogueGain":  1.0,
		"FrameDuration": 33333,
	}
	if !m.dropTimestamp {
		md["SensorTimestamp"] = int64(mono)
	}

	m.captures++
	m.outstanding++
	debug.Verbose("Camera (mock): frame %d, %d bytes", m.captures, buf.Len())
	return &mockRequest{cam: m, image: buf.Bytes(), md: md}, nil
}

// Close marks the camera closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// testPattern draws a checkerboard whose phase shifts with n, so frames differ.
func testPattern(w, h, n int) image.Image {
	img := imaging.New(w, h, color.NRGBA{0x20, 0x20, 0x20, 0xff})
	const cell = 32
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x+n*4)/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.NRGBA{uint8(x * 255 / w), uint8(y * 255 / h), 0xc0, 0xff})
			}
		}
	}
	return img
}

type mockRequest struct {
	cam      *Mock
	image    []byte
	md       Metadata
	released bool
}

func (r *mockRequest) Image() []byte      { return r.image }
func (r *mockRequest) Metadata() Metadata { return r.md }

func (r *mockRequest) Release() error {
	r.cam.mu.Lock()
	defer r.cam.mu.Unlock()
	if r.released {
		return fmt.Errorf("request already released")
	}
	r.released = true
	r.cam.outstanding--
	return nil
}
