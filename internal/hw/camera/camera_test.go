package camera

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/cjeanneret/PiSnap/internal/config"
)

type fixedMono time.Duration

func (f fixedMono) Monotonic() (time.Duration, error) { return time.Duration(f), nil }

// fakeStill mimics rpicam-still: it writes the files named by --output and --metadata.
type fakeStill struct {
	calls    [][]string
	image    []byte
	metadata string // empty = don't write metadata
	err      error
	output   string
}

func (f *fakeStill) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return []byte(f.output), f.err
	}
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--output":
			if err := os.WriteFile(args[i+1], f.image, 0o644); err != nil {
				return nil, err
			}
		case "--metadata":
			if f.metadata != "" {
				if err := os.WriteFile(args[i+1], []byte(f.metadata), 0o644); err != nil {
					return nil, err
				}
			}
		}
	}
	return nil, nil
}

func newTestRPiCam(f *fakeStill, cfg RPiCamConfig) *RPiCam {
	cam := NewRPiCam(cfg)
	cam.run = f.run
	return cam
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestRPiCam_Args(t *testing.T) {
	cam := NewRPiCam(RPiCamConfig{Quality: 90, WidthPx: 4056, HeightPx: 3040})
	args := cam.Args("/tmp/x")

	want := map[string]string{
		"--output":          "/tmp/x/still.jpg",
		"--metadata":        "/tmp/x/metadata.json",
		"--metadata-format": "json",
		"--quality":         "90",
		"--width":           "4056",
		"--height":          "3040",
	}
	for flag, v := range want {
		if got := argValue(args, flag); got != v {
			t.Errorf("%s = %q, want %q", flag, got, v)
		}
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--nopreview") || !strings.Contains(joined, "--immediate") {
		t.Errorf("args missing --nopreview/--immediate: %v", args)
	}
}

func TestRPiCam_ArgsFullResolution(t *testing.T) {
	cam := NewRPiCam(RPiCamConfig{Quality: 93})
	args := cam.Args("/tmp/x")
	if argValue(args, "--width") != "" || argValue(args, "--height") != "" {
		t.Errorf("no --width/--height expected for full resolution, got %v", args)
	}
}

func TestRPiCam_CaptureAndRelease(t *testing.T) {
	f := &fakeStill{
		image:    []byte("\xff\xd8jpeg\xff\xd9"),
		metadata: `{"SensorTimestamp": 12345000000, "ExposureTime": 10000}`,
	}
	cam := newTestRPiCam(f, RPiCamConfig{Command: "libcamera-still", Quality: 93})

	req, err := cam.SwitchAndCapture(context.Background())
	if err != nil {
		t.Fatalf("SwitchAndCapture: %v", err)
	}
	if len(f.calls) != 1 || f.calls[0][0] != "libcamera-still" {
		t.Fatalf("calls = %v, want one libcamera-still run", f.calls)
	}
	if string(req.Image()) != "\xff\xd8jpeg\xff\xd9" {
		t.Errorf("image = %q", req.Image())
	}

	ts, ok := req.Metadata()["SensorTimestamp"].(json.Number)
	if !ok {
		t.Fatalf("SensorTimestamp type = %T, want json.Number", req.Metadata()["SensorTimestamp"])
	}
	if ts.String() != "12345000000" {
		t.Errorf("SensorTimestamp = %s, want 12345000000", ts)
	}

	dir := filepath.Dir(argValue(f.calls[0][1:], "--output"))
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("capture dir should exist before release: %v", err)
	}
	if err := req.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("capture dir should be removed after release, stat err = %v", err)
	}
	if err := req.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}
}

func TestRPiCam_MissingMetadataFile(t *testing.T) {
	f := &fakeStill{image: []byte("jpeg")}
	cam := newTestRPiCam(f, RPiCamConfig{})

	req, err := cam.SwitchAndCapture(context.Background())
	if err != nil {
		t.Fatalf("SwitchAndCapture: %v", err)
	}
	defer req.Release()
	if len(req.Metadata()) != 0 {
		t.Errorf("metadata = %v, want empty", req.Metadata())
	}
}

func TestRPiCam_BadMetadata(t *testing.T) {
	f := &fakeStill{image: []byte("jpeg"), metadata: "{not json"}
	cam := newTestRPiCam(f, RPiCamConfig{})

	if _, err := cam.SwitchAndCapture(context.Background()); err == nil {
		t.Fatal("expected decode error, got nil")
	}
	dir := filepath.Dir(argValue(f.calls[0][1:], "--output"))
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("capture dir should be cleaned up on failure, stat err = %v", err)
	}
}

func TestRPiCam_CommandFails(t *testing.T) {
	f := &fakeStill{err: errors.New("exit status 255"), output: "ERROR: *** no cameras available ***\n"}
	cam := newTestRPiCam(f, RPiCamConfig{})

	_, err := cam.SwitchAndCapture(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no cameras available") {
		t.Errorf("error should carry the app output, got %v", err)
	}
}

func TestRPiCam_ImageTooLarge(t *testing.T) {
	f := &fakeStill{image: make([]byte, 2048), metadata: `{"SensorTimestamp": 1}`}
	cam := newTestRPiCam(f, RPiCamConfig{MaxImageSize: datasize.KB})

	_, err := cam.SwitchAndCapture(context.Background())
	if err == nil || !strings.Contains(err.Error(), "max_image_size") {
		t.Errorf("expected max_image_size error, got %v", err)
	}
}

func TestRPiCam_Closed(t *testing.T) {
	f := &fakeStill{image: []byte("jpeg")}
	cam := newTestRPiCam(f, RPiCamConfig{})
	if err := cam.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := cam.SwitchAndCapture(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("still app should not run after Close")
	}
}

func TestMock_Capture(t *testing.T) {
	cam := NewMock(fixedMono(42*time.Second), 64, 48)

	req, err := cam.SwitchAndCapture(context.Background())
	if err != nil {
		t.Fatalf("SwitchAndCapture: %v", err)
	}
	img := req.Image()
	if len(img) < 4 || img[0] != 0xff || img[1] != 0xd8 {
		t.Errorf("image does not start with a JPEG SOI marker")
	}
	if got := req.Metadata()["SensorTimestamp"]; got != int64(42*time.Second) {
		t.Errorf("SensorTimestamp = %v, want %d", got, int64(42*time.Second))
	}
	if cam.Outstanding() != 1 {
		t.Errorf("outstanding = %d, want 1", cam.Outstanding())
	}
	if err := req.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := req.Release(); err == nil {
		t.Error("double Release should fail on the mock")
	}
	if cam.Outstanding() != 0 || cam.Captures() != 1 {
		t.Errorf("outstanding=%d captures=%d, want 0/1", cam.Outstanding(), cam.Captures())
	}
}

func TestMock_FailAndDrop(t *testing.T) {
	cam := NewMock(fixedMono(time.Second), 0, 0)

	busy := errors.New("device busy")
	cam.FailWith(busy)
	if _, err := cam.SwitchAndCapture(context.Background()); !errors.Is(err, busy) {
		t.Errorf("err = %v, want %v", err, busy)
	}
	cam.FailWith(nil)

	cam.DropTimestamp(true)
	req, err := cam.SwitchAndCapture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer req.Release()
	if _, ok := req.Metadata()["SensorTimestamp"]; ok {
		t.Error("SensorTimestamp should be absent")
	}
}

func TestMock_CancelledContext(t *testing.T) {
	cam := NewMock(fixedMono(time.Second), 16, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cam.SwitchAndCapture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	cases := []struct {
		typ     string
		want    string
		wantErr bool
	}{
		{config.CameraRPiCam, "*camera.RPiCam", false},
		{config.CameraMock, "*camera.Mock", false},
		{"nikon_d90_gpio", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			cfg := &config.Config{Camera: config.CameraConfig{Type: tc.typ}}
			cam, err := NewFromConfig(cfg, fixedMono(0))
			if tc.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var _ Camera = cam // compile-time check
			if got := typeName(cam); got != tc.want {
				t.Errorf("type = %s, want %s", got, tc.want)
			}
		})
	}
}

func typeName(c Camera) string {
	switch c.(type) {
	case *RPiCam:
		return "*camera.RPiCam"
	case *Mock:
		return "*camera.Mock"
	}
	return "unknown"
}
