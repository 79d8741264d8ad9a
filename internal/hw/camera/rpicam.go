package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/cjeanneret/PiSnap/internal/debug"
)

// RPiCamConfig configures the rpicam-still backend.
type RPiCamConfig struct {
	Command      string        // rpicam-still or libcamera-still
	WidthPx      int           // 0 = full sensor resolution
	HeightPx     int           // 0 = full sensor resolution
	Quality      int           // JPEG quality 1-100
	Timeout      time.Duration // upper bound for one capture
	MaxImageSize datasize.ByteSize
}

// RPiCam drives the Raspberry Pi camera through the libcamera still app.
// Each capture runs the app once with --immediate, which configures the
// sensor for the still mode, grabs a single frame and writes the JPEG and
// its metadata (JSON) to a per-request temp directory.
type RPiCam struct {
	cfg    RPiCamConfig
	mu     sync.Mutex
	closed bool

	// run executes the still app; replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewRPiCam creates the rpicam-still backend.
func NewRPiCam(cfg RPiCamConfig) *RPiCam {
	if cfg.Command == "" {
		cfg.Command = "rpicam-still"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RPiCam{cfg: cfg, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Args returns the still app arguments for a capture into dir.
func (r *RPiCam) Args(dir string) []string {
	args := []string{
		"--nopreview",
		"--immediate",
		"--output", filepath.Join(dir, "still.jpg"),
		"--metadata", filepath.Join(dir, "metadata.json"),
		"--metadata-format", "json",
		"--quality", strconv.Itoa(r.cfg.Quality),
	}
	if r.cfg.WidthPx > 0 && r.cfg.HeightPx > 0 {
		args = append(args,
			"--width", strconv.Itoa(r.cfg.WidthPx),
			"--height", strconv.Itoa(r.cfg.HeightPx))
	}
	return args
}

// SwitchAndCapture runs one still capture.
func (r *RPiCam) SwitchAndCapture(ctx context.Context) (Request, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	dir, err := os.MkdirTemp("", "pisnap-")
	if err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	req := &fileRequest{dir: dir}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	args := r.Args(dir)
	debug.Verbose("Camera: %s %v", r.cfg.Command, args)
	start := time.Now()
	out, err := r.run(ctx, r.cfg.Command, args...)
	if err != nil {
		_ = req.Release()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", r.cfg.Command, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", r.cfg.Command, err, bytes.TrimSpace(out))
	}
	debug.Verbose("Camera: still captured in %v", time.Since(start))

	if err := req.load(r.cfg.MaxImageSize); err != nil {
		_ = req.Release()
		return nil, err
	}
	return req, nil
}

// Close marks the backend closed. The still app holds the camera only while
// a capture runs, so there is nothing else to free.
func (r *RPiCam) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// fileRequest is a capture whose outputs live in a temp directory.
type fileRequest struct {
	dir   string
	image []byte
	md    Metadata
	once  sync.Once
	err   error
}

func (f *fileRequest) load(limit datasize.ByteSize) error {
	imgPath := filepath.Join(f.dir, "still.jpg")
	info, err := os.Stat(imgPath)
	if err != nil {
		return fmt.Errorf("read still: %w", err)
	}
	if limit > 0 && uint64(info.Size()) > limit.Bytes() {
		return fmt.Errorf("still is %s, larger than max_image_size %s",
			datasize.ByteSize(info.Size()).HR(), limit.HR())
	}
	if f.image, err = os.ReadFile(imgPath); err != nil {
		return fmt.Errorf("read still: %w", err)
	}

	// A missing metadata file leaves Metadata empty; the resolver reports it.
	f.md = Metadata{}
	data, err := os.ReadFile(filepath.Join(f.dir, "metadata.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&f.md); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

func (f *fileRequest) Image() []byte      { return f.image }
func (f *fileRequest) Metadata() Metadata { return f.md }

// Release removes the temp directory. Later calls return the first result.
func (f *fileRequest) Release() error {
	f.once.Do(func() {
		f.err = os.RemoveAll(f.dir)
	})
	return f.err
}
