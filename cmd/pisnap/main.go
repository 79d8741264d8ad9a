package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/PiSnap/internal/config"
	"github.com/cjeanneret/PiSnap/internal/debug"
	"github.com/cjeanneret/PiSnap/internal/hw/camera"
	"github.com/cjeanneret/PiSnap/internal/hw/gpio"
	"github.com/cjeanneret/PiSnap/internal/hw/trigger"
	"github.com/cjeanneret/PiSnap/internal/logic/capture"
	"github.com/cjeanneret/PiSnap/internal/logic/timestamp"
	"github.com/cjeanneret/PiSnap/internal/pictures"
	"github.com/cjeanneret/PiSnap/internal/telemetry"
	"github.com/cjeanneret/PiSnap/internal/web"
)

// LED flashes after a failed capture.
const (
	failureBlinks = 3
	blinkPeriod   = 300 * time.Millisecond
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	once := flag.Bool("once", false, "take one picture, print the result as JSON and exit")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Initializing metrics")
	meter, shutdownMetrics, err := telemetry.Setup(ctx, cfg.Metrics.OTLPEndpoint, cfg.MetricsInterval())
	if err != nil {
		log.Fatalf("init metrics failed: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Printf("flushing metrics failed: %v", err)
		}
	}()

	// Initialize camera
	debug.Step(2, "Initializing camera")
	cam, err := camera.NewFromConfig(cfg, timestamp.SystemClock{})
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	defer cam.Close()
	debug.Value("Camera type", cfg.Camera.Type)
	debug.PrintStruct("Camera config", cfg.Camera)

	debug.Step(3, "Opening pictures directory")
	store, err := pictures.New(cfg.Output.PicturesDir, pictures.Policy(cfg.Output.CollisionPolicy))
	if err != nil {
		log.Fatalf("init pictures store failed: %v", err)
	}
	debug.Value("Pictures dir", store.Dir())
	debug.Value("Collision policy", store.Policy())

	captureMetrics, err := capture.NewMetrics(meter)
	if err != nil {
		log.Fatalf("init capture metrics failed: %v", err)
	}
	orch := capture.NewOrchestrator(cam, timestamp.NewResolver(timestamp.SystemClock{}), store, capture.Options{
		Metrics:       captureMetrics,
		FocusEstimate: cfg.Defaults.FocusEstimate,
	})

	if *once {
		res := orch.Capture(ctx)
		if err := printResult(os.Stdout, res); err != nil {
			log.Printf("print result: %v", err)
		}
		if !res.OK() {
			exitCode = 1
		}
		return
	}

	if cfg.Trigger.ButtonPin == 0 && webPort.port() == 0 {
		log.Fatalf("nothing to trigger captures: set trigger.button_pin, or pass -web or -once")
	}
	worker := capture.NewWorker(orch)

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(4, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	if cfg.Trigger.LEDPin > 0 {
		led := wireLED(worker, trigger.NewLED(gpioDriver, cfg.Trigger.LEDPin))
		defer led.Stop()
		debug.Value("LED pin", cfg.Trigger.LEDPin)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Trigger.ButtonPin > 0 {
		debug.Value("Button pin", cfg.Trigger.ButtonPin)
		button := trigger.NewButton(gpioDriver, trigger.ButtonConfig{
			Pin:      cfg.Trigger.ButtonPin,
			Poll:     cfg.PollInterval(),
			Debounce: cfg.Debounce(),
		})
		g.Go(func() error {
			return ignoreCanceled(button.Watch(gctx, func() {
				if _, _, err := worker.Start(gctx, "button"); errors.Is(err, capture.ErrBusy) {
					debug.Live("Button: capture already in progress, ignored")
				}
			}))
		})
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		httpMetrics, err := web.NewHTTPMetrics(meter)
		if err != nil {
			log.Fatalf("init HTTP metrics failed: %v", err)
		}
		handlers := web.NewHandlers(broadcaster, worker, store, configView(cfg), cfg.MinCaptureInterval(), web.StaticFS())
		srv := web.NewServer(webAddr, handlers, httpMetrics)
		g.Go(func() error { return srv.Run(gctx) })
	}

	debug.Summary("PiSnap ready")
	if err := g.Wait(); err != nil {
		log.Printf("stopped: %v", err)
		exitCode = 1
	}

	debug.Live("Waiting for in-flight capture")
	worker.Wait()
}

// busyLED lights the LED while a capture runs and blinks it after a failure.
// The failure blink runs in the background and is cut short by the next capture.
type busyLED struct {
	led    *trigger.LED
	worker *capture.Worker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// wireLED hooks led to w. Stop the returned busyLED before closing the GPIO driver.
func wireLED(w *capture.Worker, led *trigger.LED) *busyLED {
	b := &busyLED{led: led, worker: w}
	w.OnStart(b.started)
	w.OnResult(b.finished)
	return b
}

func (b *busyLED) started(string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopBlink()
	if err := b.led.On(); err != nil {
		debug.Error(err)
	}
}

func (b *busyLED) finished(res capture.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// A newer capture already owns the LED.
	if b.worker.Busy() {
		return
	}
	b.stopBlink()
	if err := b.led.Off(); err != nil {
		debug.Error(err)
		return
	}
	if res.OK() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	go func() {
		defer close(done)
		if err := b.led.Blink(ctx, failureBlinks, blinkPeriod); err != nil && !errors.Is(err, context.Canceled) {
			debug.Error(err)
		}
	}()
}

// Stop ends a running failure blink.
func (b *busyLED) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopBlink()
}

// stopBlink cancels the blink and waits for it to let go of the pin. b.mu must be held.
func (b *busyLED) stopBlink() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel, b.done = nil, nil
}

// configView returns the settings shown on the web page.
func configView(cfg *config.Config) web.ConfigView {
	return web.ConfigView{
		PicturesDir:     cfg.Output.PicturesDir,
		CollisionPolicy: cfg.Output.CollisionPolicy,
		CameraType:      cfg.Camera.Type,
		MinIntervalMs:   cfg.Web.MinIntervalMs,
	}
}

// printResult writes res as one line of JSON.
func printResult(w io.Writer, res capture.Result) error {
	return json.NewEncoder(w).Encode(res)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
