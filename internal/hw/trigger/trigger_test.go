package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cjeanneret/PiSnap/internal/hw/gpio"
)

// recordingDriver records GPIO writes for verification.
type recordingDriver struct {
	gpio.MockDriver
	mu     sync.Mutex
	writes []gpio.Level
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	d.writes = append(d.writes, level)
	d.mu.Unlock()
	return d.MockDriver.WritePin(pin, level)
}

func (d *recordingDriver) writeLevels() []gpio.Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpio.Level(nil), d.writes...)
}

func watch(t *testing.T, b *Button) (*atomic.Int32, context.CancelFunc, chan error) {
	t.Helper()
	var presses atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Watch(ctx, func() { presses.Add(1) }) }()
	return &presses, cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestButton_PressAndRelease(t *testing.T) {
	drv := &gpio.MockDriver{}
	b := NewButton(drv, ButtonConfig{Pin: 17, Poll: time.Millisecond, Debounce: 5 * time.Millisecond})
	presses, cancel, done := watch(t, b)
	defer cancel()

	drv.Set(17, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 1 })

	// Holding does not repeat.
	time.Sleep(30 * time.Millisecond)
	if presses.Load() != 1 {
		t.Errorf("presses = %d while held, want 1", presses.Load())
	}

	drv.Set(17, gpio.High)
	time.Sleep(20 * time.Millisecond)
	drv.Set(17, gpio.Low)
	waitFor(t, func() bool { return presses.Load() == 2 })

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Watch returned %v, want context.Canceled", err)
	}
}

func TestButton_IgnoresBounce(t *testing.T) {
	drv := &gpio.MockDriver{}
	b := NewButton(drv, ButtonConfig{Pin: 17, Poll: time.Millisecond, Debounce: 50 * time.Millisecond})
	presses, cancel, _ := watch(t, b)
	defer cancel()

	// Glitches shorter than the debounce time.
	for i := 0; i < 5; i++ {
		drv.Set(17, gpio.Low)
		time.Sleep(3 * time.Millisecond)
		drv.Set(17, gpio.High)
		time.Sleep(3 * time.Millisecond)
	}
	time.Sleep(80 * time.Millisecond)
	if presses.Load() != 0 {
		t.Errorf("presses = %d after bounce, want 0", presses.Load())
	}
}

func TestNewButton_Defaults(t *testing.T) {
	b := NewButton(&gpio.MockDriver{}, ButtonConfig{Pin: 4})
	if b.cfg.Poll != 10*time.Millisecond || b.cfg.Debounce != 50*time.Millisecond {
		t.Errorf("defaults = %v/%v, want 10ms/50ms", b.cfg.Poll, b.cfg.Debounce)
	}
}

func TestLED_Sequence(t *testing.T) {
	drv := &recordingDriver{}
	led := NewLED(drv, 27)
	if err := led.On(); err != nil {
		t.Fatal(err)
	}
	if err := led.Off(); err != nil {
		t.Fatal(err)
	}
	if err := led.Blink(context.Background(), 2, time.Millisecond); err != nil {
		t.Fatal(err)
	}

	want := []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low}
	got := drv.writeLevels()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %v, want %v", i, got[i], want[i])
		}
	}
	if drv.Get(27) != gpio.Low {
		t.Error("LED should be off after Blink")
	}
}

func TestLED_BlinkStopsOnCancel(t *testing.T) {
	drv := &recordingDriver{}
	led := NewLED(drv, 27)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- led.Blink(ctx, 100, 20*time.Millisecond) }()

	waitFor(t, func() bool { return len(drv.writeLevels()) >= 2 })
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Blink returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Blink did not stop after cancel")
	}

	n := len(drv.writeLevels())
	time.Sleep(50 * time.Millisecond)
	if got := len(drv.writeLevels()); got != n {
		t.Errorf("pin written %d more times after Blink returned", got-n)
	}
}
