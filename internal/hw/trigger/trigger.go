// Package trigger drives the physical shutter button and the busy LED.
package trigger

import (
	"context"
	"time"

	"github.com/cjeanneret/PiSnap/internal/debug"
	"github.com/cjeanneret/PiSnap/internal/hw/gpio"
)

// ButtonConfig holds the hardware configuration for a push button.
type ButtonConfig struct {
	Pin      int           // BCM pin, wired to GND through the switch (active LOW)
	Poll     time.Duration // sampling period. 0 = 10ms
	Debounce time.Duration // level must be stable this long. 0 = 50ms
}

// Button reports debounced presses of a push button.
type Button struct {
	gpio gpio.Driver
	cfg  ButtonConfig
}

// NewButton configures pin as an input with pull-up.
func NewButton(g gpio.Driver, cfg ButtonConfig) *Button {
	_ = g.SetupPin(cfg.Pin, gpio.InputPullUp)
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 50 * time.Millisecond
	}
	return &Button{gpio: g, cfg: cfg}
}

// Watch polls the button until ctx is done and calls onPress once per press,
// on the falling edge after the level has been LOW for the debounce time.
// Holding the button down does not repeat. Read errors are logged and polling goes on.
func (b *Button) Watch(ctx context.Context, onPress func()) error {
	debug.Verbose("Button: watching pin %d (poll=%v, debounce=%v)", b.cfg.Pin, b.cfg.Poll, b.cfg.Debounce)

	ticker := time.NewTicker(b.cfg.Poll)
	defer ticker.Stop()

	stable := gpio.High // released
	candidate := stable
	var since time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			level, err := b.gpio.ReadPin(b.cfg.Pin)
			if err != nil {
				debug.Error(err)
				continue
			}
			if level != candidate {
				candidate = level
				since = now
				continue
			}
			if candidate == stable || now.Sub(since) < b.cfg.Debounce {
				continue
			}
			stable = candidate
			if stable == gpio.Low {
				debug.Live("Button: pressed (pin %d)", b.cfg.Pin)
				onPress()
			}
		}
	}
}

// LED is a status LED, lit by driving its pin HIGH.
type LED struct {
	gpio gpio.Driver
	pin  int
}

// NewLED configures pin as an output and switches the LED off.
func NewLED(g gpio.Driver, pin int) *LED {
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)
	return &LED{gpio: g, pin: pin}
}

// On lights the LED.
func (l *LED) On() error {
	return l.gpio.WritePin(l.pin, gpio.High)
}

// Off switches the LED off.
func (l *LED) Off() error {
	return l.gpio.WritePin(l.pin, gpio.Low)
}

// Blink flashes the LED n times with the given period and leaves it off.
// If ctx is done first, Blink returns ctx.Err() without touching the pin again.
func (l *LED) Blink(ctx context.Context, n int, period time.Duration) error {
	for i := 0; i < n; i++ {
		if err := l.On(); err != nil {
			return err
		}
		if err := sleep(ctx, period/2); err != nil {
			return err
		}
		if err := l.Off(); err != nil {
			return err
		}
		if err := sleep(ctx, period/2); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
