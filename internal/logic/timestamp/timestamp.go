// Package timestamp turns sensor timestamps, which count nanoseconds on the
// monotonic clock since boot, into wall-clock instants and picture filenames.
package timestamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/samber/lo"
)

// SensorTimestampKey is the capture metadata field holding the sensor timestamp.
const SensorTimestampKey = "SensorTimestamp"

// Layout is the time layout used for picture filenames.
const Layout = "20060102_150405"

// Ext is the picture file extension.
const Ext = ".jpg"

// FilenamePattern matches every filename produced by Filename.
var FilenamePattern = regexp.MustCompile(`^\d{8}_\d{6}\.jpg$`)

var (
	// ErrMissingMetadata is returned when the sensor timestamp field is absent.
	ErrMissingMetadata = errors.New("sensor timestamp missing from capture metadata")
	// ErrInvalidTimestamp is returned when the field is present but unusable.
	ErrInvalidTimestamp = errors.New("invalid sensor timestamp")
)

// Clock samples the wall clock and the monotonic clock the sensor counts on.
type Clock interface {
	Now() time.Time
	Monotonic() (time.Duration, error)
}

// Resolver reconciles sensor timestamps with the host wall clock.
// Both clocks are sampled on every call, so wall-clock adjustments made while
// the process runs are picked up.
type Resolver struct {
	clock Clock
}

// NewResolver creates a Resolver. A nil clock means SystemClock.
func NewResolver(c Clock) *Resolver {
	if c == nil {
		c = SystemClock{}
	}
	return &Resolver{clock: c}
}

// Resolve converts a sensor timestamp (ns on the monotonic clock) to a wall-clock instant.
//
//	boot    = wallNow - monotonicNow
//	capture = boot + sensorNs
func (r *Resolver) Resolve(sensorNs int64) (time.Time, error) {
	if sensorNs < 0 {
		return time.Time{}, fmt.Errorf("%w: negative value %d", ErrInvalidTimestamp, sensorNs)
	}
	wall := r.clock.Now()
	mono, err := r.clock.Monotonic()
	if err != nil {
		return time.Time{}, fmt.Errorf("read monotonic clock: %w", err)
	}
	boot := wall.Round(0).Add(-mono)
	return boot.Add(time.Duration(sensorNs)), nil
}

// ResolveMetadata looks up SensorTimestampKey in md and resolves it.
func (r *Resolver) ResolveMetadata(md map[string]any) (time.Time, error) {
	v, ok := md[SensorTimestampKey]
	if !ok || v == nil {
		keys := lo.Keys(md)
		slices.Sort(keys)
		return time.Time{}, fmt.Errorf("%w (have %v)", ErrMissingMetadata, keys)
	}
	ns, err := toNanos(v)
	if err != nil {
		return time.Time{}, err
	}
	return r.Resolve(ns)
}

func toNanos(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidTimestamp, n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n >= math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%w: %v is not an integral nanosecond count", ErrInvalidTimestamp, n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidTimestamp, n.String(), err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, v)
	}
}

// Filename formats t as YYYYMMDD_HHMMSS.jpg. Sub-second precision is dropped.
func Filename(t time.Time) string {
	return t.Format(Layout) + Ext
}
