package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, level int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(level)
	t.Cleanup(func() {
		Init(LevelOff)
	})
	return &buf
}

func TestInit_OffPrintsNothing(t *testing.T) {
	buf := captureOutput(t, LevelOff)
	Info("hidden")
	Error(errors.New("hidden"))
	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestLevels(t *testing.T) {
	cases := []struct {
		level int
		want  []string
		skip  []string
	}{
		{LevelInfo, []string{"[INFO] info", "[ERROR] boom"}, []string{"[LIVE]", "[VERBOSE]", "[TRACE]"}},
		{LevelLive, []string{"[INFO] info", "[LIVE] live"}, []string{"[VERBOSE]", "[TRACE]"}},
		{LevelVerbose, []string{"[LIVE] live", "[VERBOSE] verbose"}, []string{"[TRACE]", "[GPIO]"}},
		{LevelTrace, []string{"[VERBOSE] verbose", "[TRACE] trace", "[GPIO] WritePin pin=27 value=true"}, nil},
	}
	for _, tc := range cases {
		buf := captureOutput(t, tc.level)
		Info("info")
		Live("live")
		Verbose("verbose")
		Trace("trace")
		GPIO("WritePin", 27, true)
		Error(errors.New("boom"))

		out := buf.String()
		for _, w := range tc.want {
			if !strings.Contains(out, w) {
				t.Errorf("level %d: output missing %q:\n%s", tc.level, w, out)
			}
		}
		for _, s := range tc.skip {
			if strings.Contains(out, s) {
				t.Errorf("level %d: output should not contain %q:\n%s", tc.level, s, out)
			}
		}
	}
}

func TestPrefix(t *testing.T) {
	buf := captureOutput(t, LevelInfo)
	Saved("abc", "/home/pi/Pictures/20240601_095959.jpg")
	if !strings.HasPrefix(buf.String(), "[PiSnap] ") {
		t.Errorf("missing prefix: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "Capture abc saved as /home/pi/Pictures/20240601_095959.jpg") {
		t.Errorf("unexpected Saved output: %q", buf.String())
	}
}

func TestIsEnabled(t *testing.T) {
	captureOutput(t, LevelLive)
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelLive) {
		t.Error("info and live should be enabled at level 2")
	}
	if IsEnabled(LevelVerbose) {
		t.Error("verbose should be disabled at level 2")
	}
}

func TestFmt(t *testing.T) {
	captureOutput(t, LevelOff)
	if s := Fmt("%d", 42); s != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", s)
	}
	captureOutput(t, LevelInfo)
	if s := Fmt("%d", 42); s != "42" {
		t.Errorf("Fmt = %q, want 42", s)
	}
}
