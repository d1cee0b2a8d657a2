package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetLevelMapsServerModes(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"release": zerolog.InfoLevel,
		"test":    zerolog.WarnLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for mode, want := range cases {
		SetLevel(mode)
		if got := zerolog.GlobalLevel(); got != want {
			t.Fatalf("SetLevel(%q) global level = %s, want %s", mode, got, want)
		}
	}
}

func TestNewWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info().Str("download_id", "abc").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"download_id":"abc"`) {
		t.Fatalf("log output missing field: %s", out)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Fatalf("log output missing message: %s", out)
	}
}
