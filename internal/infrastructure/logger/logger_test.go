package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevel(t *testing.T) {
	Setup("debug")
	if got := zerolog.GlobalLevel(); got != zerolog.DebugLevel {
		t.Errorf("want debug, got %s", got)
	}

	Setup("nonsense")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("garbage level must fall back to info, got %s", got)
	}

	Setup("")
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("empty level must fall back to info, got %s", got)
	}
}
