package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/character"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/session"
)

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  bool
	}{
		{config.LogDebug, true},
		{config.LogInfo, true},
		{config.LogWarn, true},
		{config.LogError, true},
		{"verbose", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestMicMode_IsValid(t *testing.T) {
	t.Parallel()
	if !config.MicOpen.IsValid() || !config.MicExpectEnd.IsValid() {
		t.Error("known mic modes should be valid")
	}
	if config.MicMode("push_to_talk").IsValid() {
		t.Error("unknown mic mode should be invalid")
	}
}

func TestInteractionConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	t.Run("zero values", func(t *testing.T) {
		t.Parallel()
		got := config.InteractionConfig{}.WithDefaults()
		if got.AutoProceed == nil || !*got.AutoProceed {
			t.Error("AutoProceed should default to true")
		}
		if got.TextSpeedMultiplier == nil || *got.TextSpeedMultiplier != 0.02 {
			t.Errorf("TextSpeedMultiplier = %v, want 0.02", got.TextSpeedMultiplier)
		}
		if got.CancelDelay != time.Second {
			t.Errorf("CancelDelay = %s, want 1s", got.CancelDelay)
		}
		if got.MaxItemCount != 100 {
			t.Errorf("MaxItemCount = %d, want 100", got.MaxItemCount)
		}
		if got.TickInterval != 100*time.Millisecond {
			t.Errorf("TickInterval = %s, want 100ms", got.TickInterval)
		}
		if config.DefaultTickInterval != session.DefaultTickInterval {
			t.Errorf("config tick default %s differs from session default %s",
				config.DefaultTickInterval, session.DefaultTickInterval)
		}
		if got.AutoTurnDelay != config.DefaultAutoTurnDelay {
			t.Errorf("AutoTurnDelay = %s, want %s", got.AutoTurnDelay, config.DefaultAutoTurnDelay)
		}
		if got.SelectionMode != character.SelectManual {
			t.Errorf("SelectionMode = %q, want manual", got.SelectionMode)
		}
		if got.MicMode != config.MicOpen {
			t.Errorf("MicMode = %q, want open_mic", got.MicMode)
		}
	})

	t.Run("explicit values kept", func(t *testing.T) {
		t.Parallel()
		off := false
		zero := 0.0
		in := config.InteractionConfig{
			AutoProceed:         &off,
			TextSpeedMultiplier: &zero,
			CancelDelay:         250 * time.Millisecond,
			SelectionMode:       character.SelectSightAngle,
		}
		got := in.WithDefaults()
		if *got.AutoProceed {
			t.Error("explicit AutoProceed=false was overwritten")
		}
		if *got.TextSpeedMultiplier != 0 {
			t.Error("explicit TextSpeedMultiplier=0 was overwritten")
		}
		if got.CancelDelay != 250*time.Millisecond {
			t.Errorf("CancelDelay = %s, want 250ms", got.CancelDelay)
		}
		if got.SelectionMode != character.SelectSightAngle {
			t.Errorf("SelectionMode = %q, want sight_angle", got.SelectionMode)
		}
	})
}
