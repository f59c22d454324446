package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Service
	if len(cfg.Service.Endpoints) == 0 {
		errs = append(errs, errors.New("service.endpoints needs at least one endpoint"))
	}
	endpointsSeen := make(map[string]int, len(cfg.Service.Endpoints))
	for i, ep := range cfg.Service.Endpoints {
		prefix := fmt.Sprintf("service.endpoints[%d]", i)
		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := endpointsSeen[ep.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of service.endpoints[%d]", prefix, ep.Name, prev))
			}
			endpointsSeen[ep.Name] = i
		}
		if err := validateWebSocketURL(ep.URL); err != nil {
			errs = append(errs, fmt.Errorf("%s.url: %w", prefix, err))
		}
	}
	if cfg.Service.Scene == "" {
		errs = append(errs, errors.New("service.scene is required"))
	}
	if cfg.Service.Token == "" {
		slog.Warn("service.token is empty; the handshake is sent without authorization")
	}
	if cfg.Service.MaxSent < 0 {
		errs = append(errs, fmt.Errorf("service.max_sent %d must not be negative", cfg.Service.MaxSent))
	}
	if cfg.Service.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("service.write_timeout %s must not be negative", cfg.Service.WriteTimeout))
	}
	rc := cfg.Service.Reconnect
	if rc.MaxRetries < 0 || rc.Backoff < 0 || rc.MaxBackoff < 0 {
		errs = append(errs, errors.New("service.reconnect values must not be negative"))
	}
	if rc.Backoff > 0 && rc.MaxBackoff > 0 && rc.MaxBackoff < rc.Backoff {
		errs = append(errs, fmt.Errorf("service.reconnect.max_backoff %s is below backoff %s", rc.MaxBackoff, rc.Backoff))
	}

	// Characters
	if len(cfg.Characters) == 0 {
		slog.Warn("no characters configured; nothing will be played")
	}
	brainsSeen := make(map[string]int, len(cfg.Characters))
	namesSeen := make(map[string]int, len(cfg.Characters))
	for i, c := range cfg.Characters {
		prefix := fmt.Sprintf("characters[%d]", i)
		if c.BrainName == "" {
			errs = append(errs, fmt.Errorf("%s.brain_name is required", prefix))
		} else {
			if prev, ok := brainsSeen[c.BrainName]; ok {
				errs = append(errs, fmt.Errorf("%s.brain_name %q is a duplicate of characters[%d]", prefix, c.BrainName, prev))
			}
			brainsSeen[c.BrainName] = i
		}
		if c.GivenName != "" {
			if prev, ok := namesSeen[c.GivenName]; ok {
				slog.Warn("two characters share a given name; selection by name picks the first",
					"given_name", c.GivenName, "first", prev, "second", i)
			}
			namesSeen[c.GivenName] = i
		}
	}

	// Interaction
	ic := cfg.Interaction
	if ic.SelectionMode != "" && !ic.SelectionMode.IsValid() {
		errs = append(errs, fmt.Errorf("interaction.selection_mode %q is invalid; valid values: manual, sight_angle", ic.SelectionMode))
	}
	if ic.MicMode != "" && !ic.MicMode.IsValid() {
		errs = append(errs, fmt.Errorf("interaction.mic_mode %q is invalid; valid values: open_mic, expect_audio_end", ic.MicMode))
	}
	if ic.TextSpeedMultiplier != nil && *ic.TextSpeedMultiplier < 0 {
		errs = append(errs, fmt.Errorf("interaction.text_speed_multiplier %.3f must not be negative", *ic.TextSpeedMultiplier))
	}
	if ic.CancelDelay < 0 || ic.TickInterval < 0 || ic.AutoTurnDelay < 0 {
		errs = append(errs, errors.New("interaction durations must not be negative"))
	}
	if ic.MaxItemCount < 0 {
		errs = append(errs, fmt.Errorf("interaction.max_item_count %d must not be negative", ic.MaxItemCount))
	}
	if ic.AutoChat && !ic.GroupChat {
		errs = append(errs, errors.New("interaction.auto_chat requires interaction.group_chat"))
	}

	// History
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; dialogue history will not be kept")
	}
	if cfg.History.Buffer < 0 {
		errs = append(errs, fmt.Errorf("history.buffer %d must not be negative", cfg.History.Buffer))
	}

	return errors.Join(errs...)
}

// validateWebSocketURL checks that raw is an absolute ws:// or wss:// URL.
func validateWebSocketURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("scheme %q is invalid; valid values: ws, wss", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
