// Command parley connects a scene of characters to the dialogue service and
// lets you talk to them from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/character"
	"github.com/MrWong99/parley/internal/client"
	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/history"
	"github.com/MrWong99/parley/internal/history/postgres"
	"github.com/MrWong99/parley/internal/interaction"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/session"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "parley.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("parley starting",
		"config", *configPath,
		"version", version,
		"scene", cfg.Service.Scene,
		"endpoints", len(cfg.Service.Endpoints),
		"characters", len(cfg.Characters),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "parley",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := telemetry.Metrics

	// ── History (optional) ────────────────────────────────────────────────────
	var (
		store    *postgres.Store
		recorder *history.Recorder
	)
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		store, err = postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		defer store.Close()
		recorder = history.NewRecorder(store, history.WithBuffer(cfg.History.Buffer))
	}

	// ── Session ───────────────────────────────────────────────────────────────
	ic := cfg.Interaction.WithDefaults()

	reg := character.New(
		character.WithSelectionMode(ic.SelectionMode),
		character.WithEvents(character.Events{
			OnJoined: func(c *character.Character) {
				slog.Debug("character joined", "brain_name", c.BrainName, "given_name", c.GivenName)
			},
			OnConversationUpdated: func(id string) {
				slog.Debug("conversation updated", "conversation_id", id)
			},
		}),
	)

	transport, failover := newTransport(cfg.Service, metrics)
	c := client.New(transport, reg, reg.Directory(),
		client.WithMetrics(metrics),
		client.WithScene(cfg.Service.Scene),
		client.WithMaxSent(cfg.Service.MaxSent),
		client.WithWriteTimeout(cfg.Service.WriteTimeout),
		client.WithGroupChat(ic.GroupChat),
		client.WithAutoChat(ic.AutoChat),
		client.WithReconnect(client.ReconnectorConfig{
			MaxRetries: cfg.Service.Reconnect.MaxRetries,
			Backoff:    cfg.Service.Reconnect.Backoff,
			MaxBackoff: cfg.Service.Reconnect.MaxBackoff,
		}),
		client.WithStatusHandler(func(s client.Status) {
			slog.Info("connection status", "status", s)
		}),
		client.WithErrorHandler(func(err error) {
			slog.Warn("dialogue service error", "err", err)
		}),
	)

	con := newConsole(os.Stdout, reg)
	opts := []session.Option{
		session.WithTickInterval(ic.TickInterval),
		session.WithMetrics(metrics),
		session.WithPresenter(con),
		session.WithPlayerOptions(playerOptions(ic)...),
	}
	if recorder != nil {
		opts = append(opts, session.WithRecorder(recorder))
	}
	if ic.AutoChat {
		opts = append(opts, session.WithAutoTurn(ic.AutoTurnDelay))
	}
	sess := session.New(c, reg, opts...)

	for _, cc := range cfg.Characters {
		if _, err := sess.AddCharacter(cc.BrainName, cc.GivenName); err != nil {
			slog.Error("failed to add character", "brain_name", cc.BrainName, "err", err)
			return 1
		}
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	var watcher *config.Watcher
	if *watch {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			applyReload(config.Diff(old, new), new, &level, sess)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
	}

	// ── Observability server (optional) ───────────────────────────────────────
	var srv *http.Server
	if addr := cfg.Server.ListenAddr; addr != "" {
		checkers := []health.Checker{
			health.Connected("session",
				func() bool { return c.Status() == client.StatusConnected },
				func() string { return c.Status().String() },
			),
		}
		if failover != nil {
			checkers = append(checkers, endpointsChecker(failover))
		}
		if store != nil {
			checkers = append(checkers, health.Ping("history", store))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.MetricsHandler())
		health.New(checkers...).Register(mux)
		srv = &http.Server{
			Addr:              addr,
			Handler:           observe.Middleware(metrics)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if srv != nil {
		g.Go(func() error { return serve(srv, cfg.Server.TLS) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		slog.Info("observability server listening", "addr", srv.Addr)
	}

	// Stdin cannot be interrupted, so the reader stays outside the group.
	go con.readCommands(gctx, os.Stdin, sess, stop)

	fmt.Fprint(os.Stdout, helpText)
	slog.Info("parley ready; press Ctrl+C to quit")

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	exit := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		exit = 1
	}
	if recorder != nil && (recorder.Dropped() > 0 || recorder.Failed() > 0) {
		slog.Warn("history entries lost", "dropped", recorder.Dropped(), "failed", recorder.Failed())
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Wiring helpers ────────────────────────────────────────────────────────────

// newTransport returns a WebSocket transport for a single endpoint, or a
// failover over all endpoints when several are configured. The failover is
// also returned so its breaker states can be reported.
func newTransport(sc config.ServiceConfig, metrics *observe.Metrics) (client.Transport, *client.Failover) {
	header := http.Header{}
	if sc.Token != "" {
		header.Set("Authorization", "Bearer "+sc.Token)
	}
	endpoints := make([]client.Endpoint, 0, len(sc.Endpoints))
	for _, ep := range sc.Endpoints {
		endpoints = append(endpoints, client.Endpoint{
			Name: ep.Name,
			Transport: &client.WebSocket{
				URL:       ep.URL,
				Header:    header,
				ReadLimit: sc.ReadLimit,
			},
		})
	}
	if len(endpoints) == 1 {
		return endpoints[0].Transport, nil
	}
	f := client.NewFailover(resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  sc.CircuitBreaker.MaxFailures,
			ResetTimeout: sc.CircuitBreaker.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}, endpoints...)
	return f, f
}

// endpointsChecker fails readiness while every endpoint breaker is open.
func endpointsChecker(f *client.Failover) health.Checker {
	return health.Checker{
		Name: "endpoints",
		Check: func(context.Context) error {
			states := f.States()
			open := make([]string, 0, len(states))
			for _, st := range states {
				if st.State != resilience.StateOpen {
					return nil
				}
				open = append(open, st.Name)
			}
			return fmt.Errorf("all circuits open: %s", strings.Join(open, ", "))
		},
	}
}

// playerOptions maps the defaulted interaction section to player options.
func playerOptions(ic config.InteractionConfig) []interaction.Option {
	return []interaction.Option{
		interaction.WithAutoProceed(*ic.AutoProceed),
		interaction.WithTextSpeedMultiplier(*ic.TextSpeedMultiplier),
		interaction.WithCancelDelay(ic.CancelDelay),
		interaction.WithMaxItemCount(ic.MaxItemCount),
	}
}

// applyReload applies the hot-reloadable parts of a config change.
func applyReload(d config.ConfigDiff, cfg *config.Config, level *slog.LevelVar, sess *session.Session) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PacingChanged {
		sess.SetPlayerOptions(playerOptions(cfg.Interaction.WithDefaults())...)
		slog.Info("interaction pacing changed; applies to characters added from now on")
	}
	for _, ch := range d.CharacterChanges {
		switch {
		case ch.Removed:
			sess.RemoveCharacter(ch.BrainName)
		case ch.Added:
			if _, err := sess.AddCharacter(ch.BrainName, ch.GivenName); err != nil {
				slog.Warn("reload: add character", "brain_name", ch.BrainName, "err", err)
			}
		case ch.GivenNameChanged:
			sess.RemoveCharacter(ch.BrainName)
			if _, err := sess.AddCharacter(ch.BrainName, ch.GivenName); err != nil {
				slog.Warn("reload: rename character", "brain_name", ch.BrainName, "err", err)
			}
		}
	}
}

func serve(srv *http.Server, tls *config.TLSConfig) error {
	var err error
	if tls != nil {
		err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
