package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/boristopalov/abby/internal/agent"
	"github.com/boristopalov/abby/internal/channel"
	"github.com/boristopalov/abby/internal/config"
	"github.com/boristopalov/abby/internal/daw"
	"github.com/boristopalov/abby/internal/events"
	"github.com/boristopalov/abby/internal/llm"
	"github.com/boristopalov/abby/internal/logging"
	"github.com/boristopalov/abby/internal/observer"
	"github.com/boristopalov/abby/internal/osc"
	"github.com/boristopalov/abby/internal/rpc"
	"github.com/boristopalov/abby/internal/session"
	"github.com/boristopalov/abby/internal/store"
)

// run wires the process-wide components (osc -> rpc -> daw -> llm ->
// store -> session registry -> channel; each client connection then
// builds its session's mixer mirror, observer, event bus, tool catalog
// and agent loop) and blocks until ctx is canceled, then shuts down in
// the order
// spec.md §5 requires: close the client channel, unsubscribe every
// session's parameters best-effort, then close the OSC transport.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		LogFile: cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lockPath := filepath.Join(cfg.DataDir, "abbyd.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("another abbyd instance is already running (lock held at %s)", lockPath)
	}
	defer lock.Unlock()

	transport, err := osc.Listen(osc.Config{
		LocalPort:  cfg.OSC.LocalPort,
		RemoteHost: cfg.OSC.RemoteHost,
		RemotePort: cfg.OSC.RemotePort,
	}, logger)
	if err != nil {
		return fmt.Errorf("bind OSC transport: %w", err)
	}
	defer transport.Close()

	shim := rpc.New(transport, logger)
	bridge := daw.New(shim, cfg.Timeouts)

	// Liveness failure at startup is fatal (spec.md §8 scenario 5).
	liveCtx, cancelLive := context.WithTimeout(ctx, cfg.Timeouts.Liveness()+time.Second)
	live := bridge.IsLive(liveCtx)
	cancelLive()
	if !live {
		return fmt.Errorf("DAW did not respond to liveness probe at %s:%d within %s",
			cfg.OSC.RemoteHost, cfg.OSC.RemotePort, cfg.Timeouts.Liveness())
	}
	logger.Info("DAW liveness confirmed", "host", cfg.OSC.RemoteHost, "port", cfg.OSC.RemotePort)

	if cfg.LLM.APIKey() == "" {
		return fmt.Errorf("no API key found in environment variable %s", cfg.LLM.APIKeyEnv)
	}
	llmClient := llm.NewAnthropicClient(cfg.LLM)

	auditStore, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	registry := session.NewRegistry()

	// Fan a DAW-side /live/error notification out to every attached
	// session's bus (SPEC_FULL.md §4): the transport already logs it,
	// this makes it visible to whatever client is listening too.
	transport.On(osc.ErrorAddress, func(msg osc.Message) {
		for _, sess := range registry.All() {
			sess.Bus.Publish(events.Error(fmt.Sprintf("DAW error: %v", msg.Args)))
		}
	})

	deps := channel.Deps{
		Registry:  registry,
		Bridge:    bridge,
		LLMClient: llmClient,
		Prompts:   agent.NewPromptRegistry(),
		Observer: observer.Options{
			Debounce: cfg.Observer.Debounce(),
			Window:   cfg.Observer.HistoryWindow(),
			Logger:   logger,
		},
		BusBuffer: 64,
		Logger:    logger,
		Audit:     auditStore,
	}

	srv, err := channel.Listen(ctx, cfg.Channel.ListenAddress, deps)
	if err != nil {
		return fmt.Errorf("start client channel: %w", err)
	}
	go srv.Serve()
	logger.Info("abbyd started", "channel", cfg.Channel.ListenAddress, "dataDir", cfg.DataDir)

	<-ctx.Done()
	logger.Info("abbyd shutting down")

	if err := srv.Close(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("close client channel", "error", err)
	}
	for _, sess := range registry.All() {
		sess.Observer.Unsubscribe()
	}

	return nil
}
