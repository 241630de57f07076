// Package cli assembles a running engine from configuration. Every drover
// command goes through the same factory, so a conversation handled over
// HTTP, MCP, or the terminal sees identical storage, routing, and events.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/droverlabs/drover/internal/config"
	"github.com/droverlabs/drover/internal/logging"
	"github.com/droverlabs/drover/pkg/adapters/file"
	"github.com/droverlabs/drover/pkg/adapters/memory"
	"github.com/droverlabs/drover/pkg/adapters/nats"
	"github.com/droverlabs/drover/pkg/adapters/process"
	"github.com/droverlabs/drover/pkg/adapters/redis"
	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
	"github.com/droverlabs/drover/pkg/emitter"
	"github.com/droverlabs/drover/pkg/executor"
	"github.com/droverlabs/drover/pkg/persistence/middleware"
	"github.com/droverlabs/drover/pkg/ports"
	"github.com/droverlabs/drover/pkg/routing"
	"github.com/droverlabs/drover/pkg/supervisor"
)

// Runtime bundles the assembled engine with everything a command needs to
// serve and tear it down.
type Runtime struct {
	Supervisor *supervisor.Supervisor
	Metrics    *prometheus.Registry

	closers []func()
}

// Close releases the runtime's resources in reverse assembly order.
func (r *Runtime) Close() {
	r.Supervisor.Close()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// NewLogger builds the application logger from config. Debug forces the
// debug level regardless of the configured one. Logs go to stderr so stdout
// stays clean for chat output and command results.
func NewLogger(cfg config.Logging, debug bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}
	if cfg.Format == "json" {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewRuntime wires storage, capabilities, routing, and events into a
// supervisor according to the configuration. Extra options land last, so
// commands can layer hooks on top of the configured assembly.
func NewRuntime(cfg *config.Config, logger *slog.Logger, extra ...supervisor.Option) (*Runtime, error) {
	rt := &Runtime{Metrics: prometheus.NewRegistry()}
	rt.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(supervisor.NewMetrics(rt.Metrics)),
		supervisor.WithRepeatBound(cfg.Routing.RepeatBound),
		supervisor.WithRoutingTimeout(cfg.Routing.Timeout.Std()),
	}

	store, err := buildStorage(cfg, rt, &opts)
	if err != nil {
		return nil, err
	}
	store, err = wrapStorage(cfg, store)
	if err != nil {
		return nil, err
	}

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		supervisor.WithRegistry(executor.NewDefaultRegistry(gateway)),
		supervisor.WithHarness(executor.NewHarness(
			executor.WithLogger(logger),
			executor.WithRunTimeout(cfg.Executors.Timeout.Std()),
		)),
	)

	if cfg.Routing.Policy == config.PolicyCompletion {
		completer := capability.NewHTTPCompleter(nil, cfg.Routing.Completion.Endpoint, cfg.Routing.Completion.Model)
		capability.RegisterCompleter(gateway, completer)
		opts = append(opts, supervisor.WithPolicy(routing.NewModelPolicy(gateway)))
	}

	events, err := buildEmitter(cfg, logger, rt)
	if err != nil {
		return nil, err
	}
	opts = append(opts, supervisor.WithEmitter(events))
	opts = append(opts, extra...)

	sup, err := supervisor.New(store, opts...)
	if err != nil {
		return nil, err
	}
	rt.Supervisor = sup
	return rt, nil
}

// buildStorage creates the conversation and checkpoint stores for the
// configured backend. Redis shares one client across the store, the
// checkpoint store, and the turn locker.
func buildStorage(cfg *config.Config, rt *Runtime, opts *[]supervisor.Option) (ports.ConversationStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })

		redisOpts := []redis.Option{redis.WithPrefix(cfg.Storage.Redis.Prefix)}
		if ttl := cfg.Storage.Redis.TTL.Std(); ttl > 0 {
			redisOpts = append(redisOpts, redis.WithTTL(ttl))
		}
		cpStore := wrapCheckpoints(cfg, redis.NewCheckpointStore(client, redisOpts...))
		*opts = append(*opts,
			supervisor.WithCheckpointStore(cpStore),
			supervisor.WithDistributedLocker(redis.NewLocker(client, redisOpts...)),
		)
		return redis.NewFromClient(client, redisOpts...), nil

	case config.StorageFile:
		root := cfg.Storage.File.Root
		cpStore := wrapCheckpoints(cfg, file.NewCheckpointStore(root))
		*opts = append(*opts, supervisor.WithCheckpointStore(cpStore))
		return file.NewStore(root), nil

	default:
		cpStore := wrapCheckpoints(cfg, memory.NewCheckpointStore())
		*opts = append(*opts, supervisor.WithCheckpointStore(cpStore))
		return memory.NewStore(), nil
	}
}

// wrapStorage applies the at-rest middleware: encrypt inside, mask outside,
// so the masker sees plaintext.
func wrapStorage(cfg *config.Config, store ports.ConversationStore) (ports.ConversationStore, error) {
	active, fallbacks, err := cfg.Security.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		store = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		})(store)
	}
	if len(cfg.Security.PIIPatterns) > 0 {
		for _, p := range cfg.Security.PIIPatterns {
			if _, err := regexp.Compile(p); err != nil {
				return nil, fmt.Errorf("security.pii_patterns %q: %w", p, err)
			}
		}
		store = middleware.NewPIIMiddleware(cfg.Security.PIIPatterns)(store)
	}
	return store, nil
}

func wrapCheckpoints(cfg *config.Config, store ports.CheckpointStore) ports.CheckpointStore {
	// Keys were validated by wrapStorage's caller through config.Validate.
	active, fallbacks, err := cfg.Security.Keys()
	if err != nil || active == nil {
		return store
	}
	return middleware.NewCheckpointEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    active,
		FallbackKeys: fallbacks,
	})(store)
}

// buildGateway registers the stock capabilities plus everything the config
// allow-lists: outbound HTTP prefixes and local process commands.
func buildGateway(cfg *config.Config, logger *slog.Logger) (*capability.Gateway, error) {
	gateway := capability.NewGateway(capability.WithLogger(logger))

	datasets := afero.NewBasePathFs(afero.NewOsFs(), cfg.Executors.DatasetDir)
	capability.RegisterBuiltins(gateway, datasets)

	if len(cfg.Executors.APIAllowList) > 0 {
		capability.RegisterAPICaller(gateway, nil, cfg.Executors.APIAllowList)
	}

	if len(cfg.Executors.Processes) > 0 {
		runner := process.NewRunner(process.WithLogger(logger))
		for _, pc := range cfg.Executors.Processes {
			if pc.Capability == "" || pc.Command == "" {
				return nil, fmt.Errorf("executors.processes entries need both capability and command, got %+v", pc)
			}
			runner.Register(pc.Capability, pc.Command, pc.Args...)
		}
		runner.Bind(gateway)
	}

	return gateway, nil
}

func buildEmitter(cfg *config.Config, logger *slog.Logger, rt *Runtime) (*emitter.Emitter, error) {
	emitterOpts := []emitter.Option{
		emitter.WithLogger(logger),
		emitter.WithBuffer(cfg.Events.Buffer),
	}
	if url := cfg.Events.NATS.URL; url != "" {
		sink, err := nats.New(url, nats.WithPrefix(cfg.Events.NATS.Prefix))
		if err != nil {
			return nil, fmt.Errorf("events.nats: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = sink.Close() })
		emitterOpts = append(emitterOpts, emitter.WithSink(sink))
	}
	return emitter.New(emitterOpts...), nil
}

// DebugHooks logs every step-loop transition at debug level.
func DebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(ctx context.Context, state *domain.ConversationState) {
			logger.Debug("turn start", "conversation_id", state.ID, "step", state.Step)
		},
		OnDecision: func(ctx context.Context, conversationID string, decision domain.RoutingDecision) {
			logger.Debug("routing decision",
				"conversation_id", conversationID,
				"actor", decision.Actor,
				"step", decision.Step,
				"rationale", decision.Rationale)
		},
		OnExecutorStart: func(ctx context.Context, conversationID, executor string, step uint64) {
			logger.Debug("executor start", "conversation_id", conversationID, "executor", executor, "step", step)
		},
		OnExecutorEnd: func(ctx context.Context, conversationID, executor string, step uint64, err error) {
			if err != nil {
				logger.Debug("executor end (failed)", "conversation_id", conversationID, "executor", executor, "step", step, "err", err)
			} else {
				logger.Debug("executor end", "conversation_id", conversationID, "executor", executor, "step", step)
			}
		},
		OnTurnEnd: func(ctx context.Context, state *domain.ConversationState, outcome domain.Phase) {
			logger.Debug("turn end", "conversation_id", state.ID, "outcome", string(outcome), "step", state.Step)
		},
	}
}
