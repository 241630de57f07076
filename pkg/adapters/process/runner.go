// Package process turns allow-listed local commands into capabilities.
// It follows a strict registry pattern: only registered commands run, and
// call arguments travel as environment variables, never as argv, so a
// hostile argument cannot become a flag.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/droverlabs/drover/pkg/capability"
	"github.com/droverlabs/drover/pkg/domain"
)

// EnvPrefix prefixes every argument variable passed to a command.
const EnvPrefix = "DROVER_ARG_"

// DefaultGracePeriod is how long an interrupted process may keep running
// before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Command allow-lists one executable invocation.
type Command struct {
	Command string
	Args    []string
}

// Runner executes allow-listed local commands.
type Runner struct {
	baseDir string
	grace   time.Duration
	logger  *slog.Logger

	mu       sync.RWMutex
	registry map[string]Command
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets how long an interrupted process may linger before
// the force kill.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.grace = d
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates an empty runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		grace:    DefaultGracePeriod,
		logger:   slog.Default(),
		registry: make(map[string]Command),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list under the given
// capability name. An existing entry with the same name is overwritten.
func (r *Runner) Register(name string, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = Command{Command: command, Args: args}
}

// Names lists the registered capability names, sorted.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind registers every allow-listed command on the gateway, so executors
// reach them like any other capability.
func (r *Runner) Bind(g *capability.Gateway) {
	for _, name := range r.Names() {
		r.mu.RLock()
		proc := r.registry[name]
		r.mu.RUnlock()

		g.Register(capability.Capability{
			Name:        name,
			Description: fmt.Sprintf("local process %s", proc.Command),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return r.Run(ctx, name, args)
			},
		})
	}
}

// Run executes the named command with args passed as DROVER_ARG_* variables
// and returns its stdout. Output that looks like JSON is decoded; anything
// else comes back as a trimmed string. Failures are typed
// *domain.CapabilityFailure values.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	proc, ok := r.registry[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.CapabilityFailure{
			Capability: name,
			Kind:       domain.CapabilityNotFound,
			Detail:     fmt.Sprintf("process not registered: %s", name),
		}
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir

	// Interrupt first so well-behaved processes can clean up; the force
	// kill lands after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.grace

	env := cmd.Environ()
	for k, v := range args {
		env = append(env, EnvPrefix+envKey(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	// exec reports a context-triggered kill as an exit error, so the
	// deadline has to be checked directly.
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Warn("process interrupted",
			"capability", name,
			"command", proc.Command,
			"duration", elapsed)
		return nil, &domain.CapabilityFailure{
			Capability: name,
			Kind:       domain.CapabilityTimeout,
			Detail:     fmt.Sprintf("process interrupted: %v", ctxErr),
			Err:        ctxErr,
		}
	}

	if err != nil {
		return nil, &domain.CapabilityFailure{
			Capability: name,
			Kind:       domain.CapabilityUpstream,
			Detail:     fmt.Sprintf("execution failed: %v, stderr: %s", err, strings.TrimSpace(stderr.String())),
			Err:        err,
		}
	}

	r.logger.Debug("process completed",
		"capability", name,
		"command", proc.Command,
		"duration", elapsed)

	trimmed := strings.TrimSpace(stdout.String())

	// Auto-detect JSON output; the caller gets structure when the command
	// produces it.
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var decoded any
		if jsonErr := json.Unmarshal([]byte(trimmed), &decoded); jsonErr == nil {
			return decoded, nil
		}
	}

	return trimmed, nil
}

// envKey uppercases a key and squashes anything outside [A-Z0-9] to '_'.
func envKey(k string) string {
	k = strings.ToUpper(k)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, k)
}

// envValue serializes an argument: primitives as-is, structures as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}
