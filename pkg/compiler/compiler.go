// Package compiler turns validated annotation objects plus agent-supplied
// arguments into concrete data-access operations: structured reads with
// filter/sort/pagination/aggregation/expansion, and transactional mutations
// with foreign-key mapping, deep inserts and the draft lifecycle.
package compiler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
)

// Config bounds the compiler's request handling.
type Config struct {
	// DefaultPageSize is applied when a query omits top.
	DefaultPageSize int
	// MaxPageSize rejects (not clamps) larger top values.
	MaxPageSize int
	// Timeout wraps every execution step; expiry rolls back open
	// transactions and surfaces a TIMEOUT error.
	Timeout time.Duration
}

// DefaultConfig returns the documented defaults: 50-row pages bounded at
// 1000, 10 second execution timeout.
func DefaultConfig() Config {
	return Config{DefaultPageSize: 50, MaxPageSize: 1000, Timeout: 10 * time.Second}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = defaults.DefaultPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = defaults.MaxPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	return c
}

// Compiler is the request-time engine. It holds only read-only state and is
// safe for concurrent use.
type Compiler struct {
	registry *annotations.Registry
	runtime  dataaccess.Runtime
	cfg      Config
	logger   *zap.Logger
}

// New creates a Compiler over the given annotation registry and runtime.
func New(registry *annotations.Registry, runtime dataaccess.Runtime, cfg Config, logger *zap.Logger) *Compiler {
	return &Compiler{
		registry: registry,
		runtime:  runtime,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// withTimeout derives the bounded execution context for one awaited step.
func (c *Compiler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// execError maps a data-layer failure to its typed operation error: context
// expiry becomes TIMEOUT, anything else the stage's failure code.
func (c *Compiler) execError(err error, code Code) *OperationError {
	if opErr, ok := AsOperationError(err); ok {
		return opErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeTimeout, "operation timed out after %s", c.cfg.Timeout)
	}
	return WrapError(code, err, "%s", err.Error())
}
