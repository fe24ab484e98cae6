// Package tools registers the generated MCP tools: per-entity CRUD sub-tools
// driven by resource annotations, and bound/unbound operation tools driven by
// tool annotations.
package tools

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
)

// Dispatcher executes a service-level function or action. The bridge itself
// only compiles data-access operations; custom operations are forwarded to
// whatever service implementation the host registered.
type Dispatcher interface {
	Dispatch(ctx context.Context, service, operation string, args map[string]any) (any, error)
}

// Deps carries the shared dependencies of all generated tools.
type Deps struct {
	Registry *annotations.Registry
	Compiler *compiler.Compiler
	// Dispatchers maps service names to live operation handlers. A tool whose
	// service has no dispatcher fails with ERR_MISSING_SERVICE.
	Dispatchers map[string]Dispatcher
	Logger      *zap.Logger
}

// baseName derives the tool-name prefix for a resource's CRUD sub-tools.
func baseName(res *annotations.Resource) string {
	if res.Wrap.Name != "" {
		return res.Wrap.Name
	}
	return strings.ToLower(res.Name)
}

// enabledModes lists the CRUD sub-tools to generate. Wrapped resources honor
// their mode list; a plain resource annotation exposes the read side only.
func enabledModes(res *annotations.Resource) []string {
	if res.Wrap.Enabled {
		if len(res.Wrap.Modes) > 0 {
			return res.Wrap.Modes
		}
		return annotations.AllWrapModes()
	}
	return []string{annotations.ModeQuery, annotations.ModeGet}
}

// modeOperation maps a wrap mode to the CRUD operation it needs.
func modeOperation(mode string) annotations.Operation {
	switch mode {
	case annotations.ModeCreate:
		return annotations.OpCreate
	case annotations.ModeUpdate:
		return annotations.OpUpdate
	case annotations.ModeDelete:
		return annotations.OpDelete
	}
	return annotations.OpRead
}

// hintFor returns the annotation hint text for a wrap mode, falling back to
// the mode-independent hint.
func hintFor(res *annotations.Resource, mode string) string {
	if hint, ok := res.Wrap.Hints[mode]; ok {
		return hint
	}
	return res.Wrap.Hints[""]
}
