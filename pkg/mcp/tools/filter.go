package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/access"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
)

// NewToolFilter builds the session tool filter: tools whose restrictions the
// caller's roles do not satisfy are removed from the listing. This is an
// availability decision, not a runtime denial; handlers still re-check on
// invocation.
func NewToolFilter(registry *annotations.Registry, logger *zap.Logger) server.ToolFilterFunc {
	admissions := buildAdmissions(registry)

	return func(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
		user := auth.UserFromContext(ctx)

		visible := make([]mcp.Tool, 0, len(tools))
		for _, tool := range tools {
			admit, known := admissions[tool.Name]
			if !known || admit(user) {
				visible = append(visible, tool)
				continue
			}
			logger.Debug("tool hidden for session",
				zap.String("tool", tool.Name),
				zap.Strings("roles", user.Roles))
		}
		return visible
	}
}

// buildAdmissions precomputes the per-tool admission checks from the
// registry. Tools outside the registry (none today) stay visible.
func buildAdmissions(registry *annotations.Registry) map[string]func(auth.User) bool {
	admissions := make(map[string]func(auth.User) bool)

	for _, res := range registry.Resources() {
		restrictions := res.Restrictions
		for _, mode := range enabledModes(res) {
			op := modeOperation(mode)
			admissions[baseName(res)+"_"+mode] = func(user auth.User) bool {
				return access.ComputeWrapAccess(user, restrictions).Allows(op)
			}
		}
	}

	for _, t := range registry.Tools() {
		restrictions := t.Restrictions
		admissions[t.Name] = func(user auth.User) bool {
			return access.HasOperationAccess(user, restrictions)
		}
	}

	return admissions
}
