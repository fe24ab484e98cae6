package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/access"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/formatter"
)

// RegisterResources exposes every annotated entity as a cds:// resource whose
// content is a default query result (first page, all accessible fields).
func (s *Server) RegisterResources(registry *annotations.Registry, comp *compiler.Compiler) {
	for _, res := range registry.Resources() {
		s.registerResource(res, comp)
	}
}

func (s *Server) registerResource(res *annotations.Resource, comp *compiler.Compiler) {
	uri := resourceURI(res)
	resource := mcp.NewResource(uri, res.Name,
		mcp.WithResourceDescription(res.Description),
		mcp.WithMIMEType("application/json"),
	)

	s.mcp.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		user := auth.UserFromContext(ctx)
		if !access.ComputeWrapAccess(user, res.Restrictions).CanRead {
			return nil, fmt.Errorf("access to %s is not permitted for this caller", res.Name)
		}

		result, err := comp.Query(ctx, res, map[string]any{})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", res.Name, err)
		}

		payload, err := json.Marshal(map[string]any{
			"results": formatter.FilterRows(res, result.Rows),
		})
		if err != nil {
			return nil, err
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(payload),
			},
		}, nil
	})
}

// resourceURI builds the cds://service/entity URI for a resource. The entity
// segment is the target name relative to its service namespace.
func resourceURI(res *annotations.Resource) string {
	entity := strings.TrimPrefix(res.Target, res.Service+".")
	return fmt.Sprintf("cds://%s/%s", res.Service, entity)
}
