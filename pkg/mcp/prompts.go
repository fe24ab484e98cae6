package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
)

// RegisterPrompts registers every annotated prompt template. Template text
// uses {key} substitution points filled from the request arguments; inputs
// without a supplied value keep their placeholder, which the agent sees and
// can correct.
func (s *Server) RegisterPrompts(registry *annotations.Registry) {
	for _, prompt := range registry.Prompts() {
		for _, tmpl := range prompt.Templates {
			s.registerTemplate(prompt, tmpl)
		}
	}
}

func (s *Server) registerTemplate(prompt *annotations.Prompt, tmpl annotations.PromptTemplate) {
	desc := tmpl.Description
	if desc == "" {
		desc = tmpl.Title
	}

	opts := []mcp.PromptOption{mcp.WithPromptDescription(desc)}
	for _, input := range tmpl.Inputs {
		opts = append(opts, mcp.WithArgument(input.Key,
			mcp.ArgumentDescription(fmt.Sprintf("Substituted for {%s} (%s)", input.Key, input.Type)),
			mcp.RequiredArgument(),
		))
	}

	template := tmpl
	s.mcp.AddPrompt(mcp.NewPrompt(tmpl.Name, opts...), func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		text := template.Template
		for _, input := range template.Inputs {
			if value, ok := req.Params.Arguments[input.Key]; ok {
				text = strings.ReplaceAll(text, "{"+input.Key+"}", value)
			}
		}

		role := mcp.RoleUser
		if template.Role == "assistant" {
			role = mcp.RoleAssistant
		}

		return mcp.NewGetPromptResult(template.Title, []mcp.PromptMessage{
			mcp.NewPromptMessage(role, mcp.NewTextContent(text)),
		}), nil
	})
}
