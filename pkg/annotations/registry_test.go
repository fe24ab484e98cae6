package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
)

func TestBuildRegistry(t *testing.T) {
	model := catalogModel()
	model.Definitions["CatalogService.Chapters"].Tags = map[string]any{
		"@mcp.name":        "chapters",
		"@mcp.description": "Book chapters",
		"@mcp.resource":    true,
	}
	model.Definitions["CatalogService.ping"] = &cds.Definition{
		Name: "CatalogService.ping",
		Kind: cds.KindFunction,
		Tags: map[string]any{
			"@mcp.name":        "ping",
			"@mcp.description": "Liveness check",
			"@mcp.tool":        true,
		},
	}
	// Invalid annotations fail the single definition, not the load.
	model.Definitions["CatalogService.Broken"] = &cds.Definition{
		Name: "CatalogService.Broken",
		Kind: cds.KindEntity,
		Tags: map[string]any{"@mcp.name": "broken", "@mcp.resource": true},
	}

	reg, err := Build(model, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, reg.Resources(), 2)
	books, ok := reg.Resource("CatalogService.Books")
	require.True(t, ok)
	assert.Equal(t, "books", books.Name)
	_, ok = reg.Resource("CatalogService.Broken")
	assert.False(t, ok)

	tool, ok := reg.Tool("ping")
	require.True(t, ok)
	assert.Equal(t, "CatalogService.ping", tool.Operation)
	assert.False(t, tool.Bound())
}

func TestBuildLinksCompositionChildren(t *testing.T) {
	model := catalogModel()
	model.Definitions["CatalogService.Chapters"].Tags = map[string]any{
		"@mcp.name":        "chapters",
		"@mcp.description": "Book chapters",
		"@mcp.resource":    true,
	}

	reg, err := Build(model, zap.NewNop())
	require.NoError(t, err)

	chapters, ok := reg.Resource("CatalogService.Chapters")
	require.True(t, ok)
	assert.Equal(t, "CatalogService.Books", chapters.ParentTarget)
	assert.Equal(t, "book_ID", chapters.ParentFK)

	// The association target Authors is not reached by a composition.
	books, _ := reg.Resource("CatalogService.Books")
	assert.Empty(t, books.ParentTarget)
}

func TestBuildRegistersBoundOperations(t *testing.T) {
	model := catalogModel()
	books := model.Definitions["CatalogService.Books"]
	books.Actions = map[string]*cds.Definition{
		"restock": {
			Name: "CatalogService.Books.restock",
			Kind: cds.KindAction,
			Tags: map[string]any{
				"@mcp.name":        "restock_book",
				"@mcp.description": "Adds stock to a book",
				"@mcp.tool":        true,
			},
			Params: map[string]*cds.Element{
				"amount": {Type: cds.TypeInteger},
			},
		},
	}

	reg, err := Build(model, zap.NewNop())
	require.NoError(t, err)

	tool, ok := reg.Tool("restock_book")
	require.True(t, ok)
	assert.True(t, tool.Bound())
	assert.Equal(t, map[string]string{"ID": cds.TypeUUID}, tool.Keys)
	assert.Equal(t, map[string]string{"amount": cds.TypeInteger}, tool.Parameters)
}

func TestBuildFailsForBoundOperationOnKeylessEntity(t *testing.T) {
	model := catalogModel()
	model.Definitions["CatalogService.Logs"] = &cds.Definition{
		Name: "CatalogService.Logs",
		Kind: cds.KindEntity,
		Elements: map[string]*cds.Element{
			"message": {Type: cds.TypeString},
		},
		Actions: map[string]*cds.Definition{
			"purge": {
				Name: "CatalogService.Logs.purge",
				Kind: cds.KindAction,
				Tags: map[string]any{
					"@mcp.name":        "purge_logs",
					"@mcp.description": "Clears the log",
					"@mcp.tool":        true,
				},
			},
		},
	}

	_, err := Build(model, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without key metadata")
}

func TestBuildKeepsFirstToolOnNameCollision(t *testing.T) {
	model := catalogModel()
	for _, name := range []string{"CatalogService.aFunc", "CatalogService.bFunc"} {
		model.Definitions[name] = &cds.Definition{
			Name: name,
			Kind: cds.KindFunction,
			Tags: map[string]any{
				"@mcp.name":        "dup",
				"@mcp.description": "duplicate",
				"@mcp.tool":        true,
			},
		}
	}

	reg, err := Build(model, zap.NewNop())
	require.NoError(t, err)

	tool, ok := reg.Tool("dup")
	require.True(t, ok)
	assert.Equal(t, "CatalogService.aFunc", tool.Operation)
	assert.Len(t, reg.Tools(), 1)
}

func TestNewRegistry(t *testing.T) {
	res := &Resource{Name: "books", Target: "CatalogService.Books"}
	tool := &Tool{Name: "ping"}
	prompt := &Prompt{Name: "catalog"}

	reg := NewRegistry([]*Resource{res}, []*Tool{tool}, []*Prompt{prompt})

	got, ok := reg.Resource("CatalogService.Books")
	require.True(t, ok)
	assert.Same(t, res, got)

	gotTool, ok := reg.Tool("ping")
	require.True(t, ok)
	assert.Same(t, tool, gotTool)

	gotPrompt, ok := reg.Prompt("catalog")
	require.True(t, ok)
	assert.Same(t, prompt, gotPrompt)
}
