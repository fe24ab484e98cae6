package annotations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
)

// catalogModel assembles the model fixture used across builder tests: a
// service with two entities linked by an association plus a composition, a
// named scalar type, and a pair of mutually referential types.
func catalogModel() *cds.Model {
	model := &cds.Model{Definitions: map[string]*cds.Definition{
		"CatalogService": {Name: "CatalogService", Kind: cds.KindService},
		"catalog.ISBN":   {Name: "catalog.ISBN", Kind: cds.KindType, Type: cds.TypeString},
		"loop.A":         {Name: "loop.A", Kind: cds.KindType, Type: "loop.B"},
		"loop.B":         {Name: "loop.B", Kind: cds.KindType, Type: "loop.A"},
		"CatalogService.Authors": {
			Name: "CatalogService.Authors",
			Kind: cds.KindEntity,
			Elements: map[string]*cds.Element{
				"ID":   {Type: cds.TypeUUID, Key: true},
				"name": {Type: cds.TypeString},
			},
		},
		"CatalogService.Chapters": {
			Name: "CatalogService.Chapters",
			Kind: cds.KindEntity,
			Elements: map[string]*cds.Element{
				"ID":   {Type: cds.TypeUUID, Key: true},
				"book": {Type: cds.TypeAssociation, Target: "CatalogService.Books"},
			},
		},
		"CatalogService.Books": {
			Name: "CatalogService.Books",
			Kind: cds.KindEntity,
			Tags: map[string]any{
				"@mcp.name":            "books",
				"@mcp.description":     "Book catalog",
				"@mcp.resource":        true,
				"@odata.draft.enabled": true,
			},
			Elements: map[string]*cds.Element{
				"ID":    {Type: cds.TypeUUID, Key: true},
				"title": {Type: cds.TypeString, Tags: map[string]any{"@mcp.hint": "use exact titles"}},
				"secret": {
					Type: cds.TypeString,
					Tags: map[string]any{"@mcp.omit": true},
				},
				"createdAt": {
					Type: cds.TypeTimestamp,
					Tags: map[string]any{"@Core.Computed": true},
				},
				"isbn":   {Type: "catalog.ISBN"},
				"genres": {Items: &cds.Element{Type: cds.TypeString}},
				"author": {Type: cds.TypeAssociation, Target: "CatalogService.Authors"},
				"chapters": {
					Type:   cds.TypeComposition,
					Target: "CatalogService.Chapters",
					Tags:   map[string]any{"@mcp.deepInsert": true},
				},
			},
		},
	}}
	return model
}

func recordFor(t *testing.T, model *cds.Model, defName string) *Record {
	t.Helper()
	def, ok := model.Definition(defName)
	require.True(t, ok)
	rec := Parse(def)
	require.NotNil(t, rec)
	require.NoError(t, Validate(rec))
	return rec
}

func TestBuildResource(t *testing.T) {
	model := catalogModel()
	res, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.NoError(t, err)

	assert.Equal(t, "books", res.Name)
	assert.Equal(t, "CatalogService", res.Service)
	assert.Equal(t, "CatalogService.Books", res.Target)
	assert.True(t, res.DraftEnabled)
	assert.Equal(t, AllCapabilities(), res.Capabilities)

	// Scalar properties with resolved types, including the generated
	// foreign-key field standing in for the association.
	assert.Equal(t, map[string]string{
		"ID":          cds.TypeUUID,
		"title":       cds.TypeString,
		"secret":      cds.TypeString,
		"createdAt":   cds.TypeTimestamp,
		"isbn":        cds.TypeString,
		"genres":      cds.TypeString + "Array",
		"author_ID":   cds.TypeUUID,
		"chapters_ID": cds.TypeUUID,
	}, res.Properties)

	assert.Equal(t, map[string]string{"ID": cds.TypeUUID}, res.Keys)
	assert.Equal(t, map[string]string{
		"author":   "author_ID",
		"chapters": "chapters_ID",
	}, res.ForeignKeys)
	assert.Equal(t, map[string]string{
		"author":   "CatalogService.Authors",
		"chapters": "CatalogService.Chapters",
	}, res.AssociationTargets)
	assert.Equal(t, map[string]string{"chapters": "CatalogService.Chapters"}, res.DeepInserts)

	assert.True(t, res.IsOmitted("secret"))
	assert.True(t, res.IsComputed("createdAt"))
	assert.Equal(t, "use exact titles", res.Hints["title"])
	assert.False(t, res.Wrap.Enabled)
}

func TestBuildResourceCapabilitySubset(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Tags["@mcp.resource"] = []any{"filter", "top"}

	res, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.NoError(t, err)
	assert.Equal(t, []Capability{CapFilter, CapTop}, res.Capabilities)
	assert.False(t, res.HasCapability(CapOrderBy))
}

func TestBuildResourceRejectsOmittedKey(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Elements["ID"].Tags = map[string]any{"@mcp.omit": true}

	_, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key ID cannot be omitted")
}

func TestBuildResourceRejectsTargetlessAssociation(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Elements["author"].Target = ""

	_, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no target")
}

func TestBuildResourceCyclicTypeReference(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Elements["isbn"].Type = "loop.A"

	_, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic type reference")
}

func TestBuildResourceIndirectTypeReference(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Elements["isbn"].Type = ""
	books.Elements["isbn"].Ref = []string{"CatalogService.Authors", "name"}

	res, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.NoError(t, err)
	assert.Equal(t, cds.TypeString, res.Properties["isbn"])
}

func TestBuildResourceWrapConfig(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Tags["@mcp.wrap"] = true
	books.Tags["@mcp.wrap.modes"] = []any{"query", "delete", "browse"}
	books.Tags["@mcp.wrap.tools"] = "catalog"
	books.Tags["@mcp.wrap.hint"] = "general"
	books.Tags["@mcp.wrap.hint.query"] = "query specific"

	res, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.NoError(t, err)

	assert.True(t, res.Wrap.Enabled)
	// Unknown modes are dropped.
	assert.Equal(t, []string{"query", "delete"}, res.Wrap.Modes)
	assert.Equal(t, "catalog", res.Wrap.Name)
	assert.Equal(t, "general", res.Wrap.Hints[""])
	assert.Equal(t, "query specific", res.Wrap.Hints["query"])
	assert.True(t, res.Wrap.HasMode("delete"))
	assert.False(t, res.Wrap.HasMode("create"))
}

func TestBuildResourceWrapModeListImpliesWrap(t *testing.T) {
	model := catalogModel()
	books, _ := model.Definition("CatalogService.Books")
	books.Tags["@mcp.wrap.modes"] = []any{"query"}

	res, err := BuildResource(model, recordFor(t, model, "CatalogService.Books"))
	require.NoError(t, err)
	assert.True(t, res.Wrap.Enabled)
	assert.Equal(t, []string{"query"}, res.Wrap.Modes)
}

func TestBuildTool(t *testing.T) {
	model := catalogModel()
	model.Definitions["CatalogService.submitOrder"] = &cds.Definition{
		Name: "CatalogService.submitOrder",
		Kind: cds.KindAction,
		Tags: map[string]any{
			"@mcp.name":        "submit_order",
			"@mcp.description": "Places an order",
			"@mcp.tool":        true,
			"@mcp.elicit":      []any{"form"},
			"@requires":        "customer",
		},
		Params: map[string]*cds.Element{
			"book":     {Type: cds.TypeUUID},
			"quantity": {Type: cds.TypeInteger},
		},
	}

	tool, err := BuildTool(model, recordFor(t, model, "CatalogService.submitOrder"), nil)
	require.NoError(t, err)

	assert.Equal(t, "submit_order", tool.Name)
	assert.Equal(t, "CatalogService", tool.Service)
	assert.Equal(t, "CatalogService.submitOrder", tool.Operation)
	assert.Equal(t, cds.KindAction, tool.Kind)
	assert.Equal(t, map[string]string{
		"book":     cds.TypeUUID,
		"quantity": cds.TypeInteger,
	}, tool.Parameters)
	assert.False(t, tool.Bound())
	assert.Equal(t, []string{"form"}, tool.ElicitModes)
	assert.Equal(t, []Restriction{{Role: "customer"}}, tool.Restrictions)
}

func TestBuildToolBound(t *testing.T) {
	model := catalogModel()
	rec := &Record{
		Def:  &cds.Definition{Name: "CatalogService.Books.restock", Kind: cds.KindFunction},
		Name: "restock",
	}

	tool, err := BuildTool(model, rec, map[string]string{"ID": cds.TypeUUID})
	require.NoError(t, err)
	assert.True(t, tool.Bound())
	assert.Equal(t, map[string]string{"ID": cds.TypeUUID}, tool.Keys)

	_, err = BuildTool(model, rec, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without key metadata")
}

func TestBuildPrompt(t *testing.T) {
	model := catalogModel()
	model.Definitions["CatalogService"].Tags = map[string]any{
		"@mcp.name":        "catalog",
		"@mcp.description": "Catalog prompts",
		"@mcp.prompts": []any{
			map[string]any{
				"name":        "summarize",
				"title":       "Summarize a book",
				"description": "Summarizes by title",
				"template":    "Summarize {title} in {words} words",
				"role":        "user",
				"inputs": []any{
					map[string]any{"key": "title", "type": "string"},
					map[string]any{"key": "words", "type": "number"},
				},
			},
		},
	}

	prompt := BuildPrompt(model, recordFor(t, model, "CatalogService"))
	assert.Equal(t, "catalog", prompt.Name)
	require.Len(t, prompt.Templates, 1)

	template := prompt.Templates[0]
	assert.Equal(t, "summarize", template.Name)
	assert.Equal(t, "Summarize a book", template.Title)
	assert.Equal(t, "user", template.Role)
	assert.Equal(t, []PromptInput{
		{Key: "title", Type: "string"},
		{Key: "words", Type: "number"},
	}, template.Inputs)
}
