package annotations

import (
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
)

// Registry holds the annotation model built once at startup. It is read-only
// after Build returns and is passed by handle into every request path; there
// is no package-level singleton.
type Registry struct {
	resources map[string]*Resource
	tools     map[string]*Tool
	prompts   map[string]*Prompt

	resourceOrder []string
	toolOrder     []string
	promptOrder   []string
}

// NewRegistry assembles a registry from pre-built annotation objects.
// Production code builds from a model via Build; this entry point serves
// embedders and tests that construct annotations directly.
func NewRegistry(resources []*Resource, tools []*Tool, prompts []*Prompt) *Registry {
	reg := &Registry{
		resources: make(map[string]*Resource, len(resources)),
		tools:     make(map[string]*Tool, len(tools)),
		prompts:   make(map[string]*Prompt, len(prompts)),
	}
	for _, res := range resources {
		reg.resources[res.Target] = res
		reg.resourceOrder = append(reg.resourceOrder, res.Target)
	}
	for _, tool := range tools {
		reg.tools[tool.Name] = tool
		reg.toolOrder = append(reg.toolOrder, tool.Name)
	}
	for _, prompt := range prompts {
		reg.prompts[prompt.Name] = prompt
		reg.promptOrder = append(reg.promptOrder, prompt.Name)
	}
	return reg
}

// Build walks every definition of the model, parses and validates its @mcp
// annotations, and constructs the annotation objects. Definitions with
// invalid annotations are skipped with a warning (configuration errors are
// fatal to the single definition, not to the load). Authoring mistakes that
// break structural assumptions, such as a bound operation on an entity
// without scalar keys, abort the build.
func Build(model *cds.Model, logger *zap.Logger) (*Registry, error) {
	reg := &Registry{
		resources: make(map[string]*Resource),
		tools:     make(map[string]*Tool),
		prompts:   make(map[string]*Prompt),
	}

	for _, name := range model.Names() {
		def := model.Definitions[name]

		if rec := Parse(def); rec != nil {
			if err := Validate(rec); err != nil {
				logger.Warn("skipping definition with invalid MCP annotations",
					zap.String("definition", name),
					zap.Error(err))
			} else if err := reg.add(model, rec, logger); err != nil {
				return nil, err
			}
		}

		if def.Kind == cds.KindEntity && len(def.Actions) > 0 {
			if err := reg.addBoundOperations(model, def, logger); err != nil {
				return nil, err
			}
		}
	}

	reg.linkCompositionChildren(model)
	return reg, nil
}

// linkCompositionChildren records, on every resource that is the target of a
// composition, which entity is its immediate parent and which of its own
// properties references the parent. The draft lifecycle needs this to route
// child creates into the parent's draft shadow tables.
func (r *Registry) linkCompositionChildren(model *cds.Model) {
	for _, parentTarget := range r.resourceOrder {
		parent := r.resources[parentTarget]
		parentDef, ok := model.Definition(parentTarget)
		if !ok {
			continue
		}
		for assocName, childTarget := range parent.AssociationTargets {
			el := parentDef.Elements[assocName]
			if el == nil || !el.IsComposition() {
				continue
			}
			child, ok := r.resources[childTarget]
			if !ok {
				continue
			}
			child.ParentTarget = parentTarget
			for childAssoc, target := range child.AssociationTargets {
				if target == parentTarget {
					child.ParentFK = child.ForeignKeys[childAssoc]
				}
			}
		}
	}
}

func (r *Registry) add(model *cds.Model, rec *Record, logger *zap.Logger) error {
	def := rec.Def

	if rec.Resource != nil {
		resource, err := BuildResource(model, rec)
		if err != nil {
			logger.Warn("skipping resource definition",
				zap.String("definition", def.Name),
				zap.Error(err))
		} else {
			r.resources[resource.Target] = resource
			r.resourceOrder = append(r.resourceOrder, resource.Target)
		}
	}

	if truthy(rec.Tool) {
		tool, err := BuildTool(model, rec, nil)
		if err != nil {
			logger.Warn("skipping tool definition",
				zap.String("definition", def.Name),
				zap.Error(err))
		} else {
			r.registerTool(tool, logger)
		}
	}

	if rec.Prompts != nil {
		prompt := BuildPrompt(model, rec)
		r.prompts[prompt.Name] = prompt
		r.promptOrder = append(r.promptOrder, prompt.Name)
	}

	return nil
}

// addBoundOperations discovers actions/functions declared under an entity.
// They parse and validate like any other tool but receive the owning entity's
// key map. An entity without scalar keys cannot host bound operations; that
// is a schema authoring mistake and fails the whole build.
func (r *Registry) addBoundOperations(model *cds.Model, entity *cds.Definition, logger *zap.Logger) error {
	keys := entityKeyMap(model, entity)

	actionNames := make([]string, 0, len(entity.Actions))
	for name := range entity.Actions {
		actionNames = append(actionNames, name)
	}
	sort.Strings(actionNames)

	for _, name := range actionNames {
		action := entity.Actions[name]
		rec := Parse(action)
		if rec == nil {
			continue
		}
		if err := Validate(rec); err != nil {
			logger.Warn("skipping bound operation with invalid MCP annotations",
				zap.String("definition", action.Name),
				zap.Error(err))
			continue
		}
		tool, err := BuildTool(model, rec, keys)
		if err != nil {
			// Bound tool without key metadata: intentionally fatal.
			return err
		}
		r.registerTool(tool, logger)
	}

	return nil
}

func (r *Registry) registerTool(tool *Tool, logger *zap.Logger) {
	if _, exists := r.tools[tool.Name]; exists {
		logger.Warn("duplicate tool name, keeping first",
			zap.String("tool", tool.Name),
			zap.String("operation", tool.Operation))
		return
	}
	r.tools[tool.Name] = tool
	r.toolOrder = append(r.toolOrder, tool.Name)
}

// entityKeyMap resolves an entity's scalar key elements. The result is never
// nil so BuildTool can distinguish "bound" from "unbound".
func entityKeyMap(model *cds.Model, entity *cds.Definition) map[string]string {
	keys := make(map[string]string)
	for _, name := range entity.ElementNames() {
		el := entity.Elements[name]
		if !el.Key || el.IsAssociation() {
			continue
		}
		resolved, err := resolveElementType(model, entity.Name, name, el)
		if err != nil {
			continue
		}
		keys[name] = resolved
	}
	return keys
}

// Resource returns the resource annotation for a target entity name.
func (r *Registry) Resource(target string) (*Resource, bool) {
	resource, ok := r.resources[target]
	return resource, ok
}

// Resources returns all resource annotations in model order.
func (r *Registry) Resources() []*Resource {
	out := make([]*Resource, 0, len(r.resourceOrder))
	for _, target := range r.resourceOrder {
		out = append(out, r.resources[target])
	}
	return out
}

// Tool returns the tool annotation with the given name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Tools returns all tool annotations in model order.
func (r *Registry) Tools() []*Tool {
	out := make([]*Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name])
	}
	return out
}

// Prompt returns the prompt annotation with the given name.
func (r *Registry) Prompt(name string) (*Prompt, bool) {
	prompt, ok := r.prompts[name]
	return prompt, ok
}

// Prompts returns all prompt annotations in model order.
func (r *Registry) Prompts() []*Prompt {
	out := make([]*Prompt, 0, len(r.promptOrder))
	for _, name := range r.promptOrder {
		out = append(out, r.prompts[name])
	}
	return out
}
