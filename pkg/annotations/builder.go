package annotations

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
)

// resolveElementType resolves an element's declared type to a literal cds
// type name, following indirect references through named types and element
// refs. Array-valued elements get an "Array" suffix. The visited set turns
// reference cycles into a distinct error instead of unbounded recursion.
func resolveElementType(model *cds.Model, defName, elementName string, el *cds.Element) (string, error) {
	return resolveType(model, defName, elementName, el, make(map[string]struct{}))
}

func resolveType(model *cds.Model, defName, elementName string, el *cds.Element, visited map[string]struct{}) (string, error) {
	if el.IsArrayed() {
		inner, err := resolveType(model, defName, elementName, el.Items, visited)
		if err != nil {
			return "", err
		}
		return inner + "Array", nil
	}

	if len(el.Ref) > 0 {
		return resolveRef(model, defName, elementName, el.Ref, visited)
	}

	if el.Type == "" {
		return "", fmt.Errorf("unparseable nested type reference for %s.%s", defName, elementName)
	}
	if cds.IsBuiltinType(el.Type) {
		return el.Type, nil
	}
	return resolveNamedType(model, defName, elementName, el.Type, visited)
}

func resolveRef(model *cds.Model, defName, elementName string, ref []string, visited map[string]struct{}) (string, error) {
	key := "ref:" + strings.Join(ref, ":")
	if _, seen := visited[key]; seen {
		return "", fmt.Errorf("cyclic type reference for %s.%s", defName, elementName)
	}
	visited[key] = struct{}{}

	if len(ref) < 2 {
		return "", fmt.Errorf("unparseable nested type reference for %s.%s", defName, elementName)
	}
	target, ok := model.Definition(ref[0])
	if !ok {
		return "", fmt.Errorf("unparseable nested type reference for %s.%s", defName, elementName)
	}
	element, ok := target.Elements[ref[1]]
	if !ok {
		return "", fmt.Errorf("unparseable nested type reference for %s.%s", defName, elementName)
	}
	return resolveType(model, defName, elementName, element, visited)
}

func resolveNamedType(model *cds.Model, defName, elementName, typeName string, visited map[string]struct{}) (string, error) {
	if _, seen := visited[typeName]; seen {
		return "", fmt.Errorf("cyclic type reference for %s.%s", defName, elementName)
	}
	visited[typeName] = struct{}{}

	def, ok := model.Definition(typeName)
	if !ok {
		return "", fmt.Errorf("unparseable nested type reference for %s.%s", defName, elementName)
	}
	if def.Items != nil {
		inner, err := resolveType(model, defName, elementName, def.Items, visited)
		if err != nil {
			return "", err
		}
		return inner + "Array", nil
	}
	if def.Type == "" {
		return "", fmt.Errorf("unparseable nested type reference for %s.%s", defName, elementName)
	}
	if cds.IsBuiltinType(def.Type) {
		return def.Type, nil
	}
	return resolveNamedType(model, defName, elementName, def.Type, visited)
}

// BuildResource constructs the immutable Resource annotation from a validated
// record.
func BuildResource(model *cds.Model, rec *Record) (*Resource, error) {
	def := rec.Def

	res := &Resource{
		Name:               rec.Name,
		Description:        rec.Description,
		Service:            model.ServiceOf(def.Name),
		Target:             def.Name,
		Capabilities:       resolveCapabilities(rec.Resource),
		Properties:         make(map[string]string),
		Keys:               make(map[string]string),
		ForeignKeys:        make(map[string]string),
		AssociationTargets: make(map[string]string),
		Hints:              make(map[string]string),
		Omitted:            make(map[string]struct{}),
		Computed:           make(map[string]struct{}),
		DeepInserts:        make(map[string]string),
		DraftEnabled:       truthyTag(def, TagDraftEnabled),
		Restrictions:       ResolveRestrictions(rec.Restrict, rec.Requires),
	}

	for _, name := range def.ElementNames() {
		el := def.Elements[name]

		if hint := el.TagString(TagHint); hint != "" {
			res.Hints[name] = hint
		}

		if el.IsAssociation() {
			if el.Target == "" {
				return nil, fmt.Errorf("association %s.%s has no target", def.Name, name)
			}
			res.AssociationTargets[name] = el.Target
			if err := addForeignKeys(model, res, name, el); err != nil {
				return nil, err
			}
			if el.BoolTag(TagDeepInsert) {
				res.DeepInserts[name] = el.Target
			}
			continue
		}

		resolved, err := resolveElementType(model, def.Name, name, el)
		if err != nil {
			return nil, err
		}
		res.Properties[name] = resolved
		if el.Key {
			res.Keys[name] = resolved
		}
		if el.BoolTag(TagOmit) {
			res.Omitted[name] = struct{}{}
		}
		if el.BoolTag(TagComputed) {
			res.Computed[name] = struct{}{}
		}
	}

	for key := range res.Keys {
		if res.IsOmitted(key) {
			return nil, fmt.Errorf("definition %s: key %s cannot be omitted", def.Name, key)
		}
	}

	res.Wrap = resolveWrap(rec)
	return res, nil
}

// addForeignKeys generates the foreign-key properties standing in for an
// association: one per scalar key of the target entity, named
// <association>_<key>.
func addForeignKeys(model *cds.Model, res *Resource, assocName string, el *cds.Element) error {
	target, ok := model.Definition(el.Target)
	if !ok {
		return fmt.Errorf("association %s.%s targets unknown entity %s", res.Target, assocName, el.Target)
	}
	for _, keyName := range target.ElementNames() {
		keyEl := target.Elements[keyName]
		if !keyEl.Key || keyEl.IsAssociation() {
			continue
		}
		resolved, err := resolveElementType(model, target.Name, keyName, keyEl)
		if err != nil {
			return err
		}
		fk := assocName + "_" + keyName
		res.Properties[fk] = resolved
		res.ForeignKeys[assocName] = fk
	}
	return nil
}

func resolveCapabilities(raw any) []Capability {
	list, ok := raw.([]any)
	if !ok {
		// Boolean flag: all capabilities enabled.
		return AllCapabilities()
	}
	caps := make([]Capability, 0, len(list))
	for _, entry := range list {
		if name, ok := entry.(string); ok {
			caps = append(caps, Capability(name))
		}
	}
	return caps
}

func resolveWrap(rec *Record) WrapConfig {
	enabled := truthy(rec.Wrap) || rec.WrapModes != nil || rec.WrapTools != nil || len(rec.WrapHints) > 0
	if !enabled {
		return WrapConfig{}
	}

	modes := []string{}
	for _, mode := range stringList(rec.WrapModes) {
		for _, known := range AllWrapModes() {
			if mode == known {
				modes = append(modes, mode)
			}
		}
	}
	if len(modes) == 0 {
		modes = AllWrapModes()
	}

	name, _ := rec.WrapTools.(string)

	hints := make(map[string]string, len(rec.WrapHints))
	for mode, hint := range rec.WrapHints {
		hints[mode] = hint
	}

	return WrapConfig{Enabled: true, Modes: modes, Name: name, Hints: hints}
}

// BuildTool constructs the immutable Tool annotation from a validated record.
// entityKeys is the owning entity's key map for bound operations and nil for
// unbound ones; a bound tool without key metadata is an authoring mistake and
// fails construction.
func BuildTool(model *cds.Model, rec *Record, entityKeys map[string]string) (*Tool, error) {
	def := rec.Def

	if entityKeys != nil && len(entityKeys) == 0 {
		return nil, fmt.Errorf("definition %s: bound tool built without key metadata", def.Name)
	}

	kind := def.Kind
	if kind != cds.KindAction {
		kind = cds.KindFunction
	}

	var params map[string]string
	if len(def.Params) > 0 {
		params = make(map[string]string, len(def.Params))
		for name, el := range def.Params {
			resolved, err := resolveElementType(model, def.Name, name, el)
			if err != nil {
				return nil, err
			}
			params[name] = resolved
		}
	}

	return &Tool{
		Name:         rec.Name,
		Description:  rec.Description,
		Service:      model.ServiceOf(def.Name),
		Operation:    def.Name,
		Kind:         kind,
		Parameters:   params,
		Keys:         entityKeys,
		ElicitModes:  stringList(rec.Elicit),
		Restrictions: ResolveRestrictions(rec.Restrict, rec.Requires),
	}, nil
}

// BuildPrompt constructs the immutable Prompt annotation from a validated
// record. Shape errors were already rejected by Validate.
func BuildPrompt(model *cds.Model, rec *Record) *Prompt {
	def := rec.Def

	prompt := &Prompt{
		Name:        rec.Name,
		Description: rec.Description,
		Service:     model.ServiceOf(def.Name),
	}

	entries, _ := rec.Prompts.([]any)
	for _, entry := range entries {
		raw, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		template := PromptTemplate{
			Name:        stringField(raw, "name"),
			Title:       stringField(raw, "title"),
			Description: stringField(raw, "description"),
			Template:    stringField(raw, "template"),
			Role:        stringField(raw, "role"),
		}
		if inputs, ok := raw["inputs"].([]any); ok {
			for _, rawInput := range inputs {
				input, ok := rawInput.(map[string]any)
				if !ok {
					continue
				}
				template.Inputs = append(template.Inputs, PromptInput{
					Key:  stringField(input, "key"),
					Type: stringField(input, "type"),
				})
			}
		}
		prompt.Templates = append(prompt.Templates, template)
	}

	return prompt
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func truthy(value any) bool {
	b, _ := value.(bool)
	return b
}

func truthyTag(def *cds.Definition, tag string) bool {
	value, ok := def.Tag(tag)
	if !ok {
		return false
	}
	b, _ := value.(bool)
	return b
}
