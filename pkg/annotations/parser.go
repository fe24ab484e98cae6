package annotations

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
)

// Record is the provisional annotation record for one definition: recognized
// tags copied under their logical names, still untyped. Records only live
// between Parse and the structure builder.
type Record struct {
	Def *cds.Definition

	Name        string
	Description string
	Resource    any
	Tool        any
	Prompts     any
	Elicit      any
	Wrap        any
	WrapTools   any
	WrapModes   any
	// WrapHints collects @mcp.wrap.hint and its per-mode variants, keyed by
	// mode ("" for the mode-independent hint).
	WrapHints map[string]string

	Requires string
	Restrict any
}

// Parse scans a definition's tags for the @mcp namespace and returns a
// provisional record, or nil when the definition carries no recognized
// annotation. Unrecognized tags are dropped explicitly.
func Parse(def *cds.Definition) *Record {
	rec := &Record{Def: def, WrapHints: make(map[string]string)}
	recognized := false

	for key, value := range def.Tags {
		switch key {
		case TagName:
			rec.Name, _ = value.(string)
			recognized = true
		case TagDescription:
			rec.Description, _ = value.(string)
			recognized = true
		case TagResource:
			rec.Resource = value
			recognized = true
		case TagTool:
			rec.Tool = value
			recognized = true
		case TagPrompts:
			rec.Prompts = value
			recognized = true
		case TagElicit:
			rec.Elicit = value
			recognized = true
		case TagWrap:
			rec.Wrap = value
			recognized = true
		case TagWrapTools:
			rec.WrapTools = value
			recognized = true
		case TagWrapModes:
			rec.WrapModes = value
			recognized = true
		default:
			if mode, ok := wrapHintMode(key); ok {
				rec.WrapHints[mode], _ = value.(string)
				recognized = true
			}
		}
	}

	if !recognized {
		return nil
	}

	// Auth tags are cross-namespace: copied when present, but never make a
	// definition an MCP one on their own.
	rec.Requires = def.TagString(TagRequires)
	if restrict, ok := def.Tag(TagRestrict); ok {
		rec.Restrict = restrict
	}

	return rec
}

// wrapHintMode maps "@mcp.wrap.hint" and "@mcp.wrap.hint.<mode>" tags to
// their wrap mode key.
func wrapHintMode(tag string) (string, bool) {
	if tag == TagWrapHint {
		return "", true
	}
	const prefix = TagWrapHint + "."
	if !strings.HasPrefix(tag, prefix) {
		return "", false
	}
	mode := strings.TrimPrefix(tag, prefix)
	for _, m := range AllWrapModes() {
		if mode == m {
			return mode, true
		}
	}
	return "", false
}

// Validate checks required-field presence and shape per annotation kind.
// Failures are immediate and carry the offending definition's name; the
// caller decides whether to skip the definition or abort.
func Validate(rec *Record) error {
	def := rec.Def

	// Service definitions only contribute naming context.
	if def.Kind == cds.KindService {
		return nil
	}

	if rec.Name == "" {
		return fmt.Errorf("definition %s: missing required annotation %s", def.Name, TagName)
	}
	if rec.Description == "" {
		return fmt.Errorf("definition %s: missing required annotation %s", def.Name, TagDescription)
	}

	if rec.Resource != nil {
		if err := validateResourceFlag(def.Name, rec.Resource); err != nil {
			return err
		}
	}

	if rec.Tool != nil {
		if enabled, ok := rec.Tool.(bool); !ok || !enabled {
			return fmt.Errorf("definition %s: %s must be true", def.Name, TagTool)
		}
	}

	if rec.Prompts != nil {
		if err := validatePrompts(def.Name, rec.Prompts); err != nil {
			return err
		}
	}

	if rec.Elicit != nil {
		modes, ok := rec.Elicit.([]any)
		if !ok || len(modes) == 0 {
			return fmt.Errorf("definition %s: %s must declare at least one input mode", def.Name, TagElicit)
		}
	}

	return nil
}

func validateResourceFlag(defName string, value any) error {
	switch v := value.(type) {
	case bool:
		if !v {
			return fmt.Errorf("definition %s: %s must be true or a capability list", defName, TagResource)
		}
		return nil
	case []any:
		for _, entry := range v {
			name, _ := entry.(string)
			if !isCapability(name) {
				return fmt.Errorf("definition %s: invalid resource option %q", defName, name)
			}
		}
		return nil
	default:
		return fmt.Errorf("definition %s: %s must be true or a capability list", defName, TagResource)
	}
}

func isCapability(name string) bool {
	for _, c := range AllCapabilities() {
		if Capability(name) == c {
			return true
		}
	}
	return false
}

func validatePrompts(defName string, value any) error {
	prompts, ok := value.([]any)
	if !ok || len(prompts) == 0 {
		return fmt.Errorf("definition %s: %s must be a non-empty list", defName, TagPrompts)
	}

	for i, entry := range prompts {
		prompt, ok := entry.(map[string]any)
		if !ok {
			return fmt.Errorf("definition %s: prompt %d is not an object", defName, i)
		}
		for _, field := range []string{"name", "title", "template"} {
			if s, _ := prompt[field].(string); s == "" {
				return fmt.Errorf("definition %s: prompt %d has empty %s", defName, i, field)
			}
		}
		role, _ := prompt["role"].(string)
		if role != "user" && role != "assistant" {
			return fmt.Errorf("definition %s: prompt %d has invalid role %q", defName, i, role)
		}
		if inputs, ok := prompt["inputs"].([]any); ok {
			for j, rawInput := range inputs {
				input, ok := rawInput.(map[string]any)
				if !ok {
					return fmt.Errorf("definition %s: prompt %d input %d is not an object", defName, i, j)
				}
				key, _ := input["key"].(string)
				typ, _ := input["type"].(string)
				if key == "" || typ == "" {
					return fmt.Errorf("definition %s: prompt %d input %d needs key and type", defName, i, j)
				}
			}
		}
	}

	return nil
}
