// Package annotations turns @mcp metadata tags on model definitions into the
// immutable annotation objects consumed by the operation compiler. Parsing and
// validation run once at model load; everything built here is read-only
// afterwards.
package annotations

// Recognized annotation tags. Everything outside this closed set is ignored
// at parse time.
const (
	TagName        = "@mcp.name"
	TagDescription = "@mcp.description"
	TagResource    = "@mcp.resource"
	TagTool        = "@mcp.tool"
	TagPrompts     = "@mcp.prompts"
	TagElicit      = "@mcp.elicit"
	TagWrap        = "@mcp.wrap"
	TagWrapTools   = "@mcp.wrap.tools"
	TagWrapModes   = "@mcp.wrap.modes"
	TagWrapHint    = "@mcp.wrap.hint"
	TagHint        = "@mcp.hint"
	TagOmit        = "@mcp.omit"
	TagDeepInsert  = "@mcp.deepInsert"

	// Cross-namespace tags consumed for access control and draft handling.
	TagRequires     = "@requires"
	TagRestrict     = "@restrict"
	TagDraftEnabled = "@odata.draft.enabled"
	TagComputed     = "@Core.Computed"
)

// Operation is one of the four CRUD operations used in restrictions and
// wrap-access decisions.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpRead   Operation = "READ"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// AllOperations returns the four CRUD operations in canonical order.
func AllOperations() []Operation {
	return []Operation{OpCreate, OpRead, OpUpdate, OpDelete}
}

// Capability is one query capability a resource can enable.
type Capability string

const (
	CapFilter  Capability = "filter"
	CapOrderBy Capability = "orderby"
	CapTop     Capability = "top"
	CapSkip    Capability = "skip"
	CapSelect  Capability = "select"
)

// AllCapabilities returns the five query capabilities in canonical order.
func AllCapabilities() []Capability {
	return []Capability{CapFilter, CapOrderBy, CapTop, CapSkip, CapSelect}
}

// Wrap modes name the per-entity CRUD sub-tools that may be generated.
const (
	ModeQuery  = "query"
	ModeGet    = "get"
	ModeCreate = "create"
	ModeUpdate = "update"
	ModeDelete = "delete"
)

// AllWrapModes returns the wrap modes in canonical order.
func AllWrapModes() []string {
	return []string{ModeQuery, ModeGet, ModeCreate, ModeUpdate, ModeDelete}
}

// Restriction is one declarative (role, allowed operations) access rule.
// Nil Operations means every operation is permitted for the role.
type Restriction struct {
	Role       string
	Operations []Operation
}

// WrapConfig controls which CRUD sub-tools are generated for a resource.
type WrapConfig struct {
	Enabled bool
	// Modes lists the enabled sub-tools; defaults to all five.
	Modes []string
	// Name overrides the generated base name for the sub-tools.
	Name string
	// Hints carries per-mode hint text keyed by wrap mode. The empty key
	// holds the mode-independent hint.
	Hints map[string]string
}

// HasMode reports whether the given wrap mode is enabled.
func (w WrapConfig) HasMode(mode string) bool {
	for _, m := range w.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Resource is the immutable annotation object for a queryable entity.
type Resource struct {
	Name         string
	Description  string
	Service      string
	Target       string
	Capabilities []Capability
	// Properties maps scalar property names (including generated foreign-key
	// fields) to resolved type names. Array-valued properties carry an
	// "Array" suffix on the type name.
	Properties map[string]string
	// Keys is the subset of Properties flagged as entity keys. Associations
	// marked as key are excluded; their foreign-key fields stand in.
	Keys map[string]string
	// ForeignKeys maps association names to their generated foreign-key
	// property names.
	ForeignKeys map[string]string
	// AssociationTargets maps association names to target entity names, for
	// expansion.
	AssociationTargets map[string]string
	Hints              map[string]string
	Omitted            map[string]struct{}
	Computed           map[string]struct{}
	// DeepInserts maps associations explicitly marked for deep insert to
	// their target entity names.
	DeepInserts  map[string]string
	Wrap         WrapConfig
	DraftEnabled bool
	Restrictions []Restriction

	// ParentTarget and ParentFK link a composition child to its immediate
	// parent entity: ParentFK is the child's parent-reference property.
	// Both are empty for root entities. Set once during registry build.
	ParentTarget string
	ParentFK     string
}

// IsOmitted reports whether the property is excluded from selection,
// filtering and results.
func (r *Resource) IsOmitted(name string) bool {
	_, ok := r.Omitted[name]
	return ok
}

// IsComputed reports whether the property is computed and therefore excluded
// from create/update payloads.
func (r *Resource) IsComputed(name string) bool {
	_, ok := r.Computed[name]
	return ok
}

// HasCapability reports whether the resource enables the given capability.
func (r *Resource) HasCapability(c Capability) bool {
	for _, cap := range r.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// Tool is the immutable annotation object for a callable operation, bound
// (per entity instance) or unbound (service level).
type Tool struct {
	Name        string
	Description string
	Service     string
	Operation   string
	// Kind is cds.KindFunction or cds.KindAction.
	Kind       string
	Parameters map[string]string
	// Keys is the owning entity's key map for bound operations; nil for
	// unbound ones. A bound tool always has a non-empty key map.
	Keys         map[string]string
	ElicitModes  []string
	Restrictions []Restriction
}

// Bound reports whether the tool targets a specific entity instance.
func (t *Tool) Bound() bool {
	return t.Keys != nil
}

// Prompt is the immutable annotation object for a set of prompt templates.
type Prompt struct {
	Name        string
	Description string
	Service     string
	Templates   []PromptTemplate
}

// PromptTemplate is one reusable templated instruction.
type PromptTemplate struct {
	Name        string
	Title       string
	Description string
	Template    string
	// Role is "user" or "assistant".
	Role   string
	Inputs []PromptInput
}

// PromptInput is one named, typed substitution point of a template.
type PromptInput struct {
	Key  string
	Type string
}
