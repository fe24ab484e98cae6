// Package cds provides typed, read-only access to a CSN-style schema model.
// The model is loaded once at startup from its JSON representation; annotation
// semantics live in pkg/annotations, this package only exposes structure.
package cds

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Definition kinds as they appear in the model JSON.
const (
	KindService  = "service"
	KindEntity   = "entity"
	KindFunction = "function"
	KindAction   = "action"
	KindType     = "type"
)

// Built-in scalar and relational type names.
const (
	TypeString      = "cds.String"
	TypeLargeString = "cds.LargeString"
	TypeBoolean     = "cds.Boolean"
	TypeInteger     = "cds.Integer"
	TypeInt16       = "cds.Int16"
	TypeInt32       = "cds.Int32"
	TypeInt64       = "cds.Int64"
	TypeUInt8       = "cds.UInt8"
	TypeDecimal     = "cds.Decimal"
	TypeDouble      = "cds.Double"
	TypeUUID        = "cds.UUID"
	TypeDate        = "cds.Date"
	TypeTime        = "cds.Time"
	TypeDateTime    = "cds.DateTime"
	TypeTimestamp   = "cds.Timestamp"
	TypeAssociation = "cds.Association"
	TypeComposition = "cds.Composition"
)

// Model is the root of a loaded schema: definitions keyed by qualified name.
type Model struct {
	Namespace   string                 `json:"namespace"`
	Definitions map[string]*Definition `json:"definitions"`
}

// Definition is one named entry in the model: a service, entity, bound or
// unbound operation, or named type. Annotation tags (keys starting with "@")
// are split out of the structural fields at unmarshal time.
type Definition struct {
	Name     string
	Kind     string
	Type     string
	Elements map[string]*Element
	Actions  map[string]*Definition
	Params   map[string]*Element
	Returns  *Element
	Items    *Element
	Tags     map[string]any
}

// Element is a single element (column, association, parameter) of a
// definition. Items is non-nil for arrayed elements; Ref carries an indirect
// type reference ("type of" another definition's element).
type Element struct {
	Type   string
	Ref    []string
	Key    bool
	Target string
	Items  *Element
	Tags   map[string]any
}

type definitionJSON struct {
	Kind     string                 `json:"kind"`
	Type     string                 `json:"type"`
	Elements map[string]*Element    `json:"elements"`
	Actions  map[string]*Definition `json:"actions"`
	Params   map[string]*Element    `json:"params"`
	Returns  *Element               `json:"returns"`
	Items    *Element               `json:"items"`
}

// UnmarshalJSON decodes structural fields and collects every "@"-prefixed key
// into Tags. Unrecognized non-annotation keys are dropped.
func (d *Definition) UnmarshalJSON(data []byte) error {
	var structural definitionJSON
	if err := json.Unmarshal(data, &structural); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	tags := make(map[string]any)
	for key, value := range raw {
		if !strings.HasPrefix(key, "@") {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("failed to decode annotation %q: %w", key, err)
		}
		tags[key] = decoded
	}

	d.Kind = structural.Kind
	d.Type = structural.Type
	d.Items = structural.Items
	d.Elements = structural.Elements
	d.Actions = structural.Actions
	d.Params = structural.Params
	d.Returns = structural.Returns
	d.Tags = tags
	return nil
}

type elementJSON struct {
	Type   json.RawMessage `json:"type"`
	Key    bool            `json:"key"`
	Target string          `json:"target"`
	Items  *Element        `json:"items"`
}

type typeRef struct {
	Ref []string `json:"ref"`
}

// UnmarshalJSON handles both literal type names ("type": "cds.String") and
// indirect references ("type": {"ref": ["Books", "title"]}).
func (e *Element) UnmarshalJSON(data []byte) error {
	var structural elementJSON
	if err := json.Unmarshal(data, &structural); err != nil {
		return err
	}

	if len(structural.Type) > 0 {
		var literal string
		if err := json.Unmarshal(structural.Type, &literal); err == nil {
			e.Type = literal
		} else {
			var ref typeRef
			if err := json.Unmarshal(structural.Type, &ref); err != nil || len(ref.Ref) == 0 {
				return fmt.Errorf("unparseable element type: %s", string(structural.Type))
			}
			e.Ref = ref.Ref
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tags := make(map[string]any)
	for key, value := range raw {
		if !strings.HasPrefix(key, "@") {
			continue
		}
		var decoded any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return fmt.Errorf("failed to decode annotation %q: %w", key, err)
		}
		tags[key] = decoded
	}

	e.Key = structural.Key
	e.Target = structural.Target
	e.Items = structural.Items
	e.Tags = tags
	return nil
}

// Definition returns the definition with the given qualified name.
func (m *Model) Definition(name string) (*Definition, bool) {
	def, ok := m.Definitions[name]
	return def, ok
}

// ServiceOf returns the name of the service a definition belongs to, derived
// from the longest service-kind prefix of its qualified name. Empty if the
// definition is not under any service.
func (m *Model) ServiceOf(name string) string {
	best := ""
	for candidate, def := range m.Definitions {
		if def.Kind != KindService {
			continue
		}
		if strings.HasPrefix(name, candidate+".") && len(candidate) > len(best) {
			best = candidate
		}
	}
	return best
}

// Names returns all definition names in deterministic order.
func (m *Model) Names() []string {
	names := make([]string, 0, len(m.Definitions))
	for name := range m.Definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tag returns the raw value of an annotation tag on the definition.
func (d *Definition) Tag(name string) (any, bool) {
	value, ok := d.Tags[name]
	return value, ok
}

// TagString returns a tag value as a string, or "" when absent or non-string.
func (d *Definition) TagString(name string) string {
	value, ok := d.Tags[name]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// HasTag reports whether the definition carries the given annotation tag.
func (d *Definition) HasTag(name string) bool {
	_, ok := d.Tags[name]
	return ok
}

// ElementNames returns the definition's element names in deterministic order.
func (d *Definition) ElementNames() []string {
	names := make([]string, 0, len(d.Elements))
	for name := range d.Elements {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tag returns the raw value of an annotation tag on the element.
func (e *Element) Tag(name string) (any, bool) {
	value, ok := e.Tags[name]
	return value, ok
}

// TagString returns an element tag value as a string, or "" when absent.
func (e *Element) TagString(name string) string {
	value, ok := e.Tags[name]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// BoolTag returns true when the element carries the tag with a true value.
func (e *Element) BoolTag(name string) bool {
	value, ok := e.Tags[name]
	if !ok {
		return false
	}
	b, _ := value.(bool)
	return b
}

// IsAssociation reports whether the element is an association or composition.
func (e *Element) IsAssociation() bool {
	return e.Type == TypeAssociation || e.Type == TypeComposition
}

// IsComposition reports whether the element is a composition (owned children).
func (e *Element) IsComposition() bool {
	return e.Type == TypeComposition
}

// IsArrayed reports whether the element is array-valued.
func (e *Element) IsArrayed() bool {
	return e.Items != nil
}

// IsStringType reports whether a resolved type name is string-valued.
// Used to decide which columns participate in quick search.
func IsStringType(typeName string) bool {
	return typeName == TypeString || typeName == TypeLargeString
}

// IsSafeIntegerType reports whether the type fits in the JSON-safe integer
// range, so digit-only string values may be converted to numbers.
func IsSafeIntegerType(typeName string) bool {
	switch typeName {
	case TypeInteger, TypeInt16, TypeInt32, TypeUInt8:
		return true
	}
	return false
}

// IsUnsignedType reports whether the type rejects negative values.
func IsUnsignedType(typeName string) bool {
	return typeName == TypeUInt8
}

// IsPrecisionSensitiveType reports whether numeric values of the type must be
// carried as strings to avoid precision loss beyond the safe-integer range.
func IsPrecisionSensitiveType(typeName string) bool {
	return typeName == TypeInt64 || typeName == TypeDecimal
}

// IsBuiltinType reports whether a type name refers to a built-in cds type
// rather than another definition.
func IsBuiltinType(typeName string) bool {
	return strings.HasPrefix(typeName, "cds.")
}
