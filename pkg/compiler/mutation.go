package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
	sqlguard "github.com/ekaya-inc/cds-mcp-bridge/pkg/sql"
)

// childLink resolves where a deep-inserted child row attaches to its parent.
type childLink struct {
	Assoc     string
	Target    *annotations.Resource
	FK        string
	ParentKey string
}

// Create inserts a new entity instance. Association values are mapped to
// their foreign-key columns, deep-insert children are written in the same
// transaction, and draft-enabled entities are routed into the draft
// lifecycle instead of the active table.
func (c *Compiler) Create(ctx context.Context, res *annotations.Resource, args map[string]any) (map[string]any, error) {
	row, children, verr := c.buildWritePayload(res, args, nil)
	if verr != nil {
		return nil, verr
	}
	if len(row) == 0 && len(children) == 0 {
		return nil, NewError(CodeNoFields, "create for %s carries no fields", res.Name)
	}

	links, lerr := c.resolveChildLinks(res, children)
	if lerr != nil {
		return nil, lerr
	}

	if c.isDraftRouted(res) {
		return c.createDraft(ctx, res, row, children, links)
	}

	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var stored map[string]any
	err := c.runtime.InTx(execCtx, func(txCtx context.Context, tx dataaccess.Runtime) error {
		var txErr error
		stored, txErr = tx.Insert(txCtx, &dataaccess.Insert{
			Into: dataaccess.TableName(res.Target),
			Row:  row,
		})
		if txErr != nil {
			return txErr
		}
		return c.insertChildren(txCtx, tx, stored, children, links)
	})
	if err != nil {
		return nil, c.execError(err, CodeCreateFailed)
	}
	return filterRow(stored, res.Omitted), nil
}

// Update modifies one entity instance addressed by its full key. Keys are
// validated before any data access; an update that names no non-key fields
// is rejected rather than silently succeeding.
func (c *Compiler) Update(ctx context.Context, res *annotations.Resource, args map[string]any) (map[string]any, error) {
	predicate, kerr := keyPredicate(res, args)
	if kerr != nil {
		return nil, kerr
	}

	row, children, verr := c.buildWritePayload(res, args, res.Keys)
	if verr != nil {
		return nil, verr
	}
	if len(row) == 0 && len(children) == 0 {
		return nil, NewError(CodeNoFields, "update for %s carries no updatable fields", res.Name)
	}

	links, lerr := c.resolveChildLinks(res, children)
	if lerr != nil {
		return nil, lerr
	}

	table := dataaccess.TableName(res.Target)

	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var stored map[string]any
	err := c.runtime.InTx(execCtx, func(txCtx context.Context, tx dataaccess.Runtime) error {
		if len(row) > 0 {
			affected, txErr := tx.Update(txCtx, &dataaccess.Update{
				Table: table,
				Set:   row,
				Where: predicate,
			})
			if txErr != nil {
				return txErr
			}
			if affected == 0 {
				return NewError(CodeUpdateFailed, "%s not found for the given keys", res.Name)
			}
		}

		rows, txErr := tx.Query(txCtx, &dataaccess.Select{
			From:    table,
			Columns: safeColumns(res),
			Where:   predicate,
			Limit:   1,
		})
		if txErr != nil {
			return txErr
		}
		if len(rows) == 0 {
			return NewError(CodeUpdateFailed, "%s not found for the given keys", res.Name)
		}
		stored = rows[0]

		// Deep-inserted children on update are appended, never diffed.
		return c.insertChildren(txCtx, tx, stored, children, links)
	})
	if err != nil {
		return nil, c.execError(err, CodeUpdateFailed)
	}
	return filterRow(stored, res.Omitted), nil
}

// Delete removes one entity instance addressed by its full key. For
// draft-enabled entities the matching draft shadow row is removed in the
// same transaction.
func (c *Compiler) Delete(ctx context.Context, res *annotations.Resource, args map[string]any) (int64, error) {
	predicate, kerr := keyPredicate(res, args)
	if kerr != nil {
		return 0, kerr
	}

	execCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var affected int64
	err := c.runtime.InTx(execCtx, func(txCtx context.Context, tx dataaccess.Runtime) error {
		var txErr error
		affected, txErr = tx.Delete(txCtx, &dataaccess.Delete{
			From:  dataaccess.TableName(res.Target),
			Where: predicate,
		})
		if txErr != nil {
			return txErr
		}
		if res.DraftEnabled {
			if _, txErr = tx.Delete(txCtx, &dataaccess.Delete{
				From:  dataaccess.DraftTableName(res.Target),
				Where: predicate,
			}); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		return 0, c.execError(err, CodeDeleteFailed)
	}
	if affected == 0 {
		return 0, NewError(CodeDeleteFailed, "%s not found for the given keys", res.Name)
	}
	return affected, nil
}

// buildWritePayload splits the arguments into the flat column row and the
// deep-insert child rows. Keys listed in skipKeys stay out of the row (update
// never rewrites key columns). Computed and omitted properties are rejected,
// association names with scalar values map to their foreign-key columns, and
// string values pass the injection detector even though execution binds them
// as parameters.
func (c *Compiler) buildWritePayload(res *annotations.Resource, args map[string]any, skipKeys map[string]string) (map[string]any, map[string][]map[string]any, *OperationError) {
	row := make(map[string]any)
	children := make(map[string][]map[string]any)
	var violations []string

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := args[name]

		if _, isKey := skipKeys[name]; isKey {
			continue
		}

		if _, deep := res.DeepInserts[name]; deep {
			rows, ok := childRows(value)
			if !ok {
				violations = append(violations, fmt.Sprintf("%s must be an object or a list of objects", name))
				continue
			}
			children[name] = rows
			continue
		}

		if _, ok := res.Properties[name]; ok {
			switch {
			case res.IsComputed(name):
				violations = append(violations, fmt.Sprintf("%s is computed and cannot be written", name))
			case res.IsOmitted(name):
				violations = append(violations, fmt.Sprintf("%s is not accessible", name))
			default:
				if keyType, isKey := res.Keys[name]; isKey {
					value = CoerceKeyValue(keyType, value)
				}
				row[name] = value
			}
			continue
		}

		if fk, ok := res.ForeignKeys[name]; ok {
			row[fk] = value
			continue
		}

		violations = append(violations, fmt.Sprintf("unknown field %q", name))
	}

	if len(violations) > 0 {
		return nil, nil, NewErrorWithDetails(CodeInvalidInput, violations,
			"invalid payload for %s", res.Name)
	}

	if checks := sqlguard.CheckAllValues(row); len(checks) > 0 {
		return nil, nil, NewErrorWithDetails(CodeInvalidInput, checks,
			"payload value for %s failed the injection check", checks[0].Field)
	}
	return row, children, nil
}

// childRows accepts a single object or a list of objects for a deep-insert
// association.
func childRows(value any) ([]map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return []map[string]any{v}, true
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, entry := range v {
			row, ok := entry.(map[string]any)
			if !ok {
				return nil, false
			}
			rows = append(rows, row)
		}
		return rows, true
	}
	return nil, false
}

// resolveChildLinks maps each deep-insert association to the child resource
// and the foreign-key column that points back at the parent. Children must
// themselves be registered resources.
func (c *Compiler) resolveChildLinks(res *annotations.Resource, children map[string][]map[string]any) (map[string]childLink, *OperationError) {
	if len(children) == 0 {
		return nil, nil
	}

	links := make(map[string]childLink, len(children))
	for assoc := range children {
		target := res.DeepInserts[assoc]
		childRes, ok := c.registry.Resource(target)
		if !ok {
			return nil, NewError(CodeInvalidInput,
				"deep insert target %s for %s is not exposed", target, assoc)
		}

		link := childLink{Assoc: assoc, Target: childRes}
		for childAssoc, childTarget := range childRes.AssociationTargets {
			if childTarget != res.Target {
				continue
			}
			if fk, ok := childRes.ForeignKeys[childAssoc]; ok {
				link.FK = fk
				link.ParentKey = strings.TrimPrefix(fk, childAssoc+"_")
				break
			}
		}
		if link.FK == "" {
			return nil, NewError(CodeInvalidInput,
				"deep insert child %s carries no reference back to %s", target, res.Name)
		}
		links[assoc] = link
	}
	return links, nil
}

// insertChildren writes the deep-insert child rows, stamped with the stored
// parent's key, inside the caller's transaction.
func (c *Compiler) insertChildren(ctx context.Context, tx dataaccess.Runtime, parent map[string]any, children map[string][]map[string]any, links map[string]childLink) error {
	assocs := make([]string, 0, len(children))
	for assoc := range children {
		assocs = append(assocs, assoc)
	}
	sort.Strings(assocs)

	for _, assoc := range assocs {
		link := links[assoc]
		parentKey, ok := parent[link.ParentKey]
		if !ok {
			return NewError(CodeCreateFailed,
				"stored parent row is missing key %s for %s", link.ParentKey, assoc)
		}
		for _, raw := range children[assoc] {
			childArgs := make(map[string]any, len(raw))
			for k, v := range raw {
				childArgs[k] = v
			}
			row, nested, verr := c.buildWritePayload(link.Target, childArgs, nil)
			if verr != nil {
				return verr
			}
			if len(nested) > 0 {
				return NewError(CodeInvalidInput,
					"deep insert for %s cannot nest further levels", assoc)
			}
			row[link.FK] = parentKey
			if _, err := tx.Insert(ctx, &dataaccess.Insert{
				Into: dataaccess.TableName(link.Target.Target),
				Row:  row,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// isDraftRouted reports whether a create for this resource belongs in the
// draft lifecycle: the entity is draft-enabled itself, or it is a composition
// child of a draft-enabled parent.
func (c *Compiler) isDraftRouted(res *annotations.Resource) bool {
	if res.DraftEnabled {
		return true
	}
	if res.ParentTarget == "" {
		return false
	}
	parent, ok := c.registry.Resource(res.ParentTarget)
	return ok && parent.DraftEnabled
}
