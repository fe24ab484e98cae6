package compiler

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
)

// fakeRuntime records every statement and serves canned results. InTx runs
// the callback against the fake itself, so transactional paths are observable
// without a database.
type fakeRuntime struct {
	queries      []*dataaccess.Select
	queryResults [][]map[string]any
	queryErr     error

	inserts      []*dataaccess.Insert
	insertResult map[string]any
	insertErr    error

	updates        []*dataaccess.Update
	updateAffected int64
	updateErr      error

	deletes        []*dataaccess.Delete
	deleteAffected int64

	draftEntities []string
	draftRows     []map[string]any
	draftResult   map[string]any
	draftErr      error
	draftInTx     []bool

	txDepth int
}

func (f *fakeRuntime) Query(ctx context.Context, stmt *dataaccess.Select) ([]map[string]any, error) {
	f.queries = append(f.queries, stmt)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryResults) == 0 {
		return nil, nil
	}
	rows := f.queryResults[0]
	f.queryResults = f.queryResults[1:]
	return rows, nil
}

func (f *fakeRuntime) Insert(ctx context.Context, stmt *dataaccess.Insert) (map[string]any, error) {
	f.inserts = append(f.inserts, stmt)
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if f.insertResult != nil {
		return f.insertResult, nil
	}
	return stmt.Row, nil
}

func (f *fakeRuntime) Update(ctx context.Context, stmt *dataaccess.Update) (int64, error) {
	f.updates = append(f.updates, stmt)
	return f.updateAffected, f.updateErr
}

func (f *fakeRuntime) Delete(ctx context.Context, stmt *dataaccess.Delete) (int64, error) {
	f.deletes = append(f.deletes, stmt)
	return f.deleteAffected, nil
}

func (f *fakeRuntime) InTx(ctx context.Context, fn func(ctx context.Context, tx dataaccess.Runtime) error) error {
	f.txDepth++
	defer func() { f.txDepth-- }()
	return fn(ctx, f)
}

func (f *fakeRuntime) NewDraft(ctx context.Context, entity string, row map[string]any) (map[string]any, error) {
	f.draftEntities = append(f.draftEntities, entity)
	f.draftRows = append(f.draftRows, row)
	f.draftInTx = append(f.draftInTx, f.txDepth > 0)
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	if f.draftResult != nil {
		return f.draftResult, nil
	}
	return row, nil
}

var _ dataaccess.Runtime = (*fakeRuntime)(nil)

func bookResource() *annotations.Resource {
	return &annotations.Resource{
		Name:         "Books",
		Description:  "Catalog books",
		Service:      "CatalogService",
		Target:       "CatalogService.Books",
		Capabilities: annotations.AllCapabilities(),
		Properties: map[string]string{
			"ID":        cds.TypeUUID,
			"title":     cds.TypeString,
			"stock":     cds.TypeInteger,
			"secret":    cds.TypeString,
			"createdAt": cds.TypeTimestamp,
			"author_ID": cds.TypeUUID,
		},
		Keys:               map[string]string{"ID": cds.TypeUUID},
		ForeignKeys:        map[string]string{"author": "author_ID"},
		AssociationTargets: map[string]string{"author": "CatalogService.Authors"},
		Omitted:            map[string]struct{}{"secret": {}},
		Computed:           map[string]struct{}{"createdAt": {}},
	}
}

func authorResource() *annotations.Resource {
	return &annotations.Resource{
		Name:         "Authors",
		Service:      "CatalogService",
		Target:       "CatalogService.Authors",
		Capabilities: annotations.AllCapabilities(),
		Properties: map[string]string{
			"ID":   cds.TypeUUID,
			"name": cds.TypeString,
		},
		Keys: map[string]string{"ID": cds.TypeUUID},
	}
}

func newTestCompiler(rt *fakeRuntime, resources ...*annotations.Resource) *Compiler {
	registry := annotations.NewRegistry(resources, nil, nil)
	return New(registry, rt, DefaultConfig(), zap.NewNop())
}

func opCode(err error) Code {
	if opErr, ok := AsOperationError(err); ok {
		return opErr.Code
	}
	return ""
}
