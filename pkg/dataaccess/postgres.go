package dataaccess

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/logging"
)

// dbtx is the subset of pgx shared by pools and transactions.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB wraps a pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a connection pool and verifies connectivity.
func Connect(ctx context.Context, connString string, logger *zap.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("conn", logging.SanitizeConnectionString(connString)))
	return &DB{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Runtime returns the Runtime backed by this pool.
func (db *DB) Runtime() Runtime {
	return &pgRuntime{q: db.pool, pool: db.pool, logger: db.logger}
}

// pgRuntime executes structured statements against postgres. Inside a
// transaction, q is the pgx.Tx and pool is nil.
type pgRuntime struct {
	q      dbtx
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Runtime = (*pgRuntime)(nil)

func (r *pgRuntime) Query(ctx context.Context, stmt *Select) ([]map[string]any, error) {
	sql, args, err := stmt.SQL()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("executed query",
		zap.String("sql", logging.SanitizeQuery(sql)),
		zap.Int("rows", len(result)),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

func (r *pgRuntime) Insert(ctx context.Context, stmt *Insert) (map[string]any, error) {
	sql, args, err := stmt.SQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	defer rows.Close()

	stored, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", stmt.Into)
	}
	return stored[0], nil
}

func (r *pgRuntime) Update(ctx context.Context, stmt *Update) (int64, error) {
	sql, args, err := stmt.SQL()
	if err != nil {
		return 0, err
	}
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("update failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgRuntime) Delete(ctx context.Context, stmt *Delete) (int64, error) {
	sql, args, err := stmt.SQL()
	if err != nil {
		return 0, err
	}
	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgRuntime) InTx(ctx context.Context, fn func(ctx context.Context, tx Runtime) error) error {
	if r.pool == nil {
		// Already inside a transaction; join it.
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txRuntime := &pgRuntime{q: tx, logger: r.logger}
	if err := fn(ctx, txRuntime); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && rbErr != pgx.ErrTxClosed {
			r.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// NewDraft creates the administrative draft record and the root draft row in
// one transaction, so a failed draft-row insert cannot leave an orphaned
// administrative record behind.
func (r *pgRuntime) NewDraft(ctx context.Context, entity string, row map[string]any) (map[string]any, error) {
	user := auth.UserFromContext(ctx)
	now := time.Now().UTC()
	draftUUID := uuid.New().String()

	adminRow := map[string]any{
		ColDraftUUID:         draftUUID,
		"CreationDateTime":   now,
		"CreatedByUser":      user.ID,
		"LastChangeDateTime": now,
		"LastChangedByUser":  user.ID,
		"InProcessByUser":    user.ID,
	}

	draftRow := make(map[string]any, len(row)+3)
	for key, value := range row {
		draftRow[key] = value
	}
	draftRow[ColDraftAdminFK] = draftUUID
	draftRow[ColIsActiveEntity] = false
	draftRow[ColHasActiveEntity] = false

	var stored map[string]any
	err := r.InTx(ctx, func(txCtx context.Context, tx Runtime) error {
		if _, err := tx.Insert(txCtx, &Insert{Into: DraftAdminTable, Row: adminRow}); err != nil {
			return fmt.Errorf("failed to create draft administrative record: %w", err)
		}
		var err error
		stored, err = tx.Insert(txCtx, &Insert{Into: DraftTableName(entity), Row: draftRow})
		if err != nil {
			return fmt.Errorf("failed to create draft row: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// collectRows materializes pgx rows into field-name keyed maps.
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for idx, field := range fields {
			row[field.Name] = values[idx]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return result, nil
}
