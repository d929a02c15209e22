// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

/*
Package resourcesync writes fresh resource batches into snapshot tables with
change detection.

A batch is normalized, deduplicated by identity (last occurrence wins),
hashed and loaded into sync_staging.<Resource>. One transaction then updates
target rows whose hash differs and inserts rows with no target match.
Unchanged rows are not written, so CreateDate never moves and
LastModifiedDate only moves when content changes. Rows absent from the batch
are left alone unless SoftDeleteMissing is called before cleanup.

Database statements ignore context cancellation once started; a shutdown
waits for the current resource to commit or roll back.
*/
package resourcesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/lmsync/internal/logging"
	"github.com/tomtom215/lmsync/internal/metrics"
	"github.com/tomtom215/lmsync/internal/models"
)

var (
	// ErrNoIdentity is returned when a resource declares no identity columns.
	ErrNoIdentity = errors.New("resource has no identity columns")

	// ErrEmptyIdentity is returned when a record has a missing or blank identity value.
	ErrEmptyIdentity = errors.New("record has an empty identity value")
)

// Outcome classifies one reconciled row.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Row is one reconciled record with the stored timestamps after the sync.
type Row struct {
	Record           models.Record
	Hash             string
	Outcome          Outcome
	CreateDate       time.Time
	LastModifiedDate time.Time
}

// Reconciled is the result of syncing one batch.
type Reconciled struct {
	Rows      []Row
	Inserted  int
	Updated   int
	Unchanged int
}

// Writer syncs resource batches into DuckDB.
//
// Thread Safety: A Writer may be shared, but two syncs of the same resource
// must not overlap because they share the staging table.
type Writer struct {
	db  *sql.DB
	now func() time.Time
}

// NewWriter creates a Writer over db.
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db, now: time.Now}
}

// timestamp returns the writer clock truncated to DuckDB precision.
func (w *Writer) timestamp() time.Time {
	return w.now().UTC().Truncate(time.Microsecond)
}

// EnsureTable creates the resource schema and snapshot table if missing.
func (w *Writer) EnsureTable(ctx context.Context, res *models.Resource) error {
	if err := validateResource(res); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	for _, stmt := range []string{
		"CREATE SCHEMA IF NOT EXISTS " + res.Schema,
		"CREATE SCHEMA IF NOT EXISTS " + models.StagingSchema,
		res.CreateTableSQL(),
	} {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure table %s: %w", res.Table(), err)
		}
	}
	return nil
}

// Sync runs SyncWithoutCleanup and then CleanupAfterSync.
func (w *Writer) Sync(ctx context.Context, res *models.Resource, records []models.Record) (Reconciled, error) {
	result, err := w.SyncWithoutCleanup(ctx, res, records)
	if err != nil {
		return result, err
	}
	if err := w.CleanupAfterSync(ctx, res); err != nil {
		return result, err
	}
	return result, nil
}

// SyncWithoutCleanup writes the batch and leaves the staging table in place
// for follow-up statements such as SoftDeleteMissing.
func (w *Writer) SyncWithoutCleanup(ctx context.Context, res *models.Resource, records []models.Record) (Reconciled, error) {
	start := time.Now()
	staged, err := prepareBatch(res, records)
	if err != nil {
		return Reconciled{}, err
	}
	if err := w.EnsureTable(ctx, res); err != nil {
		return Reconciled{}, err
	}

	ctx = context.WithoutCancel(ctx)
	now := w.timestamp()

	result, err := w.writeBatch(ctx, res, staged, now)
	metrics.RecordDBQuery("sync_"+res.Name, time.Since(start), err)
	if err != nil {
		return Reconciled{}, fmt.Errorf("sync %s: %w", res.Table(), err)
	}

	logging.Debug().
		Str("resource", res.Table()).
		Int("rows", len(result.Rows)).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Msg("Resource batch synced")
	return result, nil
}

// stagedRecord is a normalized, hashed batch entry.
type stagedRecord struct {
	key    string
	record models.Record
	hash   string
}

// prepareBatch normalizes, validates, hashes and deduplicates records.
// Output order is the order of first appearance; values come from the last.
func prepareBatch(res *models.Resource, records []models.Record) ([]stagedRecord, error) {
	if err := validateResource(res); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(records))
	staged := make([]stagedRecord, 0, len(records))

	for i, rec := range records {
		normalized := make(models.Record, len(res.Columns))
		for _, col := range res.Columns {
			v, err := col.Normalize(rec[col.Name])
			if err != nil {
				return nil, fmt.Errorf("%s record %d: %w", res.Table(), i, err)
			}
			normalized[col.Name] = v
		}

		key, ok := normalized.IdentityKey(res.IdentityColumns)
		if !ok {
			return nil, fmt.Errorf("%w: %s record %d (%s)", ErrEmptyIdentity, res.Table(), i,
				strings.Join(res.IdentityColumns, ", "))
		}

		hash, err := Hash(normalized, res)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", res.Table(), i, err)
		}

		entry := stagedRecord{key: key, record: normalized, hash: hash}
		if pos, dup := index[key]; dup {
			staged[pos] = entry
			continue
		}
		index[key] = len(staged)
		staged = append(staged, entry)
	}
	return staged, nil
}

func validateResource(res *models.Resource) error {
	if res == nil {
		return errors.New("resource descriptor is nil")
	}
	if len(res.IdentityColumns) == 0 {
		return fmt.Errorf("%w: %s", ErrNoIdentity, res.Table())
	}
	return res.Validate()
}

// writeBatch loads staging and applies updates and inserts in one transaction.
func (w *Writer) writeBatch(ctx context.Context, res *models.Resource, staged []stagedRecord, now time.Time) (result Reconciled, err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return Reconciled{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().
					Err(rbErr).
					AnErr("original_error", err).
					Str("resource", res.Table()).
					Msg("Transaction rollback failed")
			}
		}
	}()

	if err = loadStaging(ctx, tx, res, staged); err != nil {
		return Reconciled{}, err
	}

	stored, err := storedHashes(ctx, tx, res)
	if err != nil {
		return Reconciled{}, err
	}

	if _, err = tx.ExecContext(ctx, updateChangedSQL(res), now); err != nil {
		return Reconciled{}, fmt.Errorf("update changed rows: %w", err)
	}
	if _, err = tx.ExecContext(ctx, insertNewSQL(res), now, now); err != nil {
		return Reconciled{}, fmt.Errorf("insert new rows: %w", err)
	}

	dates, err := storedDates(ctx, tx, res)
	if err != nil {
		return Reconciled{}, err
	}

	if err = tx.Commit(); err != nil {
		return Reconciled{}, fmt.Errorf("failed to commit: %w", err)
	}

	result.Rows = make([]Row, 0, len(staged))
	for _, s := range staged {
		row := Row{Record: s.record, Hash: s.hash}
		prev, exists := stored[s.key]
		switch {
		case !exists:
			row.Outcome = OutcomeInserted
			result.Inserted++
		case prev != s.hash:
			row.Outcome = OutcomeUpdated
			result.Updated++
		default:
			row.Outcome = OutcomeUnchanged
			result.Unchanged++
		}
		if d, ok := dates[s.key]; ok {
			row.CreateDate = d[0]
			row.LastModifiedDate = d[1]
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// loadStaging creates or truncates the staging table and inserts the batch.
func loadStaging(ctx context.Context, tx *sql.Tx, res *models.Resource, staged []stagedRecord) error {
	if _, err := tx.ExecContext(ctx, res.CreateStagingSQL()); err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+res.StagingTable()); err != nil {
		return fmt.Errorf("truncate staging table: %w", err)
	}
	if len(staged) == 0 {
		return nil
	}

	cols := append(res.ColumnNames(), models.HashColumn)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		res.StagingTable(), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare staging insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for _, s := range staged {
		for i, col := range res.Columns {
			args[i] = s.record[col.Name]
		}
		args[len(cols)-1] = s.hash
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("stage record: %w", err)
		}
	}
	return nil
}

// identityJoin renders "t.A = s.A AND t.B = s.B".
func identityJoin(res *models.Resource, left, right string) string {
	parts := make([]string, len(res.IdentityColumns))
	for i, c := range res.IdentityColumns {
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", left, c, right, c)
	}
	return strings.Join(parts, " AND ")
}

func updateChangedSQL(res *models.Resource) string {
	attrs := res.AttributeColumns()
	sets := make([]string, 0, len(attrs)+2)
	for _, c := range attrs {
		sets = append(sets, fmt.Sprintf("%s = s.%s", c.Name, c.Name))
	}
	sets = append(sets,
		fmt.Sprintf("%s = s.%s", models.HashColumn, models.HashColumn),
		models.LastModifiedDateColumn+" = ?",
	)
	return fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE %s AND t.%s <> s.%s",
		res.Table(), strings.Join(sets, ", "), res.StagingTable(),
		identityJoin(res, "t", "s"), models.HashColumn, models.HashColumn)
}

func insertNewSQL(res *models.Resource) string {
	names := res.ColumnNames()
	selectCols := make([]string, len(names))
	for i, n := range names {
		selectCols[i] = "s." + n
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s) SELECT %s, s.%s, ?, ? FROM %s AS s WHERE NOT EXISTS (SELECT 1 FROM %s AS t WHERE %s)",
		res.Table(), strings.Join(names, ", "), models.HashColumn, models.CreateDateColumn, models.LastModifiedDateColumn,
		strings.Join(selectCols, ", "), models.HashColumn,
		res.StagingTable(), res.Table(), identityJoin(res, "t", "s"))
}

func identitySelect(res *models.Resource, alias string) string {
	cols := make([]string, len(res.IdentityColumns))
	for i, c := range res.IdentityColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// storedHashes returns the current target hash for every staged identity.
func storedHashes(ctx context.Context, tx *sql.Tx, res *models.Resource) (map[string]string, error) {
	query := fmt.Sprintf("SELECT %s, t.%s FROM %s AS t JOIN %s AS s ON %s",
		identitySelect(res, "t"), models.HashColumn, res.Table(), res.StagingTable(), identityJoin(res, "t", "s"))
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stored hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		key, rest, err := scanIdentity(rows, res, 1)
		if err != nil {
			return nil, err
		}
		out[key] = *(rest[0].(*string))
	}
	return out, rows.Err()
}

// storedDates returns CreateDate and LastModifiedDate for every staged identity.
func storedDates(ctx context.Context, tx *sql.Tx, res *models.Resource) (map[string][2]time.Time, error) {
	query := fmt.Sprintf("SELECT %s, t.%s, t.%s FROM %s AS t JOIN %s AS s ON %s",
		identitySelect(res, "t"), models.CreateDateColumn, models.LastModifiedDateColumn,
		res.Table(), res.StagingTable(), identityJoin(res, "t", "s"))
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stored dates: %w", err)
	}
	defer rows.Close()

	out := make(map[string][2]time.Time)
	for rows.Next() {
		key, rest, err := scanIdentityTimes(rows, res)
		if err != nil {
			return nil, err
		}
		out[key] = rest
	}
	return out, rows.Err()
}

// scanIdentity scans identity columns followed by n string columns.
func scanIdentity(rows *sql.Rows, res *models.Resource, n int) (string, []any, error) {
	ids := make([]any, len(res.IdentityColumns))
	dest := make([]any, 0, len(ids)+n)
	for i := range ids {
		dest = append(dest, &ids[i])
	}
	extra := make([]any, n)
	for i := range extra {
		var s string
		extra[i] = &s
		dest = append(dest, extra[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return "", nil, fmt.Errorf("scan identity: %w", err)
	}
	return identityKey(res, ids), extra, nil
}

func scanIdentityTimes(rows *sql.Rows, res *models.Resource) (string, [2]time.Time, error) {
	ids := make([]any, len(res.IdentityColumns))
	dest := make([]any, 0, len(ids)+2)
	for i := range ids {
		dest = append(dest, &ids[i])
	}
	var created, modified time.Time
	dest = append(dest, &created, &modified)
	if err := rows.Scan(dest...); err != nil {
		return "", [2]time.Time{}, fmt.Errorf("scan identity: %w", err)
	}
	return identityKey(res, ids), [2]time.Time{created.UTC(), modified.UTC()}, nil
}

func identityKey(res *models.Resource, values []any) string {
	rec := make(models.Record, len(values))
	for i, c := range res.IdentityColumns {
		rec[c] = values[i]
	}
	key, _ := rec.IdentityKey(res.IdentityColumns)
	return key
}

// CleanupAfterSync drops the resource staging table.
func (w *Writer) CleanupAfterSync(ctx context.Context, res *models.Resource) error {
	ctx = context.WithoutCancel(ctx)
	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+res.StagingTable()); err != nil {
		return fmt.Errorf("drop staging table %s: %w", res.StagingTable(), err)
	}
	return nil
}

// SoftDeleteMissing marks target rows in scope that are absent from the
// current staging table as deleted. It must run after SyncWithoutCleanup and
// before CleanupAfterSync. scope is a column equality filter (for example
// SourceSystem); an empty scope covers the whole table. The hash is reset so
// that a record reappearing later is treated as changed.
func (w *Writer) SoftDeleteMissing(ctx context.Context, res *models.Resource, scope map[string]any) (int, error) {
	if err := validateResource(res); err != nil {
		return 0, err
	}
	if _, ok := res.Column(models.DeletedAtColumn); !ok {
		return 0, fmt.Errorf("resource %s has no %s column", res.Table(), models.DeletedAtColumn)
	}

	names := make([]string, 0, len(scope))
	for name := range scope {
		if _, ok := res.Column(name); !ok {
			return 0, fmt.Errorf("scope column %s is not a column of %s", name, res.Table())
		}
		names = append(names, name)
	}
	sort.Strings(names)

	now := w.timestamp()
	args := []any{now, now}
	where := []string{"t." + models.DeletedAtColumn + " IS NULL"}
	for _, name := range names {
		where = append(where, fmt.Sprintf("t.%s = ?", name))
		args = append(args, scope[name])
	}
	where = append(where, fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		res.StagingTable(), identityJoin(res, "s", "t")))

	query := fmt.Sprintf("UPDATE %s AS t SET %s = ?, %s = ?, %s = '' WHERE %s",
		res.Table(), models.DeletedAtColumn, models.LastModifiedDateColumn, models.HashColumn,
		strings.Join(where, " AND "))

	start := time.Now()
	result, err := w.db.ExecContext(context.WithoutCancel(ctx), query, args...)
	metrics.RecordDBQuery("soft_delete_"+res.Name, time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("soft delete missing %s: %w", res.Table(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("soft delete missing %s: %w", res.Table(), err)
	}

	if affected > 0 {
		logging.Info().Str("resource", res.Table()).Int64("rows", affected).Msg("Soft deleted records missing from source")
	}
	return int(affected), nil
}
