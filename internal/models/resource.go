// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Writer-owned columns present on every snapshot table.
const (
	HashColumn             = "Hash"
	CreateDateColumn       = "CreateDate"
	LastModifiedDateColumn = "LastModifiedDate"
	DeletedAtColumn        = "DeletedAt"
)

// StagingSchema holds the per-resource staging tables used by the sync writer.
const StagingSchema = "sync_staging"

// ColumnType is a DuckDB column type.
type ColumnType string

const (
	TypeText      ColumnType = "VARCHAR"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeDouble    ColumnType = "DOUBLE"
	TypeInteger   ColumnType = "BIGINT"
	TypeBoolean   ColumnType = "BOOLEAN"
)

// Column describes one data column of a resource.
type Column struct {
	Name string
	Type ColumnType
}

// Resource describes a snapshot table: its identity, its attributes and the
// link columns the harmonizer owns. Link columns are created with the table
// but never written by the sync writer.
type Resource struct {
	Name            string
	Schema          string
	Columns         []Column // identity and attribute columns, in table order
	IdentityColumns []string
	LinkColumns     []Column
	VolatileColumns []string // attributes excluded from the content hash
}

// Table returns the schema-qualified table name.
func (r *Resource) Table() string {
	return r.Schema + "." + r.Name
}

// StagingTable returns the schema-qualified staging table name.
func (r *Resource) StagingTable() string {
	return StagingSchema + "." + r.Name
}

// Column looks up a data column by name.
func (r *Resource) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsIdentity reports whether name is one of the identity columns.
func (r *Resource) IsIdentity(name string) bool {
	for _, c := range r.IdentityColumns {
		if c == name {
			return true
		}
	}
	return false
}

func (r *Resource) isVolatile(name string) bool {
	for _, c := range r.VolatileColumns {
		if c == name {
			return true
		}
	}
	return false
}

// AttributeColumns returns the non-identity data columns in table order.
func (r *Resource) AttributeColumns() []Column {
	out := make([]Column, 0, len(r.Columns))
	for _, c := range r.Columns {
		if !r.IsIdentity(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// HashColumns returns the sorted names of the columns covered by the content
// hash: every attribute that is neither identity nor volatile.
func (r *Resource) HashColumns() []string {
	out := make([]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		if r.IsIdentity(c.Name) || r.isVolatile(c.Name) {
			continue
		}
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

// ColumnNames returns the data column names in table order.
func (r *Resource) ColumnNames() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that the descriptor is usable by the sync writer.
func (r *Resource) Validate() error {
	if r.Name == "" || r.Schema == "" {
		return errors.New("resource name and schema are required")
	}
	if len(r.IdentityColumns) == 0 {
		return fmt.Errorf("resource %s has no identity columns", r.Table())
	}
	seen := make(map[string]bool, len(r.Columns))
	for _, c := range r.Columns {
		if seen[c.Name] {
			return fmt.Errorf("resource %s declares column %s twice", r.Table(), c.Name)
		}
		seen[c.Name] = true
	}
	for _, id := range r.IdentityColumns {
		if !seen[id] {
			return fmt.Errorf("resource %s identity column %s is not a declared column", r.Table(), id)
		}
	}
	for _, v := range r.VolatileColumns {
		if !seen[v] {
			return fmt.Errorf("resource %s volatile column %s is not a declared column", r.Table(), v)
		}
	}
	return nil
}

// CreateTableSQL returns the DDL for the snapshot table.
func (r *Resource) CreateTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", r.Table())
	for _, c := range r.Columns {
		nullability := ""
		if r.IsIdentity(c.Name) {
			nullability = " NOT NULL"
		}
		fmt.Fprintf(&b, "\t%s %s%s,\n", c.Name, c.Type, nullability)
	}
	for _, c := range r.LinkColumns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, c.Type)
	}
	fmt.Fprintf(&b, "\t%s VARCHAR(64) NOT NULL,\n", HashColumn)
	fmt.Fprintf(&b, "\t%s TIMESTAMP NOT NULL,\n", CreateDateColumn)
	fmt.Fprintf(&b, "\t%s TIMESTAMP NOT NULL,\n", LastModifiedDateColumn)
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(r.IdentityColumns, ", "))
	return b.String()
}

// CreateStagingSQL returns the DDL for the staging table. It mirrors the data
// columns and carries the precomputed hash.
func (r *Resource) CreateStagingSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", r.StagingTable())
	for _, c := range r.Columns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.Name, c.Type)
	}
	fmt.Fprintf(&b, "\t%s VARCHAR(64) NOT NULL\n)", HashColumn)
	return b.String()
}

// Normalize converts a record value to the Go type bound for this column.
// Strings are parsed for timestamp and numeric columns so that vendor JSON
// and typed values hash and compare the same. Blank strings become nil for
// non-text columns.
func (c Column) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		default:
			return fmt.Sprint(x), nil
		}
	case TypeTimestamp:
		return normalizeTime(c.Name, v)
	case TypeDouble:
		return normalizeFloat(c.Name, v)
	case TypeInteger:
		f, err := normalizeFloat(c.Name, v)
		if f == nil || err != nil {
			return nil, err
		}
		fv := f.(float64)
		if fv != math.Trunc(fv) {
			return nil, fmt.Errorf("column %s: %v is not an integer", c.Name, v)
		}
		return int64(fv), nil
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if strings.TrimSpace(x) == "" {
				return nil, nil
			}
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("column %s: unsupported value %T for type %s", c.Name, v, c.Type)
}

// Timestamp layouts accepted from vendor payloads.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func normalizeTime(column string, v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return x.UTC().Truncate(time.Microsecond), nil
	case *time.Time:
		if x == nil || x.IsZero() {
			return nil, nil
		}
		return x.UTC().Truncate(time.Microsecond), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case float64:
		return time.Unix(int64(x), 0).UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Truncate(time.Microsecond), nil
			}
		}
		return nil, fmt.Errorf("column %s: cannot parse timestamp %q", column, s)
	}
	return nil, fmt.Errorf("column %s: unsupported timestamp value %T", column, v)
}

func normalizeFloat(column string, v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("column %s: unsupported numeric value %T", column, v)
}
