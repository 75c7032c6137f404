// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

// Package schema is the single source of truth for the on-disk layout of the
// log store. The table name, the ordered column set, and every derived SQL
// fragment (CREATE, INSERT column list, SELECT column list) come from the
// catalog in this package, so the writer, reader, and housekeeper can never
// drift apart on what the table looks like.
//
// Incompatible layout changes bump Version, which is embedded in the storage
// file name: a new schema addresses a new file instead of migrating rows in
// place.
package schema

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TableName is the single table holding persisted log entries.
const TableName = "log_entries"

// SequenceName feeds the id column. DuckDB has no AUTOINCREMENT; a sequence
// provides the monotonic row id the store assigns on insert.
const SequenceName = "log_entries_id_seq"

// Version identifies the on-disk layout. Bump on any incompatible column
// change; the version is part of the storage file name, never of the data.
const Version = 2

// Column describes one column of the log entry table.
type Column struct {
	// Name is the SQL column name.
	Name string

	// SQLType is the DuckDB column definition after the name.
	SQLType string

	// Insertable marks columns the batch writer supplies values for.
	// Non-insertable columns (the id) are filled by the engine.
	Insertable bool
}

// columns is the ordered, authoritative column set. Order matters: readers
// resolve scan targets by ordinal through Ordinal(), and the INSERT statement
// lists insertable columns in this order.
var columns = []Column{
	{Name: "id", SQLType: fmt.Sprintf("BIGINT PRIMARY KEY DEFAULT nextval('%s')", SequenceName), Insertable: false},
	{Name: "timestamp", SQLType: "TIMESTAMP NOT NULL", Insertable: true},
	{Name: "level", SQLType: "INTEGER NOT NULL", Insertable: true},
	{Name: "category", SQLType: "VARCHAR NOT NULL", Insertable: true},
	{Name: "event_id", SQLType: "INTEGER NOT NULL DEFAULT 0", Insertable: true},
	{Name: "event_name", SQLType: "VARCHAR", Insertable: true},
	{Name: "message_template", SQLType: "VARCHAR", Insertable: true},
	{Name: "rendered_message", SQLType: "VARCHAR", Insertable: true},
	{Name: "parameters", SQLType: "VARCHAR", Insertable: true},
	{Name: "scopes", SQLType: "VARCHAR", Insertable: true},
	{Name: "exception", SQLType: "VARCHAR", Insertable: true},
}

// ordinals maps column name to position in the full column set.
var ordinals = func() map[string]int {
	m := make(map[string]int, len(columns))
	for i, c := range columns {
		m[c.Name] = i
	}
	return m
}()

// Columns returns a copy of the ordered column descriptors.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

// AllColumnNames returns every column name in catalog order. This is the
// column list the reader SELECTs, identical to the set CREATE declares.
func AllColumnNames() []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// InsertableColumnNames returns the names of the columns the batch writer
// provides values for, in catalog order.
func InsertableColumnNames() []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		if c.Insertable {
			names = append(names, c.Name)
		}
	}
	return names
}

// Ordinal returns the position of the named column in the full column set,
// or -1 if the catalog does not declare it.
func Ordinal(name string) int {
	if i, ok := ordinals[name]; ok {
		return i
	}
	return -1
}

// BuildSequenceStatement returns the CREATE SEQUENCE statement backing the
// id column. Executed before BuildCreateStatement.
func BuildSequenceStatement() string {
	return fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", SequenceName)
}

// BuildCreateStatement derives the CREATE TABLE statement from the catalog.
func BuildCreateStatement() string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = c.Name + " " + c.SQLType
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", TableName, strings.Join(defs, ", "))
}

// BuildIndexStatements derives the secondary indexes used by the housekeeper
// (timestamp range deletes) and the reader (ordered scans use the id PK).
func BuildIndexStatements() []string {
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp)", TableName, TableName),
	}
}

// BuildInsertStatement derives the multi-value INSERT prefix covering the
// insertable column set, with one placeholder per column.
func BuildInsertStatement() string {
	names := InsertableColumnNames()
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName, strings.Join(names, ", "), strings.Join(placeholders, ", "))
}

// BuildSelectStatement derives the full-column SELECT prefix, ordered by id
// so scans observe insert order.
func BuildSelectStatement() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(AllColumnNames(), ", "), TableName)
}

// StorageFileName returns the storage file path for the current schema
// version inside dir. Embedding the version in the name means a layout bump
// opens a fresh file rather than attempting in-place migration.
func StorageFileName(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("logpond-v%d.duckdb", Version))
}
