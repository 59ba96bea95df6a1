// Package sqlstore implements the bookkeeping Store and a local ReplicaCatalog on SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/logger"
)

// Store is the SQLite bookkeeping registry
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var (
	_ bookkeeping.Store          = (*Store)(nil)
	_ bookkeeping.ReplicaCatalog = (*Store)(nil)
)

// New creates a store over an already migrated database
func New(db *sql.DB, l *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger.OrComponent(l, "sqlstore")}
}

// DB returns the underlying connection
func (s *Store) DB() *sql.DB {
	return s.db
}

type colKind int

const (
	colText colKind = iota
	colInt
	colReal
)

type column struct {
	name string
	kind colKind
}

// rowColumns splits an attribute row into mapped columns and leftover parameters.
// Columns come out in attribute-name order so statements are deterministic.
func rowColumns(mapping map[string]column, row bookkeeping.Row) (names []string, args []interface{}, extras map[string]string, err error) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	extras = make(map[string]string)
	for _, key := range keys {
		value := row[key]
		col, ok := mapping[key]
		if !ok {
			extras[key] = value
			continue
		}
		arg, err := convert(col.kind, value)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "attribute %s", key)
		}
		names = append(names, col.name)
		args = append(args, arg)
	}
	return names, args, extras, nil
}

func convert(kind colKind, value string) (interface{}, error) {
	if value == "" && kind != colText {
		return nil, nil
	}
	switch kind {
	case colInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid integer %q", value)
		}
		return n, nil
	case colReal:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", value)
		}
		return f, nil
	default:
		return value, nil
	}
}

func insertStatement(table string, names []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES (" + placeholders + ")"
}

func inClause(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func insertParameters(ctx context.Context, tx *sql.Tx, table, idColumn string, id int64, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+" ("+idColumn+", name, value) VALUES (?, ?, ?)")
	if err != nil {
		return errors.Wrapf(err, "prepare %s insert", table)
	}
	defer stmt.Close()

	for name, value := range params {
		if _, err := stmt.ExecContext(ctx, id, name, value); err != nil {
			return errors.Wrapf(err, "insert %s %s", table, name)
		}
	}
	return nil
}

// insertRow inserts a mapped row and its leftover parameters in one transaction
func (s *Store) insertRow(ctx context.Context, table, paramTable, idColumn string, mapping map[string]column, row bookkeeping.Row) (int64, error) {
	names, args, extras, err := rowColumns(mapping, row)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertStatement(table, names), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "insert into %s", table)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrapf(err, "%s id", table)
	}

	if err := insertParameters(ctx, tx, paramTable, idColumn, id, extras); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return id, nil
}

func execAffecting(ctx context.Context, db *sql.DB, what string, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to %s", what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to %s", what)
	}
	if n == 0 {
		return errors.Wrapf(bookkeeping.ErrNotFound, "%s", what)
	}
	return nil
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat64(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
