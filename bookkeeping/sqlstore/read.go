package sqlstore

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// JobRecord is a stored job as an attribute row
type JobRecord struct {
	ID  int64
	Row bookkeeping.Row
}

// FileRecord is a stored file as an attribute row
type FileRecord struct {
	ID    int64
	JobID *int64
	Row   bookkeeping.Row
}

// RunStatusRecord is one run status row
type RunStatusRecord struct {
	Run      int64
	JobID    int64
	Finished string
}

// Job loads a job and its parameters. Missing jobs wrap ErrNotFound.
func (s *Store) Job(ctx context.Context, jobID int64) (*JobRecord, error) {
	row, err := s.selectRow(ctx, "jobs", "job_id", jobID, jobColumns)
	if err != nil {
		return nil, errors.Wrapf(err, "job %d", jobID)
	}
	if err := s.mergeParameters(ctx, "job_parameters", "job_id", jobID, row); err != nil {
		return nil, err
	}
	return &JobRecord{ID: jobID, Row: row}, nil
}

// OutputFile loads a file by name together with its parameters
func (s *Store) OutputFile(ctx context.Context, name string) (*FileRecord, error) {
	id, err := s.ResolveFileID(ctx, name)
	if err != nil {
		return nil, err
	}
	row, err := s.selectRow(ctx, "files", "file_id", id, fileColumns)
	if err != nil {
		return nil, errors.Wrapf(err, "file %s", name)
	}
	if err := s.mergeParameters(ctx, "file_parameters", "file_id", id, row); err != nil {
		return nil, err
	}

	rec := &FileRecord{ID: id, Row: row}
	if v, ok := row[bookkeeping.ParamJobID]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.JobID = &n
		}
	}
	return rec, nil
}

// RunStatus lists run status rows of a run
func (s *Store) RunStatus(ctx context.Context, run int64) ([]RunStatusRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_number, job_id, finished FROM run_status WHERE run_number = ? ORDER BY job_id", run)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query run status of run %d", run)
	}
	defer rows.Close()

	var out []RunStatusRecord
	for rows.Next() {
		var r RunStatusRecord
		if err := rows.Scan(&r.Run, &r.JobID, &r.Finished); err != nil {
			return nil, errors.Wrap(err, "failed to scan run status")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "error iterating run status")
}

// InputFileLinks lists the input file ids linked to a job
func (s *Store) InputFileLinks(ctx context.Context, jobID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT file_id FROM input_files WHERE job_id = ? ORDER BY file_id", jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query input links of job %d", jobID)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan input link")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "error iterating input links")
}

// statsTables are the tables reported by Stats, in display order
var statsTables = []string{
	"jobs", "files", "input_files", "run_status", "replicas", "productions",
	"steps", "file_types", "event_types", "data_taking_conditions", "run_quality",
}

// TableCount is the row count of one table
type TableCount struct {
	Table string
	Rows  int64
}

// Stats returns row counts of the bookkeeping tables
func (s *Store) Stats(ctx context.Context) ([]TableCount, error) {
	counts := make([]TableCount, 0, len(statsTables))
	for _, table := range statsTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, errors.Wrapf(err, "failed to count %s", table)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}

// selectRow reads the mapped columns of one row back into attribute names
func (s *Store) selectRow(ctx context.Context, table, idColumn string, id int64, mapping map[string]column) (bookkeeping.Row, error) {
	attrs := make([]string, 0, len(mapping))
	cols := ""
	for attr, col := range mapping {
		if cols != "" {
			cols += ", "
		}
		cols += col.name
		attrs = append(attrs, attr)
	}

	values := make([]sql.NullString, len(attrs))
	targets := make([]interface{}, len(attrs))
	for i := range values {
		targets[i] = &values[i]
	}

	err := s.db.QueryRowContext(ctx, "SELECT "+cols+" FROM "+table+" WHERE "+idColumn+" = ?", id).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookkeeping.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", table)
	}

	row := make(bookkeeping.Row)
	for i, attr := range attrs {
		if values[i].Valid {
			row[attr] = values[i].String
		}
	}
	return row, nil
}

func (s *Store) mergeParameters(ctx context.Context, table, idColumn string, id int64, row bookkeeping.Row) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM "+table+" WHERE "+idColumn+" = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", table)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return errors.Wrapf(err, "failed to scan %s", table)
		}
		row[name] = value
	}
	return errors.Wrapf(rows.Err(), "error iterating %s", table)
}
