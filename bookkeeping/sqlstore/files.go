package sqlstore

import (
	"context"
	"database/sql"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

var fileColumns = map[string]column{
	bookkeeping.ParamFileName:       {"file_name", colText},
	bookkeeping.ParamJobID:          {"job_id", colInt},
	bookkeeping.ParamFileTypeID:     {"file_type_id", colInt},
	bookkeeping.ParamEventTypeID:    {"event_type_id", colInt},
	bookkeeping.ParamEventStat:      {"event_stat", colInt},
	"FileSize":                      {"file_size", colInt},
	"CreationDate":                  {"creation_date", colText},
	"MD5Sum":                        {"md5sum", colText},
	"Guid":                          {"guid", colText},
	bookkeeping.ParamLuminosity:     {"luminosity", colReal},
	"InstLuminosity":                {"inst_luminosity", colReal},
	bookkeeping.ParamQualityID:      {"quality_id", colText},
	bookkeeping.ParamVisibilityFlag: {"visibility_flag", colText},
	"GotReplica":                    {"got_replica", colText},
}

// BulkResolveFileIDs resolves file names to ids; unknown names are reported in declaration order
func (s *Store) BulkResolveFileIDs(ctx context.Context, names []string) (bookkeeping.FileIDResolution, error) {
	res := bookkeeping.FileIDResolution{Resolved: make(map[string]int64)}
	if len(names) == 0 {
		return res, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT file_name, file_id FROM files WHERE file_name IN "+inClause(len(names)),
		stringArgs(names)...)
	if err != nil {
		return res, errors.Wrap(err, "failed to resolve file ids")
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return res, errors.Wrap(err, "failed to scan file id")
		}
		res.Resolved[name] = id
	}
	if err := rows.Err(); err != nil {
		return res, errors.Wrap(err, "error iterating file ids")
	}

	for _, name := range names {
		if _, ok := res.Resolved[name]; !ok {
			res.Failed = append(res.Failed, name)
		}
	}
	return res, nil
}

// ResolveFileID returns the id of a registered file
func (s *Store) ResolveFileID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT file_id FROM files WHERE file_name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(bookkeeping.ErrNotFound, "file %s", name)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to resolve file %s", name)
	}
	return id, nil
}

// ResolveFileTypeID returns the id of a file type
func (s *Store) ResolveFileTypeID(ctx context.Context, typeName, typeVersion string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT file_type_id FROM file_types WHERE name = ? AND version = ?",
		typeName, typeVersion).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(bookkeeping.ErrNotFound, "file type %s version %s", typeName, typeVersion)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to resolve file type %s/%s", typeName, typeVersion)
	}
	return id, nil
}

// EventTypeExists reports whether an event type is registered
func (s *Store) EventTypeExists(ctx context.Context, eventTypeID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM event_types WHERE event_type_id = ?)", eventTypeID).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check event type %d", eventTypeID)
	}
	return exists, nil
}

// FileMetadata returns metadata for the registered files among names
func (s *Store) FileMetadata(ctx context.Context, names []string) (map[string]bookkeeping.FileMetadata, error) {
	out := make(map[string]bookkeeping.FileMetadata)
	if len(names) == 0 {
		return out, nil
	}

	query := `
		SELECT f.file_name, f.event_type_id, f.event_stat, f.luminosity, COALESCE(f.quality_id, ''),
		       COALESCE((SELECT value FROM file_parameters p WHERE p.file_id = f.file_id AND p.name = 'DQFlag'), '')
		FROM files f
		WHERE f.file_name IN ` + inClause(len(names))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(names)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query file metadata")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name      string
			eventType sql.NullInt64
			eventStat sql.NullInt64
			lumi      sql.NullFloat64
			md        bookkeeping.FileMetadata
		)
		if err := rows.Scan(&name, &eventType, &eventStat, &lumi, &md.DataqualityFlag, &md.DQFlag); err != nil {
			return nil, errors.Wrap(err, "failed to scan file metadata")
		}
		md.EventTypeID = nullInt64(eventType)
		md.EventStat = nullInt64(eventStat)
		md.Luminosity = nullFloat64(lumi)
		out[name] = md
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating file metadata")
	}
	return out, nil
}

// maxAncestorDepth bounds the walk through producing jobs without a run
const maxAncestorDepth = 10

// RunAndTCKHistory returns the distinct runs and TCKs of the jobs a file descends from.
// Jobs without a run number are looked through to their own inputs.
func (s *Store) RunAndTCKHistory(ctx context.Context, fileName string) ([]bookkeeping.RunTCK, error) {
	query := `
		WITH RECURSIVE ancestry(job_id, depth) AS (
			SELECT job_id, 0 FROM files WHERE file_name = ? AND job_id IS NOT NULL
			UNION
			SELECT f.job_id, a.depth + 1
			FROM ancestry a
			JOIN jobs j ON j.job_id = a.job_id
			JOIN input_files i ON i.job_id = a.job_id
			JOIN files f ON f.file_id = i.file_id
			WHERE j.run_number IS NULL AND f.job_id IS NOT NULL AND a.depth < ?
		)
		SELECT DISTINCT j.run_number, COALESCE(j.tck, '')
		FROM ancestry a
		JOIN jobs j ON j.job_id = a.job_id
		WHERE j.run_number IS NOT NULL
		ORDER BY j.run_number`

	rows, err := s.db.QueryContext(ctx, query, fileName, maxAncestorDepth)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query run history of %s", fileName)
	}
	defer rows.Close()

	var history []bookkeeping.RunTCK
	for rows.Next() {
		var rt bookkeeping.RunTCK
		if err := rows.Scan(&rt.Run, &rt.TCK); err != nil {
			return nil, errors.Wrap(err, "failed to scan run history")
		}
		history = append(history, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating run history")
	}
	return history, nil
}

// JobInfo summarises the job that produced fileName
func (s *Store) JobInfo(ctx context.Context, fileName string) (*bookkeeping.JobInfo, error) {
	var info bookkeeping.JobInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(j.event_input_stat, 0), COALESCE(j.production, 0)
		FROM files f JOIN jobs j ON j.job_id = f.job_id
		WHERE f.file_name = ?`, fileName).Scan(&info.EventStat, &info.Production)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(bookkeeping.ErrNotFound, "producing job of %s", fileName)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job info of %s", fileName)
	}
	return &info, nil
}

// InsertOutputFile inserts a file row; attributes without a column are kept as file parameters
func (s *Store) InsertOutputFile(ctx context.Context, row bookkeeping.Row) (int64, error) {
	if row[bookkeeping.ParamFileName] == "" {
		return 0, errors.New("output file row has no FileName")
	}
	id, err := s.insertRow(ctx, "files", "file_parameters", "file_id", fileColumns, row)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert file %s", row[bookkeeping.ParamFileName])
	}
	return id, nil
}

// UpdateReplicaFlag sets the Got-Replica flag of a file
func (s *Store) UpdateReplicaFlag(ctx context.Context, fileID int64, flag string) error {
	if flag != bookkeeping.ReplicaYes && flag != bookkeeping.ReplicaNo {
		return errors.Newf("invalid replica flag %q", flag)
	}
	return execAffecting(ctx, s.db, "update replica flag of file "+itoa(fileID),
		"UPDATE files SET got_replica = ? WHERE file_id = ?", flag, fileID)
}
