package sqlstore

import (
	"context"
	"strconv"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

var jobColumns = map[string]column{
	bookkeeping.ParamConfigName:     {"config_name", colText},
	bookkeeping.ParamConfigVersion:  {"config_version", colText},
	bookkeeping.ParamJobStart:       {"job_start", colText},
	"JobEnd":                        {"job_end", colText},
	bookkeeping.ParamProduction:     {"production", colInt},
	bookkeeping.ParamStepID:         {"step_id", colInt},
	bookkeeping.ParamRunNumber:      {"run_number", colInt},
	bookkeeping.ParamTCK:            {"tck", colText},
	bookkeeping.ParamDAQPeriodID:    {"daq_period_id", colInt},
	bookkeeping.ParamEventInputStat: {"event_input_stat", colInt},
	"NumberOfEvents":                {"number_of_events", colInt},
	bookkeeping.ParamProgramName:    {"program_name", colText},
	bookkeeping.ParamProgramVersion: {"program_version", colText},
	"Location":                      {"location", colText},
	"Name":                          {"name", colText},
	"WorkerNode":                    {"worker_node", colText},
	"CPUTime":                       {"cpu_time", colReal},
	"ExecTime":                      {"exec_time", colReal},
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// InsertJob inserts a job row; attributes without a column are kept as job parameters
func (s *Store) InsertJob(ctx context.Context, row bookkeeping.Row) (int64, error) {
	if row[bookkeeping.ParamConfigName] == "" || row[bookkeeping.ParamConfigVersion] == "" {
		return 0, errors.New("job row needs ConfigName and ConfigVersion")
	}
	id, err := s.insertRow(ctx, "jobs", "job_parameters", "job_id", jobColumns, row)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert job")
	}
	return id, nil
}

// DeleteJob removes a job together with its parameters, input links and run status
func (s *Store) DeleteJob(ctx context.Context, jobID int64) error {
	return execAffecting(ctx, s.db, "delete job "+itoa(jobID), "DELETE FROM jobs WHERE job_id = ?", jobID)
}

// InsertRunStatus records a run status row for a job
func (s *Store) InsertRunStatus(ctx context.Context, run, jobID int64, finished string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO run_status (run_number, job_id, finished) VALUES (?, ?, ?)", run, jobID, finished)
	if err != nil {
		return errors.Wrapf(err, "failed to insert run status for run %d job %d", run, jobID)
	}
	return nil
}

// InsertInputFileLink associates an input file with a job
func (s *Store) InsertInputFileLink(ctx context.Context, jobID, fileID int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO input_files (job_id, file_id) VALUES (?, ?)", jobID, fileID)
	if err != nil {
		return errors.Wrapf(err, "failed to link input file %d to job %d", fileID, jobID)
	}
	return nil
}

// DeleteInputFileLinks removes all input associations of a job
func (s *Store) DeleteInputFileLinks(ctx context.Context, jobID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM input_files WHERE job_id = ?", jobID); err != nil {
		return errors.Wrapf(err, "failed to delete input links of job %d", jobID)
	}
	return nil
}
