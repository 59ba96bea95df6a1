package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// ResolveProcessingPassID returns the processing pass a production belongs to
func (s *Store) ResolveProcessingPassID(ctx context.Context, production int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT processing_pass_id FROM productions WHERE production = ? AND processing_pass_id IS NOT NULL",
		production).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(bookkeeping.ErrNotFound, "processing pass of production %d", production)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to resolve processing pass of production %d", production)
	}
	return id, nil
}

// RunProcessingPassQuality returns the data quality recorded for a run in a processing pass
func (s *Store) RunProcessingPassQuality(ctx context.Context, run, processingPassID int64) (string, error) {
	var quality string
	err := s.db.QueryRowContext(ctx,
		"SELECT quality FROM run_quality WHERE run_number = ? AND processing_pass_id = ?",
		run, processingPassID).Scan(&quality)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(bookkeeping.ErrNotFound, "quality of run %d in pass %d", run, processingPassID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to get quality of run %d", run)
	}
	return quality, nil
}

// ResolveStep finds the step for an application and database tags, creating it on first use
func (s *Store) ResolveStep(ctx context.Context, q bookkeeping.StepQuery) (bookkeeping.Step, error) {
	if q.ProgramName == "" || q.ProgramVersion == "" {
		return bookkeeping.Step{}, errors.New("step lookup needs ProgramName and ProgramVersion")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (step_name, program_name, program_version, cond_db, dddb)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (program_name, program_version, cond_db, dddb) DO NOTHING`,
		"Real Data "+q.ProgramName+" "+q.ProgramVersion, q.ProgramName, q.ProgramVersion, q.CondDB, q.DDDB)
	if err != nil {
		return bookkeeping.Step{}, errors.Wrapf(err, "failed to create step %s/%s", q.ProgramName, q.ProgramVersion)
	}

	var step bookkeeping.Step
	err = s.db.QueryRowContext(ctx, `
		SELECT step_id, step_name FROM steps
		WHERE program_name = ? AND program_version = ? AND cond_db = ? AND dddb = ?`,
		q.ProgramName, q.ProgramVersion, q.CondDB, q.DDDB).Scan(&step.ID, &step.Name)
	if err != nil {
		return bookkeeping.Step{}, errors.Wrapf(err, "failed to resolve step %s/%s", q.ProgramName, q.ProgramVersion)
	}
	return step, nil
}

// RegisterProduction creates a production with its processing pass, steps and output file types.
// An existing production yields ErrAlreadyRegistered.
func (s *Store) RegisterProduction(ctx context.Context, reg bookkeeping.ProductionRegistration) error {
	if len(reg.Steps) == 0 {
		return errors.Newf("production %d has no steps", reg.Production)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM productions WHERE production = ?)", reg.Production).Scan(&exists); err != nil {
		return errors.Wrapf(err, "failed to check production %d", reg.Production)
	}
	if exists {
		return errors.Wrapf(bookkeeping.ErrAlreadyRegistered, "production %d", reg.Production)
	}

	names := make([]string, len(reg.Steps))
	for i, st := range reg.Steps {
		names[i] = st.StepName
	}
	res, err := tx.ExecContext(ctx, "INSERT INTO processing_passes (name) VALUES (?)", strings.Join(names, "/"))
	if err != nil {
		return errors.Wrap(err, "failed to create processing pass")
	}
	passID, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "processing pass id")
	}

	var daq sql.NullInt64
	if reg.DAQPeriod != "" {
		err := tx.QueryRowContext(ctx,
			"SELECT daq_period_id FROM data_taking_conditions WHERE description = ?", reg.DAQPeriod).Scan(&daq)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrap(err, "failed to resolve data taking period")
		}
	}

	eventTypes := make([]string, len(reg.EventTypes))
	for i, et := range reg.EventTypes {
		eventTypes[i] = itoa(et)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO productions (production, processing_pass_id, config_name, config_version,
		                         sim_cond, daq_period_id, input_production, event_types)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reg.Production, passID, reg.ConfigName, reg.ConfigVersion,
		sql.NullString{String: reg.SimCondition, Valid: reg.SimCondition != ""},
		daq,
		sql.NullInt64{Int64: reg.InputProduction, Valid: reg.InputProduction != 0},
		strings.Join(eventTypes, ","))
	if err != nil {
		return errors.Wrapf(err, "failed to insert production %d", reg.Production)
	}

	for i, st := range reg.Steps {
		visible := st.Visible
		if visible == "" {
			visible = "Y"
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO production_steps (production, step_id, step_order, visible) VALUES (?, ?, ?, ?)",
			reg.Production, st.StepID, i+1, visible); err != nil {
			return errors.Wrapf(err, "failed to add step %d to production %d", st.StepID, reg.Production)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO production_output_types (production, step_id, file_type, visible)
			SELECT ?, step_id, file_type, visible FROM step_output_types WHERE step_id = ?`,
			reg.Production, st.StepID); err != nil {
			return errors.Wrapf(err, "failed to copy output types of step %d", st.StepID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit production")
	}

	s.logger.Debugw("Registered production",
		"production", reg.Production,
		"processing_pass_id", passID,
		"steps", len(reg.Steps))
	return nil
}

// DeleteStepContainer removes the steps and output types attached to a production
func (s *Store) DeleteStepContainer(ctx context.Context, production int64) error {
	for _, table := range []string{"production_output_types", "production_steps"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE production = ?", production); err != nil {
			return errors.Wrapf(err, "failed to delete %s of production %d", table, production)
		}
	}
	return nil
}

// DeleteProductionContainer removes the production row
func (s *Store) DeleteProductionContainer(ctx context.Context, production int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM productions WHERE production = ?", production); err != nil {
		return errors.Wrapf(err, "failed to delete production %d", production)
	}
	return nil
}

// ProductionOutputFileTypes returns file type -> visibility flag declared for a production step
func (s *Store) ProductionOutputFileTypes(ctx context.Context, production, stepID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT file_type, visible FROM production_output_types WHERE production = ? AND step_id = ?",
		production, stepID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query output types of production %d", production)
	}
	defer rows.Close()

	types := make(map[string]string)
	for rows.Next() {
		var fileType, visible string
		if err := rows.Scan(&fileType, &visible); err != nil {
			return nil, errors.Wrap(err, "failed to scan output type")
		}
		types[fileType] = visible
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating output types")
	}
	return types, nil
}
