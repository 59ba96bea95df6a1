package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// DataTakingConditionID returns the id of the condition with the given description
func (s *Store) DataTakingConditionID(ctx context.Context, description string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT daq_period_id FROM data_taking_conditions WHERE description = ?", description).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(bookkeeping.ErrNotFound, "data taking condition %q", description)
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to look up data taking condition")
	}
	return id, nil
}

// InsertDataTakingCondition stores a condition and returns its id.
// A condition with the same description is reused.
func (s *Store) InsertDataTakingCondition(ctx context.Context, cond bookkeeping.DataTakingCondition) (int64, error) {
	if cond.Description == "" {
		return 0, errors.New("data taking condition has no description")
	}

	params, err := json.Marshal(cond.Parameters)
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode condition parameters")
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO data_taking_conditions (description, parameters) VALUES (?, ?)
		ON CONFLICT (description) DO NOTHING`, cond.Description, string(params)); err != nil {
		return 0, errors.Wrap(err, "failed to insert data taking condition")
	}

	return s.DataTakingConditionID(ctx, cond.Description)
}
