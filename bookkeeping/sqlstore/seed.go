package sqlstore

import (
	"context"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// Seed is reference data loaded before ingestion: file and event types, steps,
// productions, run quality, pre-existing files and their replicas.
type Seed struct {
	FileTypes   []SeedFileType   `toml:"file_type" yaml:"file_type"`
	EventTypes  []SeedEventType  `toml:"event_type" yaml:"event_type"`
	Steps       []SeedStep       `toml:"step" yaml:"step"`
	Productions []SeedProduction `toml:"production" yaml:"production"`
	RunQuality  []SeedRunQuality `toml:"run_quality" yaml:"run_quality"`
	Files       []SeedFile       `toml:"file" yaml:"file"`
}

type SeedFileType struct {
	Name        string `toml:"name" yaml:"name"`
	Version     string `toml:"version" yaml:"version"`
	Description string `toml:"description" yaml:"description"`
}

type SeedEventType struct {
	ID          int64  `toml:"id" yaml:"id"`
	Description string `toml:"description" yaml:"description"`
}

type SeedStep struct {
	Name           string            `toml:"name" yaml:"name"`
	ProgramName    string            `toml:"program_name" yaml:"program_name"`
	ProgramVersion string            `toml:"program_version" yaml:"program_version"`
	CondDB         string            `toml:"cond_db" yaml:"cond_db"`
	DDDB           string            `toml:"dddb" yaml:"dddb"`
	OutputTypes    map[string]string `toml:"output_types" yaml:"output_types"` // file type -> visible
}

type SeedProduction struct {
	Production    int64    `toml:"production" yaml:"production"`
	ConfigName    string   `toml:"config_name" yaml:"config_name"`
	ConfigVersion string   `toml:"config_version" yaml:"config_version"`
	Steps         []string `toml:"steps" yaml:"steps"` // step names, in order
	SimCondition  string   `toml:"sim_condition" yaml:"sim_condition"`
	EventTypes    []int64  `toml:"event_types" yaml:"event_types"`
}

type SeedRunQuality struct {
	Run        int64  `toml:"run" yaml:"run"`
	Production int64  `toml:"production" yaml:"production"`
	Quality    string `toml:"quality" yaml:"quality"`
}

type SeedFile struct {
	Name       string            `toml:"name" yaml:"name"`
	Attributes map[string]string `toml:"attributes" yaml:"attributes"`
	Replicas   []string          `toml:"replicas" yaml:"replicas"` // locations
}

// SeedCounts reports how many records of each kind were applied
type SeedCounts struct {
	FileTypes, EventTypes, Steps, Productions, RunQuality, Files int
}

// ApplySeed loads reference data. Existing file types, event types and steps are kept.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) (SeedCounts, error) {
	var counts SeedCounts

	for _, ft := range seed.FileTypes {
		if _, err := s.RegisterFileType(ctx, ft.Name, ft.Version, ft.Description); err != nil {
			return counts, err
		}
		counts.FileTypes++
	}

	for _, et := range seed.EventTypes {
		if err := s.RegisterEventType(ctx, et.ID, et.Description); err != nil {
			return counts, err
		}
		counts.EventTypes++
	}

	stepIDs := make(map[string]int64)
	for _, st := range seed.Steps {
		id, err := s.RegisterStep(ctx, st)
		if err != nil {
			return counts, err
		}
		stepIDs[st.Name] = id
		counts.Steps++
	}

	for _, p := range seed.Productions {
		reg := bookkeeping.ProductionRegistration{
			Production:    p.Production,
			SimCondition:  p.SimCondition,
			ConfigName:    p.ConfigName,
			ConfigVersion: p.ConfigVersion,
			EventTypes:    p.EventTypes,
		}
		for _, name := range p.Steps {
			id, ok := stepIDs[name]
			if !ok {
				return counts, errors.Newf("production %d references unknown step %q", p.Production, name)
			}
			reg.Steps = append(reg.Steps, bookkeeping.ProductionStep{StepID: id, StepName: name, Visible: "Y"})
		}
		if err := s.RegisterProduction(ctx, reg); err != nil && !errors.Is(err, bookkeeping.ErrAlreadyRegistered) {
			return counts, err
		}
		counts.Productions++
	}

	for _, rq := range seed.RunQuality {
		if err := s.SetRunQuality(ctx, rq.Run, rq.Production, rq.Quality); err != nil {
			return counts, err
		}
		counts.RunQuality++
	}

	for _, f := range seed.Files {
		row := bookkeeping.Row{bookkeeping.ParamFileName: f.Name}
		for k, v := range f.Attributes {
			row[k] = v
		}
		if _, err := s.InsertOutputFile(ctx, row); err != nil {
			return counts, err
		}
		for _, loc := range f.Replicas {
			if err := s.AddReplica(ctx, f.Name, loc, bookkeeping.ReplicaInfo{}); err != nil {
				return counts, err
			}
		}
		counts.Files++
	}

	return counts, nil
}

// RegisterFileType creates a file type, returning the existing id when already present
func (s *Store) RegisterFileType(ctx context.Context, name, version, description string) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO file_types (name, version, description) VALUES (?, ?, ?)
		ON CONFLICT (name, version) DO NOTHING`, name, version, description); err != nil {
		return 0, errors.Wrapf(err, "failed to register file type %s/%s", name, version)
	}
	return s.ResolveFileTypeID(ctx, name, version)
}

// RegisterEventType creates an event type if missing
func (s *Store) RegisterEventType(ctx context.Context, id int64, description string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO event_types (event_type_id, description) VALUES (?, ?)
		ON CONFLICT (event_type_id) DO NOTHING`, id, description); err != nil {
		return errors.Wrapf(err, "failed to register event type %d", id)
	}
	return nil
}

// RegisterStep creates a step and its declared output types, returning its id
func (s *Store) RegisterStep(ctx context.Context, st SeedStep) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (step_name, program_name, program_version, cond_db, dddb)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (program_name, program_version, cond_db, dddb) DO NOTHING`,
		st.Name, st.ProgramName, st.ProgramVersion, st.CondDB, st.DDDB); err != nil {
		return 0, errors.Wrapf(err, "failed to register step %s", st.Name)
	}

	step, err := s.ResolveStep(ctx, bookkeeping.StepQuery{
		ProgramName: st.ProgramName, ProgramVersion: st.ProgramVersion, CondDB: st.CondDB, DDDB: st.DDDB,
	})
	if err != nil {
		return 0, err
	}

	for fileType, visible := range st.OutputTypes {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO step_output_types (step_id, file_type, visible) VALUES (?, ?, ?)
			ON CONFLICT (step_id, file_type) DO UPDATE SET visible = excluded.visible`,
			step.ID, fileType, visible); err != nil {
			return 0, errors.Wrapf(err, "failed to add output type %s to step %s", fileType, st.Name)
		}
	}
	return step.ID, nil
}

// SetRunQuality records the quality of a run within a production's processing pass
func (s *Store) SetRunQuality(ctx context.Context, run, production int64, quality string) error {
	passID, err := s.ResolveProcessingPassID(ctx, production)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO run_quality (run_number, processing_pass_id, quality) VALUES (?, ?, ?)
		ON CONFLICT (run_number, processing_pass_id) DO UPDATE SET quality = excluded.quality`,
		run, passID, quality); err != nil {
		return errors.Wrapf(err, "failed to set quality of run %d", run)
	}
	return nil
}
