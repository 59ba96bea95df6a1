package bookkeeping

import (
	"context"

	"github.com/teranos/bkingest/errors"
)

var (
	// ErrNotFound is wrapped by Store lookups that find nothing
	ErrNotFound = errors.ErrNotFound

	// ErrAlreadyRegistered is returned by RegisterProduction for an existing production
	ErrAlreadyRegistered = errors.Wrap(errors.ErrConflict, "already registered")
)

// Row is a flattened attribute row keyed by bookkeeping attribute name
type Row map[string]string

// FileIDResolution is the result of a bulk file name lookup
type FileIDResolution struct {
	Resolved map[string]int64
	Failed   []string
}

// FileMetadata is the per-file metadata consulted during enrichment. Absent values are nil or empty.
type FileMetadata struct {
	EventTypeID     *int64
	EventStat       *int64
	Luminosity      *float64
	DataqualityFlag string
	DQFlag          string
}

// RunTCK is one (run, trigger configuration) pair from a file's history
type RunTCK struct {
	Run int64
	TCK string
}

// JobInfo summarises the job that produced a file
type JobInfo struct {
	EventStat  int64
	Production int64
}

// StepQuery identifies a processing step by its application and databases
type StepQuery struct {
	ProgramName    string
	ProgramVersion string
	CondDB         string
	DDDB           string
}

// Step is a resolved processing step
type Step struct {
	ID   int64
	Name string
}

// ProductionStep is a step entry of a production registration
type ProductionStep struct {
	StepID   int64
	StepName string
	Visible  string
}

// ProductionRegistration describes a production/processing-pass container
type ProductionRegistration struct {
	Production      int64
	SimCondition    string
	DAQPeriod       string
	Steps           []ProductionStep
	InputProduction int64
	ConfigName      string
	ConfigVersion   string
	EventTypes      []int64
}

// DataTakingCondition is a condition record keyed by its canonical description
type DataTakingCondition struct {
	Description string
	Parameters  map[string]string
}

// Store is the bookkeeping registry jobs and replicas are registered with.
// Each call is atomic on its own; nothing spans calls.
type Store interface {
	BulkResolveFileIDs(ctx context.Context, names []string) (FileIDResolution, error)
	ResolveFileTypeID(ctx context.Context, typeName, typeVersion string) (int64, error)
	EventTypeExists(ctx context.Context, eventTypeID int64) (bool, error)
	FileMetadata(ctx context.Context, names []string) (map[string]FileMetadata, error)
	RunAndTCKHistory(ctx context.Context, fileName string) ([]RunTCK, error)
	JobInfo(ctx context.Context, fileName string) (*JobInfo, error)

	ResolveProcessingPassID(ctx context.Context, production int64) (int64, error)
	RunProcessingPassQuality(ctx context.Context, run, processingPassID int64) (string, error)

	DataTakingConditionID(ctx context.Context, description string) (int64, error)
	InsertDataTakingCondition(ctx context.Context, cond DataTakingCondition) (int64, error)

	ResolveStep(ctx context.Context, q StepQuery) (Step, error)
	RegisterProduction(ctx context.Context, reg ProductionRegistration) error
	DeleteStepContainer(ctx context.Context, production int64) error
	DeleteProductionContainer(ctx context.Context, production int64) error

	InsertJob(ctx context.Context, row Row) (int64, error)
	InsertRunStatus(ctx context.Context, run, jobID int64, finished string) error
	DeleteJob(ctx context.Context, jobID int64) error

	InsertInputFileLink(ctx context.Context, jobID, fileID int64) error
	DeleteInputFileLinks(ctx context.Context, jobID int64) error

	ProductionOutputFileTypes(ctx context.Context, production, stepID int64) (map[string]string, error)
	InsertOutputFile(ctx context.Context, row Row) (int64, error)
	UpdateReplicaFlag(ctx context.Context, fileID int64, flag string) error
	ResolveFileID(ctx context.Context, name string) (int64, error)
}

// ReplicaInfo describes one current replica of a file
type ReplicaInfo struct {
	PFN string `json:"pfn"`
	SE  string `json:"se"`
}

// ReplicaCatalog answers where the current replicas of a file are
type ReplicaCatalog interface {
	CurrentReplicas(ctx context.Context, fileName string) (map[string]ReplicaInfo, error)
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
