package bookkeeping

import "strconv"

// Well-known job and file parameter names
const (
	ParamRunNumber      = "RunNumber"
	ParamTCK            = "Tck"
	ParamProduction     = "Production"
	ParamJobType        = "JobType"
	ParamStepID         = "StepID"
	ParamEventInputStat = "EventInputStat"
	ParamJobStart       = "JobStart"
	ParamConfigName     = "ConfigName"
	ParamConfigVersion  = "ConfigVersion"
	ParamDAQPeriodID    = "DAQPeriodId"
	ParamProgramName    = "ProgramName"
	ParamProgramVersion = "ProgramVersion"
	ParamCondDB         = "CondDB"
	ParamDDDB           = "DDDB"

	ParamEventType      = "EventType"
	ParamEventTypeID    = "EventTypeId"
	ParamEventStat      = "EventStat"
	ParamLuminosity     = "Luminosity"
	ParamQualityID      = "QualityId"
	ParamVisibilityFlag = "VisibilityFlag"
	ParamFileName       = "FileName"
	ParamFileTypeID     = "FileTypeId"
	ParamJobID          = "JobId"
)

// FileTypeLog is exempt from event type requirements
const FileTypeLog = "LOG"

// JobTypeHistogramMerge marks data-quality histogram merging jobs
const JobTypeHistogramMerge = "DQHISTOMERGING"

// Got-Replica flag values
const (
	ReplicaYes = "Yes"
	ReplicaNo  = "No"
)

// QualityOK is the quality assigned to outputs of jobs without a run (simulation)
const QualityOK = "OK"

// Configuration identifies the processing configuration a job ran under
type Configuration struct {
	ConfigName    string
	ConfigVersion string
	Date          string
	Time          string
}

// InputFile references a file consumed by a job. FileID is set once resolved.
type InputFile struct {
	Name   string
	FileID int64
}

// ReplicaLocation is a replica declared alongside an output file
type ReplicaLocation struct {
	Name     string
	Location string
}

// OutputFile is a file produced by a job
type OutputFile struct {
	Name        string
	TypeName    string
	TypeVersion string
	TypeID      int64
	Parameters  map[string]string
	Replicas    []ReplicaLocation
	FileID      int64
}

// IsLog reports whether the output is a job log, which carries no event type
func (o *OutputFile) IsLog() bool {
	return o.TypeName == FileTypeLog
}

// Param returns a parameter and whether it is present
func (o *OutputFile) Param(name string) (string, bool) {
	v, ok := o.Parameters[name]
	return v, ok
}

// SetParam sets a parameter, replacing any previous value
func (o *OutputFile) SetParam(name, value string) {
	if o.Parameters == nil {
		o.Parameters = make(map[string]string)
	}
	o.Parameters[name] = value
}

// Job is a parsed job description, enriched in place during registration
type Job struct {
	Configuration Configuration
	Parameters    map[string]string
	InputFiles    []InputFile
	OutputFiles   []*OutputFile

	// OutputFileParameters are job-level fallbacks for output file attributes (EventTypeId)
	OutputFileParameters map[string]string

	// DataTakingCondition is present only for jobs with real detector conditions
	DataTakingCondition map[string]string

	JobID *int64
}

// Param returns a job parameter and whether it is present
func (j *Job) Param(name string) (string, bool) {
	v, ok := j.Parameters[name]
	return v, ok
}

// SetParam sets a job parameter, replacing any previous value
func (j *Job) SetParam(name, value string) {
	if j.Parameters == nil {
		j.Parameters = make(map[string]string)
	}
	j.Parameters[name] = value
}

// DeleteParam removes a job parameter
func (j *Job) DeleteParam(name string) {
	delete(j.Parameters, name)
}

// IntParam parses an integer job parameter
func (j *Job) IntParam(name string) (int64, bool) {
	v, ok := j.Parameters[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasCondition reports whether the job carries data-taking conditions
func (j *Job) HasCondition() bool {
	return len(j.DataTakingCondition) > 0
}

// InputNames returns the input file names in declaration order
func (j *Job) InputNames() []string {
	names := make([]string, len(j.InputFiles))
	for i, f := range j.InputFiles {
		names[i] = f.Name
	}
	return names
}

// ReplicaAction is one add or delete request in a replica document
type ReplicaAction struct {
	FileName string
	Location string
	SE       string
	Delete   bool
}

// ReplicaDocument is a parsed replica description
type ReplicaDocument struct {
	Actions []ReplicaAction
}

// DocumentKind is the declared type of a parsed document
type DocumentKind int

const (
	KindUnknown DocumentKind = iota
	KindJob
	KindReplica
)

func (k DocumentKind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// Document is a parsed bookkeeping document of either kind
type Document struct {
	Kind    DocumentKind
	Root    string // root element name, kept for diagnostics of unknown kinds
	Job     *Job
	Replica *ReplicaDocument
}
