package ingest

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest/conditions"
	"github.com/teranos/bkingest/logger"
)

// Stage names a step of job registration
type Stage string

const (
	StageInputResolution        Stage = "InputResolution"
	StageOutputTypeResolution   Stage = "OutputTypeResolution"
	StageEventTypeBackfill      Stage = "EventTypeBackfill"
	StageRunAndQualityInference Stage = "RunAndQualityInference"
	StageAggregateComputation   Stage = "AggregateComputation"
	StageValidationGate         Stage = "ValidationGate"
	StageJobInsertion           Stage = "JobInsertion"
	StageRunStatusRegistration  Stage = "RunStatusRegistration"
	StageInputFileLinking       Stage = "InputFileLinking"
	StageOutputFileInsertion    Stage = "OutputFileInsertion"
	StageReplica                Stage = "Replica"
	StageDispatch               Stage = "Dispatch"
)

// Sentinel values written by run/TCK inference when inputs disagree
const (
	AmbiguousRunNumber = "-1"
	AmbiguousTCK       = "-2"
)

// RunStatusNotFlagged is the initial run status of a registered job
const RunStatusNotFlagged = "N"

// DescribeFunc turns raw data-taking condition parameters into the canonical description
type DescribeFunc func(params map[string]string) string

// JobRegistrarOptions configures optional collaborators of a JobRegistrar
type JobRegistrarOptions struct {
	Describe           DescribeFunc       // Default: conditions.Describe
	UpperConfigVersion bool               // Upper-case ConfigVersion of condition-bearing jobs
	Logger             *zap.SugaredLogger // Default: component logger "ingest.job"
}

// JobRegistrar enriches a parsed job and registers it with the store.
// One job is processed at a time per registrar.
type JobRegistrar struct {
	store    bookkeeping.Store
	cache    *TypeCache
	describe DescribeFunc
	upperCfg bool
	log      *zap.SugaredLogger
	stages   []jobStage
}

type jobStage struct {
	name Stage
	run  func(ctx context.Context, jr *jobRun) error
}

// jobRun is the state of one job moving through the stages
type jobRun struct {
	job   *bookkeeping.Job
	class JobClassification
	log   *zap.SugaredLogger
	saga  *saga

	meta       map[string]bookkeeping.FileMetadata
	metaLoaded bool

	quality       string
	jobID         int64
	configVersion string
}

// NewJobRegistrar creates a registrar with the default condition resolver.
// A nil cache gets a fresh one.
func NewJobRegistrar(store bookkeeping.Store, cache *TypeCache) *JobRegistrar {
	return NewJobRegistrarWithOptions(store, cache, JobRegistrarOptions{UpperConfigVersion: true})
}

// NewJobRegistrarWithOptions creates a registrar with custom options
func NewJobRegistrarWithOptions(store bookkeeping.Store, cache *TypeCache, opts JobRegistrarOptions) *JobRegistrar {
	if cache == nil {
		cache = NewTypeCache()
	}
	describe := opts.Describe
	if describe == nil {
		describe = conditions.Describe
	}

	r := &JobRegistrar{
		store:    store,
		cache:    cache,
		describe: describe,
		upperCfg: opts.UpperConfigVersion,
		log:      logger.OrComponent(opts.Logger, "ingest.job"),
	}
	r.stages = []jobStage{
		{StageInputResolution, r.resolveInputs},
		{StageOutputTypeResolution, r.resolveOutputTypes},
		{StageEventTypeBackfill, r.backfillEventTypes},
		{StageRunAndQualityInference, r.inferRunAndQuality},
		{StageAggregateComputation, r.computeAggregates},
		{StageValidationGate, r.checkRunNumber},
		{StageJobInsertion, r.insertJob},
		{StageRunStatusRegistration, r.registerRunStatus},
		{StageInputFileLinking, r.linkInputs},
		{StageOutputFileInsertion, r.insertOutputs},
	}
	return r
}

// Cache returns the registrar's type cache
func (r *JobRegistrar) Cache() *TypeCache {
	return r.cache
}

// Process runs every stage in order. The first failure unwinds the writes made so far
// and is returned as an *Error.
func (r *JobRegistrar) Process(ctx context.Context, job *bookkeeping.Job) error {
	log := logger.FromContext(ctx, r.log)
	jr := &jobRun{
		job:           job,
		class:         Classify(job),
		log:           log,
		saga:          newSaga(log),
		configVersion: job.Configuration.ConfigVersion,
	}

	for _, st := range r.stages {
		jr.log.Debugw("Entering stage", logger.FieldStage, string(st.name))
		if err := st.run(ctx, jr); err != nil {
			ierr := stageError(err, st.name)
			if undone := jr.saga.len(); undone > 0 {
				failed := jr.saga.compensate(ctx)
				jr.log.Warnw("Rolled back partial job registration",
					logger.FieldJobID, jr.jobID,
					logger.FieldCount, undone,
					"failed_compensations", failed)
			}
			jr.log.Errorw("Job registration failed", ierr.logFields()...)
			return ierr
		}
	}

	logger.IxInfow(jr.log, "Job registered",
		logger.FieldJobID, jr.jobID,
		"inputs", len(job.InputFiles),
		"outputs", len(job.OutputFiles),
		"class", jr.class.String())
	return nil
}

func stageError(err error, stage Stage) *Error {
	var ierr *Error
	if !errors.As(err, &ierr) {
		ierr = &Error{Kind: StoreUnavailable, Cause: err}
	}
	if ierr.Stage == "" {
		ierr.Stage = stage
	}
	return ierr
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// inputMetadata fetches metadata for all inputs once per job
func (r *JobRegistrar) inputMetadata(ctx context.Context, jr *jobRun) (map[string]bookkeeping.FileMetadata, error) {
	if jr.metaLoaded {
		return jr.meta, nil
	}
	if len(jr.job.InputFiles) == 0 {
		jr.metaLoaded = true
		return nil, nil
	}
	meta, err := r.store.FileMetadata(ctx, jr.job.InputNames())
	if err != nil {
		return nil, &Error{Kind: StoreUnavailable, Cause: errors.Wrap(err, "file metadata")}
	}
	jr.meta = meta
	jr.metaLoaded = true
	return meta, nil
}

func (r *JobRegistrar) resolveInputs(ctx context.Context, jr *jobRun) error {
	if len(jr.job.InputFiles) == 0 {
		return nil
	}
	res, err := r.store.BulkResolveFileIDs(ctx, jr.job.InputNames())
	if err != nil {
		return &Error{Kind: StoreUnavailable, Cause: errors.Wrap(err, "resolve input files")}
	}

	missing := append([]string(nil), res.Failed...)
	for i := range jr.job.InputFiles {
		in := &jr.job.InputFiles[i]
		id, ok := res.Resolved[in.Name]
		if !ok {
			if !slices.Contains(missing, in.Name) {
				missing = append(missing, in.Name)
			}
			continue
		}
		in.FileID = id
	}
	if len(missing) > 0 {
		return &Error{Kind: FilesNotRegistered, Files: missing}
	}
	return nil
}

func (r *JobRegistrar) resolveOutputTypes(ctx context.Context, jr *jobRun) error {
	for _, out := range jr.job.OutputFiles {
		id, err := r.cache.Resolve(ctx, r.store, out.TypeName, out.TypeVersion)
		if err != nil {
			return &Error{
				Kind:        UnknownFileType,
				FileName:    out.Name,
				TypeName:    out.TypeName,
				TypeVersion: out.TypeVersion,
				Cause:       err,
			}
		}
		out.TypeID = id

		// Merged histograms are always visible
		if jr.class == HistogramMerge {
			out.SetParam(bookkeeping.ParamVisibilityFlag, "Y")
		}
	}
	return nil
}

func (r *JobRegistrar) backfillEventTypes(ctx context.Context, jr *jobRun) error {
	for _, out := range jr.job.OutputFiles {
		for _, name := range []string{bookkeeping.ParamEventType, bookkeeping.ParamEventTypeID} {
			v, ok := out.Param(name)
			if !ok {
				continue
			}
			if err := r.checkEventType(ctx, out.Name, v); err != nil {
				return err
			}
		}

		// EventType is the legacy spelling of EventTypeId
		if v, ok := out.Param(bookkeeping.ParamEventType); ok {
			if _, has := out.Param(bookkeeping.ParamEventTypeID); !has {
				out.SetParam(bookkeeping.ParamEventTypeID, v)
			}
			delete(out.Parameters, bookkeeping.ParamEventType)
		}

		if out.IsLog() {
			continue
		}
		if _, ok := out.Param(bookkeeping.ParamEventTypeID); ok {
			continue
		}

		meta, err := r.inputMetadata(ctx, jr)
		if err != nil {
			return err
		}
		if len(jr.job.InputFiles) > 0 {
			if m, ok := meta[jr.job.InputFiles[0].Name]; ok && m.EventTypeID != nil {
				out.SetParam(bookkeeping.ParamEventTypeID, formatInt(*m.EventTypeID))
				continue
			}
		}
		if v := jr.job.OutputFileParameters[bookkeeping.ParamEventTypeID]; v != "" {
			out.SetParam(bookkeeping.ParamEventTypeID, v)
			continue
		}
		return &Error{Kind: MissingEventTypeID, FileName: out.Name}
	}
	return nil
}

func (r *JobRegistrar) checkEventType(ctx context.Context, fileName, value string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return &Error{Kind: UnknownEventType, FileName: fileName, EventTypeID: value, Cause: err}
	}
	exists, err := r.store.EventTypeExists(ctx, id)
	if err != nil {
		return &Error{Kind: StoreUnavailable, FileName: fileName, Cause: errors.Wrapf(err, "check event type %d", id)}
	}
	if !exists {
		return &Error{Kind: UnknownEventType, FileName: fileName, EventTypeID: value}
	}
	return nil
}

func (r *JobRegistrar) inferRunAndQuality(ctx context.Context, jr *jobRun) error {
	job := jr.job
	if len(job.InputFiles) == 0 {
		return nil
	}
	if _, ok := job.Param(bookkeeping.ParamRunNumber); ok {
		return nil
	}

	var runs []int64
	var tcks []string
	for _, in := range job.InputFiles {
		history, err := r.store.RunAndTCKHistory(ctx, in.Name)
		if err != nil {
			return &Error{Kind: StoreUnavailable, FileName: in.Name, Cause: errors.Wrap(err, "run and TCK history")}
		}
		for _, h := range history {
			if !slices.Contains(runs, h.Run) {
				runs = append(runs, h.Run)
			}
			if h.TCK != "" && !slices.Contains(tcks, h.TCK) {
				tcks = append(tcks, h.TCK)
			}
		}
	}

	switch len(runs) {
	case 0:
	case 1:
		job.SetParam(bookkeeping.ParamRunNumber, formatInt(runs[0]))
	default:
		job.SetParam(bookkeeping.ParamRunNumber, AmbiguousRunNumber)
	}
	switch len(tcks) {
	case 0:
	case 1:
		job.SetParam(bookkeeping.ParamTCK, tcks[0])
	default:
		job.SetParam(bookkeeping.ParamTCK, AmbiguousTCK)
	}
	jr.log.Debugw("Inferred run from inputs",
		logger.FieldRunNumber, job.Parameters[bookkeeping.ParamRunNumber],
		logger.FieldTCK, job.Parameters[bookkeeping.ParamTCK],
		"distinct_runs", len(runs))

	run, ok := job.IntParam(bookkeeping.ParamRunNumber)
	if !ok || run <= 0 {
		return nil
	}

	production, ok := r.qualityProduction(ctx, jr)
	if !ok {
		return nil
	}
	if q, ok := r.lookupQuality(ctx, jr, run, production); ok {
		jr.quality = q
	}
	return nil
}

// qualityProduction is the production whose processing pass carries the run quality.
// Histogram merging inherits it from the job of its first input.
func (r *JobRegistrar) qualityProduction(ctx context.Context, jr *jobRun) (int64, bool) {
	if jr.class == HistogramMerge {
		info, err := r.store.JobInfo(ctx, jr.job.InputFiles[0].Name)
		if err != nil {
			jr.log.Warnw("Cannot inherit production of merged histograms",
				logger.FieldFile, jr.job.InputFiles[0].Name,
				logger.FieldError, err)
			return 0, false
		}
		return info.Production, true
	}
	production, ok := jr.job.IntParam(bookkeeping.ParamProduction)
	if !ok {
		jr.log.Debugw("No production to look up run quality")
	}
	return production, ok
}

// lookupQuality is best-effort; failures are logged and leave the quality unset
func (r *JobRegistrar) lookupQuality(ctx context.Context, jr *jobRun, run, production int64) (string, bool) {
	passID, err := r.store.ResolveProcessingPassID(ctx, production)
	if err != nil {
		jr.log.Warnw("Processing pass lookup failed",
			logger.FieldProduction, production,
			logger.FieldError, err)
		return "", false
	}
	quality, err := r.store.RunProcessingPassQuality(ctx, run, passID)
	if err != nil {
		jr.log.Warnw("Run quality lookup failed",
			logger.FieldRunNumber, run,
			logger.FieldProduction, production,
			logger.FieldError, err)
		return "", false
	}
	jr.log.Debugw("Run quality found", logger.FieldRunNumber, run, logger.FieldQuality, quality)
	return quality, true
}

func (r *JobRegistrar) computeAggregates(ctx context.Context, jr *jobRun) error {
	job := jr.job
	// JobType only drives classification and is never persisted
	job.DeleteParam(bookkeeping.ParamJobType)

	if len(job.InputFiles) == 0 {
		return nil
	}
	meta, err := r.inputMetadata(ctx, jr)
	if err != nil {
		return err
	}

	var jobInfoStat, fileStat int64
	var luminosity float64
	for i, in := range job.InputFiles {
		info, err := r.store.JobInfo(ctx, in.Name)
		switch {
		case err == nil:
			jobInfoStat += info.EventStat
		case !bookkeeping.IsNotFound(err):
			return &Error{Kind: StoreUnavailable, FileName: in.Name, Cause: errors.Wrap(err, "job info")}
		}

		m, ok := meta[in.Name]
		if !ok {
			continue
		}
		if m.EventStat != nil {
			fileStat += *m.EventStat
		}
		if m.Luminosity != nil {
			luminosity += *m.Luminosity
		}
		if i == 0 && jr.quality == "" {
			if m.DataqualityFlag != "" {
				jr.quality = m.DataqualityFlag
			} else if m.DQFlag != "" {
				jr.quality = m.DQFlag
			}
		}
	}

	job.SetParam(bookkeeping.ParamEventInputStat, formatInt(max(jobInfoStat, fileStat)))
	if luminosity > 0 {
		lumi := strconv.FormatFloat(luminosity, 'f', -1, 64)
		for _, out := range job.OutputFiles {
			if out.IsLog() {
				continue
			}
			if _, ok := out.Param(bookkeeping.ParamLuminosity); !ok {
				out.SetParam(bookkeeping.ParamLuminosity, lumi)
			}
		}
	}
	return nil
}

// checkRunNumber rejects input-less jobs that carry a RunNumber which is not a real run
func (r *JobRegistrar) checkRunNumber(_ context.Context, jr *jobRun) error {
	if len(jr.job.InputFiles) > 0 {
		return nil
	}
	v, ok := jr.job.Param(bookkeeping.ParamRunNumber)
	if !ok {
		return nil
	}
	if run, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil || run <= 0 {
		return &Error{Kind: InvalidRunNumber, RunNumber: v}
	}
	return nil
}

func (r *JobRegistrar) insertJob(ctx context.Context, jr *jobRun) error {
	job := jr.job
	if job.HasCondition() {
		if err := r.registerOnlineProduction(ctx, jr); err != nil {
			return err
		}
	}

	row := make(bookkeeping.Row, len(job.Parameters)+3)
	for k, v := range job.Parameters {
		row[k] = v
	}
	row[bookkeeping.ParamConfigName] = job.Configuration.ConfigName
	row[bookkeeping.ParamConfigVersion] = jr.configVersion
	if _, ok := row[bookkeeping.ParamJobStart]; !ok {
		if start := strings.TrimSpace(job.Configuration.Date + " " + job.Configuration.Time); start != "" {
			row[bookkeeping.ParamJobStart] = start
		}
	}

	id, err := r.store.InsertJob(ctx, row)
	if err != nil {
		return &Error{Kind: JobInsertFailed, Cause: err}
	}
	job.JobID = &id
	jr.jobID = id
	jr.saga.record("delete job", func(ctx context.Context) error {
		return r.store.DeleteJob(ctx, id)
	})
	jr.log.Debugw("Job inserted", logger.FieldJobID, id)
	return nil
}

// registerOnlineProduction registers the condition and the production container
// of a condition-bearing job, keyed by the negative run number.
func (r *JobRegistrar) registerOnlineProduction(ctx context.Context, jr *jobRun) error {
	job := jr.job
	run, ok := job.IntParam(bookkeeping.ParamRunNumber)
	if !ok {
		return &Error{Kind: RunNumberMissing}
	}
	if r.upperCfg {
		jr.configVersion = strings.ToUpper(jr.configVersion)
	}

	description := r.describe(job.DataTakingCondition)
	condID, err := r.store.DataTakingConditionID(ctx, description)
	if bookkeeping.IsNotFound(err) {
		condID, err = r.store.InsertDataTakingCondition(ctx, bookkeeping.DataTakingCondition{
			Description: description,
			Parameters:  job.DataTakingCondition,
		})
	}
	if err != nil {
		return &Error{Kind: ConditionRegistrationFailed, Cause: err}
	}
	job.SetParam(bookkeeping.ParamDAQPeriodID, formatInt(condID))

	production := -run
	step, err := r.store.ResolveStep(ctx, bookkeeping.StepQuery{
		ProgramName:    job.Parameters[bookkeeping.ParamProgramName],
		ProgramVersion: job.Parameters[bookkeeping.ParamProgramVersion],
		CondDB:         job.Parameters[bookkeeping.ParamCondDB],
		DDDB:           job.Parameters[bookkeeping.ParamDDDB],
	})
	if err != nil {
		return &Error{Kind: ProductionRegistrationFailed, Production: production, Cause: errors.Wrap(err, "resolve step")}
	}
	if _, ok := job.Param(bookkeeping.ParamStepID); !ok {
		job.SetParam(bookkeeping.ParamStepID, formatInt(step.ID))
	}
	job.SetParam(bookkeeping.ParamProduction, formatInt(production))

	err = r.store.RegisterProduction(ctx, bookkeeping.ProductionRegistration{
		Production:    production,
		DAQPeriod:     description,
		Steps:         []bookkeeping.ProductionStep{{StepID: step.ID, StepName: step.Name, Visible: "Y"}},
		ConfigName:    job.Configuration.ConfigName,
		ConfigVersion: jr.configVersion,
		EventTypes:    outputEventTypes(job),
	})
	if errors.Is(err, bookkeeping.ErrAlreadyRegistered) {
		jr.log.Debugw("Run production already registered", logger.FieldProduction, production)
		return nil
	}
	if err != nil {
		// the production container may already hold earlier jobs of this run
		containers := newSaga(jr.log)
		containers.record("delete step container", func(ctx context.Context) error {
			return r.store.DeleteStepContainer(ctx, production)
		})
		containers.compensate(ctx)
		return &Error{Kind: ProductionRegistrationFailed, Production: production, Cause: err}
	}

	logger.IxInfow(jr.log, "Run production registered",
		logger.FieldProduction, production,
		logger.FieldRunNumber, run,
		"daq_period", description)
	return nil
}

// outputEventTypes lists the distinct valid event types of the outputs in declaration order
func outputEventTypes(job *bookkeeping.Job) []int64 {
	var ids []int64
	for _, out := range job.OutputFiles {
		v, ok := out.Param(bookkeeping.ParamEventTypeID)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (r *JobRegistrar) registerRunStatus(ctx context.Context, jr *jobRun) error {
	run, ok := jr.job.IntParam(bookkeeping.ParamRunNumber)
	if !ok || run <= 0 {
		return nil
	}
	if err := r.store.InsertRunStatus(ctx, run, jr.jobID, RunStatusNotFlagged); err != nil {
		return &Error{Kind: RunStatusRegistrationFailed, JobID: jr.jobID, Cause: err}
	}

	if q, ok := r.lookupQuality(ctx, jr, run, -run); ok {
		jr.quality = q
	}
	return nil
}

func (r *JobRegistrar) linkInputs(ctx context.Context, jr *jobRun) error {
	for _, in := range jr.job.InputFiles {
		if err := r.store.InsertInputFileLink(ctx, jr.jobID, in.FileID); err != nil {
			return &Error{Kind: InputFileLinkFailed, FileName: in.Name, JobID: jr.jobID, Cause: err}
		}
	}
	if len(jr.job.InputFiles) > 0 {
		jobID := jr.jobID
		jr.saga.record("delete input file links", func(ctx context.Context) error {
			return r.store.DeleteInputFileLinks(ctx, jobID)
		})
	}
	return nil
}

func (r *JobRegistrar) insertOutputs(ctx context.Context, jr *jobRun) error {
	job := jr.job
	production, _ := job.IntParam(bookkeeping.ParamProduction)
	stepID, _ := job.IntParam(bookkeeping.ParamStepID)

	types, err := r.store.ProductionOutputFileTypes(ctx, production, stepID)
	if err != nil && !bookkeeping.IsNotFound(err) {
		return &Error{Kind: OutputFileInsertFailed, JobID: jr.jobID, Production: production,
			Cause: errors.Wrap(err, "production output file types")}
	}

	_, hasRun := job.Param(bookkeeping.ParamRunNumber)
	for _, out := range job.OutputFiles {
		switch {
		case jr.quality != "":
			out.SetParam(bookkeeping.ParamQualityID, jr.quality)
		case !hasRun:
			out.SetParam(bookkeeping.ParamQualityID, bookkeeping.QualityOK)
		}
		if visible, ok := types[out.TypeName]; ok {
			if _, has := out.Param(bookkeeping.ParamVisibilityFlag); !has {
				out.SetParam(bookkeeping.ParamVisibilityFlag, visible)
			}
		}

		row := make(bookkeeping.Row, len(out.Parameters)+3)
		for k, v := range out.Parameters {
			row[k] = v
		}
		row[bookkeeping.ParamFileName] = out.Name
		row[bookkeeping.ParamFileTypeID] = formatInt(out.TypeID)
		row[bookkeeping.ParamJobID] = formatInt(jr.jobID)

		fileID, err := r.store.InsertOutputFile(ctx, row)
		if err != nil {
			return &Error{Kind: OutputFileInsertFailed, FileName: out.Name, JobID: jr.jobID, Cause: err}
		}
		out.FileID = fileID

		for _, rep := range out.Replicas {
			if err := r.store.UpdateReplicaFlag(ctx, fileID, bookkeeping.ReplicaNo); err != nil {
				return &Error{Kind: OutputFileInsertFailed, FileName: out.Name, Location: rep.Location, JobID: jr.jobID,
					Cause: errors.Wrap(err, "initial replica flag")}
			}
		}
		jr.log.Debugw("Output file inserted",
			logger.FieldFile, out.Name,
			logger.FieldFileID, fileID,
			logger.FieldQuality, out.Parameters[bookkeeping.ParamQualityID])
	}
	return nil
}
