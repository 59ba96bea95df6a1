package ingest

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

// fakeStore is an in-memory bookkeeping.Store with call counters and failure injection
type fakeStore struct {
	mu sync.Mutex

	files      map[string]int64
	fileTypes  map[string]int64
	eventTypes map[int64]bool
	meta       map[string]bookkeeping.FileMetadata
	history    map[string][]bookkeeping.RunTCK
	jobInfo    map[string]*bookkeeping.JobInfo
	passes     map[int64]int64
	quality    map[[2]int64]string
	conditions map[string]int64
	step       bookkeeping.Step
	outTypes   map[string]string

	registerErr error
	// fail injects an error into the named method
	fail map[string]error
	// failOutputAt makes the n-th InsertOutputFile call fail (1-based)
	failOutputAt int

	calls map[string]int
	// undo records compensating deletes in call order
	undo []string

	nextID        int64
	jobs          map[int64]bookkeeping.Row
	links         map[int64][]int64
	outputs       map[int64]bookkeeping.Row
	runStatus     map[int64][2]int64
	flags         map[int64][]string
	registrations []bookkeeping.ProductionRegistration
	insertedConds []bookkeeping.DataTakingCondition
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:      make(map[string]int64),
		fileTypes:  make(map[string]int64),
		eventTypes: make(map[int64]bool),
		meta:       make(map[string]bookkeeping.FileMetadata),
		history:    make(map[string][]bookkeeping.RunTCK),
		jobInfo:    make(map[string]*bookkeeping.JobInfo),
		passes:     make(map[int64]int64),
		quality:    make(map[[2]int64]string),
		conditions: make(map[string]int64),
		step:       bookkeeping.Step{ID: 7, Name: "Real Data Moore v1"},
		outTypes:   make(map[string]string),
		fail:       make(map[string]error),
		calls:      make(map[string]int),
		nextID:     1000,
		jobs:       make(map[int64]bookkeeping.Row),
		links:      make(map[int64][]int64),
		outputs:    make(map[int64]bookkeeping.Row),
		runStatus:  make(map[int64][2]int64),
		flags:      make(map[int64][]string),
	}
}

func (f *fakeStore) call(name string) error {
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range []string{"InsertJob", "InsertRunStatus", "InsertInputFileLink", "InsertOutputFile",
		"UpdateReplicaFlag", "RegisterProduction", "InsertDataTakingCondition"} {
		n += f.calls[m]
	}
	return n
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func notFound(what string) error {
	return errors.Wrap(bookkeeping.ErrNotFound, what)
}

func (f *fakeStore) BulkResolveFileIDs(_ context.Context, names []string) (bookkeeping.FileIDResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("BulkResolveFileIDs"); err != nil {
		return bookkeeping.FileIDResolution{}, err
	}
	res := bookkeeping.FileIDResolution{Resolved: make(map[string]int64)}
	for _, n := range names {
		if id, ok := f.files[n]; ok {
			res.Resolved[n] = id
		} else {
			res.Failed = append(res.Failed, n)
		}
	}
	return res, nil
}

func (f *fakeStore) ResolveFileTypeID(_ context.Context, typeName, typeVersion string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ResolveFileTypeID"); err != nil {
		return 0, err
	}
	id, ok := f.fileTypes[typeName+"/"+typeVersion]
	if !ok {
		return 0, notFound("file type " + typeName)
	}
	return id, nil
}

func (f *fakeStore) EventTypeExists(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EventTypeExists"); err != nil {
		return false, err
	}
	return f.eventTypes[id], nil
}

func (f *fakeStore) FileMetadata(_ context.Context, names []string) (map[string]bookkeeping.FileMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FileMetadata"); err != nil {
		return nil, err
	}
	out := make(map[string]bookkeeping.FileMetadata)
	for _, n := range names {
		if m, ok := f.meta[n]; ok {
			out[n] = m
		}
	}
	return out, nil
}

func (f *fakeStore) RunAndTCKHistory(_ context.Context, name string) ([]bookkeeping.RunTCK, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RunAndTCKHistory"); err != nil {
		return nil, err
	}
	return f.history[name], nil
}

func (f *fakeStore) JobInfo(_ context.Context, name string) (*bookkeeping.JobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("JobInfo"); err != nil {
		return nil, err
	}
	info, ok := f.jobInfo[name]
	if !ok {
		return nil, notFound("job info of " + name)
	}
	return info, nil
}

func (f *fakeStore) ResolveProcessingPassID(_ context.Context, production int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ResolveProcessingPassID"); err != nil {
		return 0, err
	}
	id, ok := f.passes[production]
	if !ok {
		return 0, notFound("processing pass")
	}
	return id, nil
}

func (f *fakeStore) RunProcessingPassQuality(_ context.Context, run, pass int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RunProcessingPassQuality"); err != nil {
		return "", err
	}
	q, ok := f.quality[[2]int64{run, pass}]
	if !ok {
		return "", notFound("run quality")
	}
	return q, nil
}

func (f *fakeStore) DataTakingConditionID(_ context.Context, description string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DataTakingConditionID"); err != nil {
		return 0, err
	}
	id, ok := f.conditions[description]
	if !ok {
		return 0, notFound("condition")
	}
	return id, nil
}

func (f *fakeStore) InsertDataTakingCondition(_ context.Context, cond bookkeeping.DataTakingCondition) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("InsertDataTakingCondition"); err != nil {
		return 0, err
	}
	id := f.id()
	f.conditions[cond.Description] = id
	f.insertedConds = append(f.insertedConds, cond)
	return id, nil
}

func (f *fakeStore) ResolveStep(_ context.Context, _ bookkeeping.StepQuery) (bookkeeping.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ResolveStep"); err != nil {
		return bookkeeping.Step{}, err
	}
	return f.step, nil
}

func (f *fakeStore) RegisterProduction(_ context.Context, reg bookkeeping.ProductionRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RegisterProduction"]++
	f.registrations = append(f.registrations, reg)
	return f.registerErr
}

func (f *fakeStore) DeleteStepContainer(_ context.Context, production int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.undo = append(f.undo, "DeleteStepContainer")
	return f.call("DeleteStepContainer")
}

func (f *fakeStore) DeleteProductionContainer(_ context.Context, production int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.undo = append(f.undo, "DeleteProductionContainer")
	return f.call("DeleteProductionContainer")
}

func (f *fakeStore) InsertJob(_ context.Context, row bookkeeping.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("InsertJob"); err != nil {
		return 0, err
	}
	id := f.id()
	f.jobs[id] = row
	return id, nil
}

func (f *fakeStore) InsertRunStatus(_ context.Context, run, jobID int64, finished string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("InsertRunStatus"); err != nil {
		return err
	}
	f.runStatus[jobID] = [2]int64{run, 0}
	return nil
}

func (f *fakeStore) DeleteJob(_ context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.undo = append(f.undo, "DeleteJob")
	if err := f.call("DeleteJob"); err != nil {
		return err
	}
	delete(f.jobs, jobID)
	delete(f.links, jobID)
	delete(f.runStatus, jobID)
	return nil
}

func (f *fakeStore) InsertInputFileLink(_ context.Context, jobID, fileID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("InsertInputFileLink"); err != nil {
		return err
	}
	f.links[jobID] = append(f.links[jobID], fileID)
	return nil
}

func (f *fakeStore) DeleteInputFileLinks(_ context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.undo = append(f.undo, "DeleteInputFileLinks")
	if err := f.call("DeleteInputFileLinks"); err != nil {
		return err
	}
	delete(f.links, jobID)
	return nil
}

func (f *fakeStore) ProductionOutputFileTypes(_ context.Context, _, _ int64) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ProductionOutputFileTypes"); err != nil {
		return nil, err
	}
	return f.outTypes, nil
}

func (f *fakeStore) InsertOutputFile(_ context.Context, row bookkeeping.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("InsertOutputFile"); err != nil {
		return 0, err
	}
	if f.failOutputAt > 0 && f.calls["InsertOutputFile"] == f.failOutputAt {
		return 0, errors.New("constraint failed")
	}
	id := f.id()
	f.outputs[id] = row
	f.files[row[bookkeeping.ParamFileName]] = id
	return id, nil
}

func (f *fakeStore) UpdateReplicaFlag(_ context.Context, fileID int64, flag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdateReplicaFlag"); err != nil {
		return err
	}
	f.flags[fileID] = append(f.flags[fileID], flag)
	return nil
}

func (f *fakeStore) ResolveFileID(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ResolveFileID"); err != nil {
		return 0, err
	}
	id, ok := f.files[name]
	if !ok {
		return 0, notFound("file " + name)
	}
	return id, nil
}

// outputRows returns the stored output rows sorted by file name
func (f *fakeStore) outputRows() []bookkeeping.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]bookkeeping.Row, 0, len(f.outputs))
	for _, r := range f.outputs {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i][bookkeeping.ParamFileName] < rows[j][bookkeeping.ParamFileName]
	})
	return rows
}

type fakeCatalog struct {
	replicas map[string]map[string]bookkeeping.ReplicaInfo
	err      error
	calls    int
}

func (c *fakeCatalog) CurrentReplicas(_ context.Context, name string) (map[string]bookkeeping.ReplicaInfo, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.replicas[name], nil
}

func int64p(n int64) *int64 { return &n }

func float64p(f float64) *float64 { return &f }
