package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/logger"
)

// ReplicaRegistrar flips the Got-Replica flag of files named by a replica document.
// Each action is its own unit; nothing is compensated.
type ReplicaRegistrar struct {
	store   bookkeeping.Store
	catalog bookkeeping.ReplicaCatalog
	log     *zap.SugaredLogger
}

// NewReplicaRegistrar creates a registrar. A nil logger uses the "ingest.replica" component logger.
func NewReplicaRegistrar(store bookkeeping.Store, catalog bookkeeping.ReplicaCatalog, l *zap.SugaredLogger) *ReplicaRegistrar {
	return &ReplicaRegistrar{
		store:   store,
		catalog: catalog,
		log:     logger.OrComponent(l, "ingest.replica"),
	}
}

// Process applies the actions in order. An unknown file or a failed add aborts the document.
// A failed flag flip after a delete is reported once all actions have run.
func (r *ReplicaRegistrar) Process(ctx context.Context, doc *bookkeeping.ReplicaDocument) error {
	log := logger.FromContext(ctx, r.log)

	var deferred *Error
	for _, action := range doc.Actions {
		err := r.apply(ctx, log, action)
		if err == nil {
			continue
		}
		log.Errorw("Replica registration failed", err.logFields()...)
		if action.Delete && err.Kind == ReplicaFlagUpdateFailed {
			if deferred == nil {
				deferred = err
			}
			continue
		}
		return err
	}
	if deferred != nil {
		return deferred
	}

	logger.ReplicaInfow(log, "Replica document registered", logger.FieldCount, len(doc.Actions))
	return nil
}

func (r *ReplicaRegistrar) apply(ctx context.Context, log *zap.SugaredLogger, action bookkeeping.ReplicaAction) *Error {
	fail := func(kind Kind, cause error) *Error {
		return &Error{
			Kind:     kind,
			Stage:    StageReplica,
			FileName: action.FileName,
			Location: action.Location,
			Delete:   action.Delete,
			Cause:    cause,
		}
	}

	fileID, err := r.store.ResolveFileID(ctx, action.FileName)
	if bookkeeping.IsNotFound(err) {
		return fail(ReplicaTargetNotFound, nil)
	}
	if err != nil {
		return fail(StoreUnavailable, err)
	}

	if !action.Delete {
		if err := r.store.UpdateReplicaFlag(ctx, fileID, bookkeeping.ReplicaYes); err != nil {
			return fail(ReplicaFlagUpdateFailed, err)
		}
		log.Debugw("Replica added", logger.FieldFile, action.FileName, logger.FieldLocation, action.Location)
		return nil
	}

	remaining, err := r.catalog.CurrentReplicas(ctx, action.FileName)
	if err != nil {
		return fail(StoreUnavailable, err)
	}
	if len(remaining) > 0 {
		log.Debugw("Replicas remain, flag unchanged",
			logger.FieldFile, action.FileName,
			logger.FieldCount, len(remaining))
		return nil
	}
	if err := r.store.UpdateReplicaFlag(ctx, fileID, bookkeeping.ReplicaNo); err != nil {
		return fail(ReplicaFlagUpdateFailed, err)
	}
	log.Debugw("Last replica removed", logger.FieldFile, action.FileName, logger.FieldLocation, action.Location)
	return nil
}
