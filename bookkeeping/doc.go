// Package bookkeeping holds the data model of job and replica descriptions and the
// contracts of the collaborators the ingestion pipeline registers them with.
//
// Parameter maps use the bookkeeping attribute names (RunNumber, Production, StepID,
// EventTypeId, QualityId, ...) so a description can be flattened into an attribute row
// without renaming.
package bookkeeping
