package ingest

import (
	"fmt"
	"strings"

	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/logger"
)

// Kind classifies an ingestion failure
type Kind int

const (
	KindNone Kind = iota

	// Dispatch
	UnknownDocumentKind
	MalformedXML

	// Input errors, raised before any write
	FilesNotRegistered
	UnknownFileType
	UnknownEventType
	MissingEventTypeID
	InvalidRunNumber
	RunNumberMissing

	// Partial-commit errors, compensated
	ConditionRegistrationFailed
	ProductionRegistrationFailed
	JobInsertFailed
	RunStatusRegistrationFailed
	InputFileLinkFailed
	OutputFileInsertFailed

	// Replica errors
	ReplicaTargetNotFound
	ReplicaFlagUpdateFailed

	// A store call failed outside a registration write
	StoreUnavailable
)

var kindNames = map[Kind]string{
	KindNone:                     "None",
	UnknownDocumentKind:          "UnknownDocumentKind",
	MalformedXML:                 "MalformedXml",
	FilesNotRegistered:           "FilesNotRegistered",
	UnknownFileType:              "UnknownFileType",
	UnknownEventType:             "UnknownEventType",
	MissingEventTypeID:           "MissingEventTypeId",
	InvalidRunNumber:             "InvalidRunNumber",
	RunNumberMissing:             "RunNumberMissing",
	ConditionRegistrationFailed:  "ConditionRegistrationFailed",
	ProductionRegistrationFailed: "ProductionRegistrationFailed",
	JobInsertFailed:              "JobInsertFailed",
	RunStatusRegistrationFailed:  "RunStatusRegistrationFailed",
	InputFileLinkFailed:          "InputFileLinkFailed",
	OutputFileInsertFailed:       "OutputFileInsertFailed",
	ReplicaTargetNotFound:        "ReplicaTargetNotFound",
	ReplicaFlagUpdateFailed:      "ReplicaFlagUpdateFailed",
	StoreUnavailable:             "StoreUnavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Compensated reports whether failures of this kind happen after a write and trigger compensation
func (k Kind) Compensated() bool {
	switch k {
	case ProductionRegistrationFailed, RunStatusRegistrationFailed, InputFileLinkFailed, OutputFileInsertFailed:
		return true
	}
	return false
}

// Error is the structured failure returned by every registrar.
// Only the fields relevant to Kind are set.
type Error struct {
	Kind        Kind
	Stage       Stage
	FileName    string
	Location    string
	TypeName    string
	TypeVersion string
	Files       []string
	EventTypeID string
	RunNumber   string
	JobID       int64
	Production  int64
	Delete      bool // replica action was a delete
	Cause       error
}

// Sentinels for errors.Is checks by kind
var (
	ErrUnknownDocumentKind          = &Error{Kind: UnknownDocumentKind}
	ErrMalformedXML                 = &Error{Kind: MalformedXML}
	ErrFilesNotRegistered           = &Error{Kind: FilesNotRegistered}
	ErrUnknownFileType              = &Error{Kind: UnknownFileType}
	ErrUnknownEventType             = &Error{Kind: UnknownEventType}
	ErrMissingEventTypeID           = &Error{Kind: MissingEventTypeID}
	ErrInvalidRunNumber             = &Error{Kind: InvalidRunNumber}
	ErrRunNumberMissing             = &Error{Kind: RunNumberMissing}
	ErrConditionRegistrationFailed  = &Error{Kind: ConditionRegistrationFailed}
	ErrProductionRegistrationFailed = &Error{Kind: ProductionRegistrationFailed}
	ErrJobInsertFailed              = &Error{Kind: JobInsertFailed}
	ErrRunStatusRegistrationFailed  = &Error{Kind: RunStatusRegistrationFailed}
	ErrInputFileLinkFailed          = &Error{Kind: InputFileLinkFailed}
	ErrOutputFileInsertFailed       = &Error{Kind: OutputFileInsertFailed}
	ErrReplicaTargetNotFound        = &Error{Kind: ReplicaTargetNotFound}
	ErrReplicaFlagUpdateFailed      = &Error{Kind: ReplicaFlagUpdateFailed}
	ErrStoreUnavailable             = &Error{Kind: StoreUnavailable}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.message())
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) message() string {
	switch e.Kind {
	case UnknownDocumentKind:
		return "unknown document kind"
	case MalformedXML:
		return "malformed XML document"
	case FilesNotRegistered:
		return fmt.Sprintf("input files not registered in bookkeeping: %s", strings.Join(e.Files, ", "))
	case UnknownFileType:
		return fmt.Sprintf("file type %s version %s of %s is not registered", e.TypeName, e.TypeVersion, e.FileName)
	case UnknownEventType:
		return fmt.Sprintf("event type %s of %s is not registered", e.EventTypeID, e.FileName)
	case MissingEventTypeID:
		return fmt.Sprintf("no EventTypeId for output file %s", e.FileName)
	case InvalidRunNumber:
		return fmt.Sprintf("job without input files has invalid RunNumber %q", e.RunNumber)
	case RunNumberMissing:
		return "RunNumber is missing from the job parameters"
	case ConditionRegistrationFailed:
		return "data taking condition registration failed"
	case ProductionRegistrationFailed:
		return fmt.Sprintf("production %d registration failed", e.Production)
	case JobInsertFailed:
		return "job insertion failed"
	case RunStatusRegistrationFailed:
		return fmt.Sprintf("run status registration failed for job %d", e.JobID)
	case InputFileLinkFailed:
		return fmt.Sprintf("linking input file %s to job %d failed", e.FileName, e.JobID)
	case OutputFileInsertFailed:
		return fmt.Sprintf("output file %s insertion failed for job %d", e.FileName, e.JobID)
	case ReplicaTargetNotFound:
		if e.Delete {
			return fmt.Sprintf("file %s is not in bookkeeping, cannot remove replica at %s", e.FileName, e.Location)
		}
		return fmt.Sprintf("file %s is not in bookkeeping, cannot add replica at %s", e.FileName, e.Location)
	case ReplicaFlagUpdateFailed:
		return fmt.Sprintf("replica flag update of %s failed", e.FileName)
	case StoreUnavailable:
		return fmt.Sprintf("bookkeeping store call failed during %s", e.Stage)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindNone
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// logFields renders the populated fields as key/value pairs for structured logging
func (e *Error) logFields() []interface{} {
	fields := []interface{}{logger.FieldErrorKind, e.Kind.String()}
	if e.Stage != "" {
		fields = append(fields, logger.FieldStage, string(e.Stage))
	}
	if e.FileName != "" {
		fields = append(fields, logger.FieldFile, e.FileName)
	}
	if e.Location != "" {
		fields = append(fields, logger.FieldLocation, e.Location)
	}
	if len(e.Files) > 0 {
		fields = append(fields, "files", e.Files)
	}
	if e.JobID != 0 {
		fields = append(fields, logger.FieldJobID, e.JobID)
	}
	if e.Production != 0 {
		fields = append(fields, logger.FieldProduction, e.Production)
	}
	if e.Cause != nil {
		fields = append(fields, logger.FieldError, e.Cause.Error())
	}
	return fields
}

var errNoParser = errors.New("no document parser configured")
