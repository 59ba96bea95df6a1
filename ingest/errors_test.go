package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := errors.Wrap(&Error{Kind: InputFileLinkFailed, FileName: "/a.raw", JobID: 5}, "ingest")

	assert.ErrorIs(t, err, ErrInputFileLinkFailed)
	assert.NotErrorIs(t, err, ErrOutputFileInsertFailed)
	assert.Equal(t, InputFileLinkFailed, KindOf(err))
	assert.Equal(t, KindNone, KindOf(errors.New("plain")))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.Wrap(bookkeeping.ErrNotFound, "file type DST")
	err := &Error{Kind: UnknownFileType, FileName: "/a.dst", TypeName: "DST", TypeVersion: "1", Cause: cause}

	assert.True(t, bookkeeping.IsNotFound(err))
	assert.Equal(t, "file type DST version 1 of /a.dst is not registered: file type DST: not found", err.Error())
}

func TestError_Messages(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: FilesNotRegistered, Files: []string{"/a", "/b"}}, "input files not registered in bookkeeping: /a, /b"},
		{&Error{Kind: MissingEventTypeID, FileName: "/a.dst"}, "no EventTypeId for output file /a.dst"},
		{&Error{Kind: InvalidRunNumber, RunNumber: "-4"}, `job without input files has invalid RunNumber "-4"`},
		{&Error{Kind: ReplicaTargetNotFound, FileName: "/a", Location: "CERN"}, "file /a is not in bookkeeping, cannot add replica at CERN"},
		{&Error{Kind: ReplicaTargetNotFound, FileName: "/a", Location: "CERN", Delete: true}, "file /a is not in bookkeeping, cannot remove replica at CERN"},
		{&Error{Kind: OutputFileInsertFailed, FileName: "/b.dst", JobID: 9}, "output file /b.dst insertion failed for job 9"},
		{&Error{Kind: StoreUnavailable, Stage: StageInputResolution}, "bookkeeping store call failed during InputResolution"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKind_Compensated(t *testing.T) {
	for _, k := range []Kind{RunStatusRegistrationFailed, InputFileLinkFailed, OutputFileInsertFailed, ProductionRegistrationFailed} {
		assert.True(t, k.Compensated(), k.String())
	}
	for _, k := range []Kind{FilesNotRegistered, UnknownFileType, MissingEventTypeID, InvalidRunNumber, RunNumberMissing} {
		assert.False(t, k.Compensated(), k.String())
	}
	assert.Equal(t, "Kind(99)", Kind(99).String())
}
