package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewf(t *testing.T) {
	err := Newf("file %s missing type %d", "a.dst", 42)
	require.NotNil(t, err)
	assert.Equal(t, "file a.dst missing type 42", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "insert job %d", 7)

	assert.Contains(t, wrapped.Error(), "insert job 7")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrNotFound, true},
		{"wrapped sentinel", Wrap(ErrNotFound, "file type DST<<1"), true},
		{"formatted", NewNotFoundError("file %s", "x"), true},
		{"std wrapped", fmt.Errorf("lookup: %w", ErrNotFound), true},
		{"other", New("boom"), false},
		{"conflict", ErrConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFoundError(tt.err))
		})
	}
}

func TestIsConflictError(t *testing.T) {
	assert.True(t, IsConflictError(NewConflictError("production %d", -1234)))
	assert.False(t, IsConflictError(ErrNotFound))
	assert.False(t, IsConflictError(nil))
}

func TestWithHintSurvivesWrapping(t *testing.T) {
	err := WithHint(New("type missing"), "register the file type first")
	wrapped := Wrap(err, "resolve output types")

	assert.Contains(t, FlattenHints(wrapped), "register the file type first")
}
