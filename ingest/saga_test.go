package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/bkingest/errors"
)

func TestSaga_CompensatesInReverse(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newSaga(zap.New(core).Sugar())

	var order []string
	for _, name := range []string{"job", "links", "outputs"} {
		name := name
		s.record(name, func(context.Context) error {
			order = append(order, name)
			if name == "links" {
				return errors.New("boom")
			}
			return nil
		})
	}

	failed := s.compensate(context.Background())

	assert.Equal(t, []string{"outputs", "links", "job"}, order)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, s.len())
	assert.Equal(t, 1, logs.FilterMessage("Compensation failed").FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, 2, logs.FilterMessage("Compensated").Len())

	// already unwound
	assert.Zero(t, s.compensate(context.Background()))
	assert.Len(t, order, 3)
}

func TestSaga_CompensatesAfterCancel(t *testing.T) {
	s := newSaga(zap.NewNop().Sugar())
	var seen error
	s.record("job", func(ctx context.Context) error {
		seen = ctx.Err()
		return seen
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, s.compensate(ctx))
	assert.NoError(t, seen)
}
