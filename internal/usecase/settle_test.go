package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAll_WaitsForEveryTask(t *testing.T) {
	boom := errors.New("boom")
	res := settleAll(context.Background(), []task[int]{
		{name: "slow", run: func(context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			return 1, nil
		}},
		{name: "fails", run: func(context.Context) (int, error) { return 0, boom }},
		{name: "panics", run: func(context.Context) (int, error) { panic("bad feed") }},
	})

	require.Len(t, res, 3)
	assert.Equal(t, "slow", res[0].name)
	assert.Equal(t, 1, res[0].value)
	assert.NoError(t, res[0].err)
	assert.ErrorIs(t, res[1].err, boom)
	assert.ErrorContains(t, res[2].err, "bad feed")
}

func TestSettleAll_Empty(t *testing.T) {
	assert.Empty(t, settleAll[int](context.Background(), nil))
}
