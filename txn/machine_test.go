package txn

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/jet-runtime/errors"
)

func TestMachine_Scenario(t *testing.T) {
	var m Machine
	assert.Equal(t, Idle, m.State())

	d, err := m.Begin()
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	d, err = m.Begin()
	require.NoError(t, err)
	assert.Equal(t, 2, d)
	assert.Equal(t, Active, m.State())

	d, err = m.Rollback()
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	d, err = m.Commit()
	require.NoError(t, err)
	assert.Equal(t, 0, d)

	_, err = m.Commit()
	assert.ErrorIs(t, err, errors.ErrInvalidOperation)
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, Idle, m.State())
}

func TestMachine_RollbackIdle(t *testing.T) {
	var m Machine
	_, err := m.Rollback()
	require.Error(t, err)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Rollback", e.Op)
	assert.Equal(t, errors.PhaseTransaction, e.Phase)
}

func TestMachine_NestingLimit(t *testing.T) {
	var m Machine
	for i := 0; i < MaxDepth; i++ {
		_, err := m.Begin()
		require.NoError(t, err)
	}
	_, err := m.Begin()
	assert.ErrorIs(t, err, errors.ErrInvalidOperation)
	assert.Equal(t, MaxDepth, m.Depth())

	m.Reset()
	assert.Equal(t, 0, m.Depth())
}

// Random sequences: depth equals begins minus successful ends and never
// goes negative; ends at depth 0 fail without changing anything.
func TestMachine_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for run := 0; run < 200; run++ {
		var m Machine
		begins, ends := 0, 0
		for step := 0; step < 50; step++ {
			before := m.Depth()
			switch rng.Intn(3) {
			case 0:
				if _, err := m.Begin(); err == nil {
					begins++
				} else {
					assert.Equal(t, MaxDepth, before)
				}
			case 1:
				_, err := m.Commit()
				if before == 0 {
					require.ErrorIs(t, err, errors.ErrInvalidOperation)
				} else {
					require.NoError(t, err)
					ends++
				}
			case 2:
				_, err := m.Rollback()
				if before == 0 {
					require.ErrorIs(t, err, errors.ErrInvalidOperation)
				} else {
					require.NoError(t, err)
					ends++
				}
			}
			require.GreaterOrEqual(t, m.Depth(), 0)
			require.Equal(t, begins-ends, m.Depth())
		}
	}
}
