package resource

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-pkgz/syncs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jeterrors "github.com/wippyai/jet-runtime/errors"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

type closeLog struct {
	mu    sync.Mutex
	order []string
}

func (l *closeLog) closer(name string, err error) Closer {
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.order = append(l.order, name)
		return err
	}
}

func TestTracker_RegisterLookup(t *testing.T) {
	tr := NewTracker(true)

	inst, err := tr.Register(0, KindInstance, 0, "main", nil)
	require.NoError(t, err)
	sess, err := tr.Register(inst, KindSession, 11, "", nil)
	require.NoError(t, err)

	e, ok := tr.Lookup(sess)
	require.True(t, ok)
	assert.Equal(t, KindSession, e.Kind)
	assert.Equal(t, inst, e.Parent)
	assert.Equal(t, uint64(11), e.Thread)

	assert.Equal(t, []Entry{e}, tr.ChildrenOf(inst))
	assert.Equal(t, 2, tr.Len())

	_, err = tr.Register(999, KindCursor, 11, "", nil)
	assert.ErrorIs(t, err, jeterrors.ErrClosed)
}

func TestTracker_Unregister(t *testing.T) {
	tr := NewTracker(true)
	inst, _ := tr.Register(0, KindInstance, 0, "", nil)
	sess, _ := tr.Register(inst, KindSession, 1, "", nil)
	cur, _ := tr.Register(sess, KindCursor, 1, "", nil)

	t.Run("wrong parent", func(t *testing.T) {
		err := tr.Unregister(inst, cur, 1)
		assert.ErrorIs(t, err, jeterrors.ErrUsage)
	})

	t.Run("wrong thread", func(t *testing.T) {
		err := tr.Unregister(sess, cur, 2)
		assert.ErrorIs(t, err, jeterrors.ErrUsage)
		assert.Contains(t, err.Error(), "thread")
	})

	t.Run("open children", func(t *testing.T) {
		err := tr.Unregister(inst, sess, 1)
		assert.ErrorIs(t, err, jeterrors.ErrInvalidOperation)
	})

	t.Run("ok then closed", func(t *testing.T) {
		require.NoError(t, tr.Unregister(sess, cur, 1))
		err := tr.Unregister(sess, cur, 1)
		assert.ErrorIs(t, err, jeterrors.ErrClosed)
		assert.Empty(t, tr.ChildrenOf(sess))
	})
}

func TestTracker_AffinityDisabled(t *testing.T) {
	tr := NewTracker(false)
	sess, _ := tr.Register(0, KindSession, 1, "", nil)
	assert.NoError(t, tr.Check("Op", sess, 2))
	assert.NoError(t, tr.Unregister(0, sess, 2))
}

func TestTracker_Rebind(t *testing.T) {
	tr := NewTracker(true)
	sess, _ := tr.Register(0, KindSession, 1, "", nil)
	cur, _ := tr.Register(sess, KindCursor, 1, "", nil)
	bg, _ := tr.Register(sess, KindCallback, 0, "", nil)

	require.NoError(t, tr.Rebind(sess, 2))
	assert.NoError(t, tr.Check("Op", cur, 2))
	assert.ErrorIs(t, tr.Check("Op", cur, 1), jeterrors.ErrUsage)

	e, ok := tr.Lookup(bg)
	require.True(t, ok)
	assert.Zero(t, e.Thread)
	assert.NoError(t, tr.Unregister(sess, bg, 0))
}

func TestTracker_CloseAllOrder(t *testing.T) {
	tr := NewTracker(true)
	log := &closeLog{}

	inst, _ := tr.Register(0, KindInstance, 0, "", log.closer("inst", nil))
	s1, _ := tr.Register(inst, KindSession, 1, "", log.closer("s1", nil))
	s2, _ := tr.Register(inst, KindSession, 2, "", log.closer("s2", nil))
	_, _ = tr.Register(s1, KindCursor, 1, "", log.closer("c1", nil))
	_, _ = tr.Register(s1, KindCursor, 1, "", log.closer("c2", nil))
	_, _ = tr.Register(s2, KindTransaction, 2, "", log.closer("t3", nil))

	require.NoError(t, tr.CloseAll(context.Background(), inst))
	assert.Equal(t, []string{"t3", "c2", "c1", "s2", "s1", "inst"}, log.order)
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Leaks())

	err := tr.CloseAll(context.Background(), inst)
	assert.ErrorIs(t, err, jeterrors.ErrInvalidOperation)
}

func TestTracker_CloseAllAggregatesFailures(t *testing.T) {
	tr := NewTracker(true)
	log := &closeLog{}
	errCursor := errors.New("cursor close failed")
	errSession := errors.New("session close failed")

	sess, _ := tr.Register(0, KindSession, 1, "", log.closer("s", errSession))
	_, _ = tr.Register(sess, KindCursor, 1, "", log.closer("c", errCursor))
	_, _ = tr.Register(sess, KindTransaction, 1, "", log.closer("t", nil))

	err := tr.CloseAll(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, errCursor)
	assert.ErrorIs(t, err, errSession)
	assert.Equal(t, []string{"t", "c", "s"}, log.order)
	assert.Equal(t, 0, tr.Len(), "entries are removed even on failure")
}

func TestTracker_NoRegisterWhileClosing(t *testing.T) {
	tr := NewTracker(true)
	var inner error
	var sess ID
	sess, _ = tr.Register(0, KindSession, 1, "", func(context.Context) error {
		_, inner = tr.Register(sess, KindCursor, 1, "", nil)
		return nil
	})

	require.NoError(t, tr.CloseAll(context.Background(), sess))
	assert.ErrorIs(t, inner, jeterrors.ErrClosed)
}

func TestTracker_Observer(t *testing.T) {
	tr := NewTracker(true)
	obs := &testObserver{}
	tr.Subscribe(obs)

	sess, _ := tr.Register(0, KindSession, 1, "", nil)
	_, _ = tr.Register(sess, KindCursor, 1, "", func(context.Context) error { return errors.New("x") })
	_ = tr.CloseAll(context.Background(), sess)

	require.Len(t, obs.events, 4)
	assert.Equal(t, EventRegistered, obs.events[0].Type)
	assert.Equal(t, EventReleased, obs.events[2].Type)
	assert.Equal(t, KindCursor, obs.events[2].Entry.Kind)
	assert.Error(t, obs.events[2].Err)
	assert.Equal(t, KindSession, obs.events[3].Entry.Kind)

	tr.Unsubscribe(obs)
	_, _ = tr.Register(0, KindSession, 1, "", nil)
	assert.Len(t, obs.events, 4)
}

func TestTracker_ConcurrentSessions(t *testing.T) {
	tr := NewTracker(true)
	inst, _ := tr.Register(0, KindInstance, 0, "", nil)

	wg := syncs.NewErrSizedGroup(8)
	for i := 1; i <= 32; i++ {
		thread := uint64(i)
		wg.Go(func() error {
			sess, err := tr.Register(inst, KindSession, thread, "", nil)
			if err != nil {
				return err
			}
			for j := 0; j < 10; j++ {
				cur, err := tr.Register(sess, KindCursor, thread, "", nil)
				if err != nil {
					return err
				}
				if err := tr.Unregister(sess, cur, thread); err != nil {
					return err
				}
			}
			return tr.CloseAll(context.Background(), sess)
		})
	}
	require.NoError(t, wg.Wait())
	assert.Equal(t, 1, tr.Len())
}
