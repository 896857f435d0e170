package memory

import (
	"context"

	jetruntime "github.com/wippyai/jet-runtime"
)

func (l *Library) defragment(a *args, rev int, wide bool) jetruntime.Status {
	var (
		id, dbid, c, grbit uint64
		path               string
		pathOK             = true
		cb                 jetruntime.Callback
	)
	switch rev {
	case 3:
		a.expect(8)
		path, pathOK = text(a, 1, wide)
		cb = a.callback(5)
		c = a.word(6)
		grbit = a.word(7)
	case 2:
		a.expect(7)
		dbid = a.word(1)
		cb = a.callback(5)
		grbit = a.word(6)
	default:
		a.expect(6)
		dbid = a.word(1)
		grbit = a.word(5)
	}
	id = a.word(0)
	_, tableOK := text(a, 2, wide)
	passes := a.out(3)
	a.out(4)
	if a.err != nil {
		return 0
	}
	if !pathOK || !tableOK {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if rev < 3 {
		d, ok := l.databases[dbid]
		if !ok || d.session != id {
			return jetruntime.StatusInvalidDatabaseID
		}
		path = d.path
	} else if !l.instances[s.instance].attached[path] {
		return jetruntime.StatusDatabaseNotFound
	}

	if uint32(grbit)&jetruntime.BitDefragmentBatchStop != 0 {
		run, ok := l.running[path]
		if !ok {
			return jetruntime.WarningDefragNotRunning
		}
		close(run.cancel)
		delete(l.running, path)
		return 0
	}

	if _, ok := l.running[path]; ok {
		return jetruntime.WarningDefragAlreadyRuns
	}
	if passes != nil {
		l.lastPasses = *passes
	}

	run := &defrag{cancel: make(chan struct{})}
	l.running[path] = run
	l.defrags.Add(1)
	go l.runDefrag(path, run, cb, []uint64{id, dbid, 0, uint64(jetruntime.CbtypOnlineDefragCompleted), 0, 0, c})
	return 0
}

// runDefrag stands in for the engine's background defragmentation thread.
func (l *Library) runDefrag(path string, run *defrag, cb jetruntime.Callback, words []uint64) {
	defer l.defrags.Done()

	if l.defragGate != nil {
		select {
		case <-l.defragGate:
		case <-run.cancel:
			return
		}
	}

	l.mu.Lock()
	if l.running[path] != run {
		l.mu.Unlock()
		return
	}
	delete(l.running, path)
	d := l.dispatcher
	l.mu.Unlock()

	if d != nil && cb.Handle != 0 {
		d.Dispatch(context.Background(), cb.Handle, words...)
	}
}

// notify fires a status callback from a goroutine the caller does not own
// and waits for it, the way the engine reports backup progress.
func (l *Library) notify(ctx context.Context, cb jetruntime.Callback, words ...uint64) jetruntime.Status {
	l.mu.Lock()
	d := l.dispatcher
	l.mu.Unlock()
	if d == nil || cb.Handle == 0 {
		return 0
	}
	done := make(chan jetruntime.Status, 1)
	go func() { done <- d.Dispatch(ctx, cb.Handle, words...) }()
	return <-done
}

// progress reports begin, midpoint and completion of a streaming operation,
// aborting when a stop was requested or the callback failed.
func (l *Library) progress(ctx context.Context, h uint64, snp uint32, cb jetruntime.Callback) jetruntime.Status {
	steps := []struct {
		snt     uint32
		percent uint64
	}{
		{jetruntime.SntBegin, 0},
		{jetruntime.SntProgress, 50},
		{jetruntime.SntComplete, 100},
	}
	for _, step := range steps {
		l.mu.Lock()
		in, ok := l.instances[h]
		stop := ok && in.stopBackup
		l.mu.Unlock()
		if !ok {
			return jetruntime.StatusInvalidInstance
		}
		if stop {
			return jetruntime.StatusBackupAbortByServer
		}
		if st := l.notify(ctx, cb, 0, uint64(snp), uint64(step.snt), step.percent); st.IsError() {
			return jetruntime.StatusCallbackFailed
		}
	}
	return 0
}

func (l *Library) backup(ctx context.Context, a *args, wide bool) jetruntime.Status {
	a.expect(4)
	h := a.word(0)
	path, ok := text(a, 1, wide)
	a.word(2)
	cb := a.callback(3)
	if a.err != nil {
		return 0
	}
	if !ok || path == "" {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	in, found := l.instances[h]
	switch {
	case !found:
		l.mu.Unlock()
		return jetruntime.StatusInvalidInstance
	case !in.initialized:
		l.mu.Unlock()
		return jetruntime.StatusNotInitialized
	}
	in.backupActive = true
	in.stopBackup = false
	l.mu.Unlock()

	st := l.progress(ctx, h, jetruntime.SnpBackup, cb)

	l.mu.Lock()
	if in, ok := l.instances[h]; ok {
		in.backupActive = false
		in.stopBackup = false
	}
	l.mu.Unlock()
	return st
}

func (l *Library) restore(ctx context.Context, a *args, wide bool) jetruntime.Status {
	a.expect(4)
	h := a.word(0)
	src, srcOK := text(a, 1, wide)
	_, dstOK := text(a, 2, wide)
	cb := a.callback(3)
	if a.err != nil {
		return 0
	}
	if !srcOK || !dstOK || src == "" {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	in, found := l.instances[h]
	switch {
	case !found:
		l.mu.Unlock()
		return jetruntime.StatusInvalidInstance
	case in.initialized:
		l.mu.Unlock()
		return jetruntime.StatusAlreadyInitialized
	}
	in.backupActive = true
	in.stopBackup = false
	l.mu.Unlock()

	st := l.progress(ctx, h, jetruntime.SnpRestore, cb)

	l.mu.Lock()
	if in, ok := l.instances[h]; ok {
		in.backupActive = false
		in.stopBackup = false
	}
	l.mu.Unlock()
	return st
}

func (l *Library) stopBackup(a *args) jetruntime.Status {
	a.expect(1)
	h := a.word(0)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.instances[h]
	if !ok {
		return jetruntime.StatusInvalidInstance
	}
	if in.backupActive {
		in.stopBackup = true
	}
	return 0
}
