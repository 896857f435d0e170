package memory

import (
	"context"
	"errors"
	"time"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
)

var errClosed = errors.New("memory: library closed")

// revision returns the struct revision encoded in a symbol name.
func revision(name, prefix string) int {
	switch name {
	case prefix + "2":
		return 2
	case prefix + "3":
		return 3
	default:
		return 1
	}
}

func (l *Library) call(ctx context.Context, symbol string, list []any) (jetruntime.Status, error) {
	l.mu.Lock()
	l.calls[symbol]++
	l.history = append(l.history, symbol)
	if l.closed {
		l.mu.Unlock()
		return 0, errClosed
	}
	if st, ok := l.forced[symbol]; ok {
		l.mu.Unlock()
		return st, nil
	}
	l.mu.Unlock()

	a := &args{symbol: symbol, list: list}
	name, wide := base(symbol)

	var st jetruntime.Status
	switch name {
	case "JetGetVersion":
		st = l.getVersion(a)
	case "JetCreateInstance", "JetCreateInstance2":
		st = l.createInstance(a, revision(name, "JetCreateInstance"), wide)
	case "JetInit", "JetInit2", "JetInit3":
		st = l.init(a, revision(name, "JetInit"), wide)
	case "JetTerm", "JetTerm2":
		st = l.term(a, revision(name, "JetTerm"))
	case "JetStopServiceInstance", "JetStopServiceInstance2":
		st = l.stopService(a, revision(name, "JetStopServiceInstance"))
	case "JetSetSystemParameter":
		st = l.setParameter(a, wide)
	case "JetBeginSession":
		st = l.beginSession(a, wide)
	case "JetEndSession":
		st = l.endSession(a)
	case "JetSetSessionContext":
		st = l.setSessionContext(a)
	case "JetResetSessionContext":
		st = l.resetSessionContext(a)
	case "JetBeginTransaction", "JetBeginTransaction2", "JetBeginTransaction3":
		st = l.beginTransaction(a, revision(name, "JetBeginTransaction"))
	case "JetCommitTransaction", "JetCommitTransaction2":
		st = l.commitTransaction(a, revision(name, "JetCommitTransaction"))
	case "JetRollback":
		st = l.rollback(a)
	case "JetAttachDatabase", "JetAttachDatabase2":
		st = l.attachDatabase(a, revision(name, "JetAttachDatabase"), wide)
	case "JetDetachDatabase", "JetDetachDatabase2":
		st = l.detachDatabase(a, revision(name, "JetDetachDatabase"), wide)
	case "JetOpenDatabase":
		st = l.openDatabase(a, wide)
	case "JetCloseDatabase":
		st = l.closeDatabase(a)
	case "JetOpenTable":
		st = l.openTable(a, wide)
	case "JetCloseTable":
		st = l.closeTable(a)
	case "JetDupCursor":
		st = l.dupCursor(a)
	case "JetRegisterCallback":
		st = l.registerCallback(a)
	case "JetUnregisterCallback":
		st = l.unregisterCallback(a)
	case "JetDefragment", "JetDefragment2", "JetDefragment3":
		st = l.defragment(a, revision(name, "JetDefragment"), wide)
	case "JetBackupInstance":
		st = l.backup(ctx, a, wide)
	case "JetRestoreInstance":
		st = l.restore(ctx, a, wide)
	case "JetStopBackupInstance":
		st = l.stopBackup(a)
	default:
		return 0, errors.New("memory: unknown symbol " + symbol)
	}

	if a.err != nil {
		return 0, a.err
	}
	return st, nil
}

// text returns a string argument, reporting whether its encoding matches
// the variant.
func text(a *args, i int, wide bool) (string, bool) {
	s := a.str(i)
	return s.Value, a.err != nil || s.Wide == wide
}

func (l *Library) handle() uint64 {
	l.next++
	return l.next
}

func (l *Library) getVersion(a *args) jetruntime.Status {
	a.expect(2)
	out := a.out(1)
	set(out, uint64(l.version.Raw()))
	return 0
}

func (l *Library) createInstance(a *args, rev int, wide bool) jetruntime.Status {
	var display string
	ok := true
	if rev == 2 {
		a.expect(4)
		display, ok = text(a, 2, wide)
		a.word(3)
	} else {
		a.expect(2)
	}
	out := a.out(0)
	name, nameOK := text(a, 1, wide)
	if a.err != nil {
		return 0
	}
	if !ok || !nameOK {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, in := range l.instances {
		if in.name == name {
			return jetruntime.StatusInvalidParameter
		}
	}
	h := l.handle()
	l.instances[h] = &instance{
		name:     name,
		display:  display,
		attached: make(map[string]bool),
		params:   make(map[jetruntime.Param]uint64),
	}
	set(out, h)
	return 0
}

func (l *Library) init(a *args, rev int, wide bool) jetruntime.Status {
	switch rev {
	case 3:
		a.expect(3)
		if _, ok := text(a, 1, wide); !ok {
			return jetruntime.StatusInvalidParameter
		}
		a.word(2)
	case 2:
		a.expect(2)
		a.word(1)
	default:
		a.expect(1)
	}
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
	if in.initialized {
		return jetruntime.StatusAlreadyInitialized
	}
	in.initialized = true
	return 0
}

func (l *Library) term(a *args, rev int) jetruntime.Status {
	a.expect(rev)
	h := a.word(0)
	if rev == 2 {
		a.word(1)
	}
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.instances[h]; !ok {
		return jetruntime.StatusInvalidInstance
	}
	for id, s := range l.sessions {
		if s.instance == h {
			l.dropSession(id)
		}
	}
	delete(l.instances, h)
	return 0
}

func (l *Library) stopService(a *args, rev int) jetruntime.Status {
	a.expect(rev)
	h := a.word(0)
	var grbit uint64
	if rev == 2 {
		grbit = a.word(1)
	}
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.instances[h]
	if !ok {
		return jetruntime.StatusInvalidInstance
	}
	if !in.initialized {
		return jetruntime.StatusNotInitialized
	}
	if uint32(grbit)&jetruntime.BitStopServiceResume != 0 {
		if !in.stopped {
			return jetruntime.StatusInvalidParameter
		}
		in.stopped = false
		return 0
	}
	in.stopped = true
	return 0
}

func (l *Library) setParameter(a *args, wide bool) jetruntime.Status {
	a.expect(5)
	h := a.word(0)
	a.word(1)
	p := jetruntime.Param(a.word(2))
	v := a.word(3)
	_, ok := text(a, 4, wide)
	if a.err != nil {
		return 0
	}
	if !ok {
		return jetruntime.StatusInvalidParameter
	}
	if p == jetruntime.ParamDatabasePageSize && v > 8192 &&
		!capability.Detect(l.version).Has(capability.LargePages) {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h == 0 {
		l.globals[p] = v
		return 0
	}
	in, found := l.instances[h]
	if !found {
		return jetruntime.StatusInvalidInstance
	}
	in.params[p] = v
	return 0
}

func (l *Library) beginSession(a *args, wide bool) jetruntime.Status {
	a.expect(4)
	h := a.word(0)
	out := a.out(1)
	_, userOK := text(a, 2, wide)
	_, passOK := text(a, 3, wide)
	if a.err != nil {
		return 0
	}
	if !userOK || !passOK {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	in, ok := l.instances[h]
	if !ok {
		return jetruntime.StatusInvalidInstance
	}
	if !in.initialized {
		return jetruntime.StatusNotInitialized
	}
	if in.stopped {
		return jetruntime.StatusInstanceUnavailable
	}
	id := l.handle()
	l.sessions[id] = &session{instance: h}
	set(out, id)
	return 0
}

// dropSession removes a session and everything it opened. Caller holds l.mu.
func (l *Library) dropSession(id uint64) {
	for tid, t := range l.tables {
		if t.session == id {
			l.dropTable(tid)
		}
	}
	for did, d := range l.databases {
		if d.session == id {
			delete(l.databases, did)
		}
	}
	delete(l.sessions, id)
}

// dropTable removes a table and its callbacks. Caller holds l.mu.
func (l *Library) dropTable(id uint64) {
	for cid, r := range l.callbacks {
		if r.table == id {
			delete(l.callbacks, cid)
		}
	}
	delete(l.tables, id)
}

// sessionLocked returns a live session. Caller holds l.mu.
func (l *Library) sessionLocked(id uint64) (*session, jetruntime.Status) {
	s, ok := l.sessions[id]
	if !ok {
		return nil, jetruntime.StatusInvalidSessionID
	}
	return s, 0
}

func (l *Library) endSession(a *args) jetruntime.Status {
	a.expect(2)
	id := a.word(0)
	a.word(1)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, st := l.sessionLocked(id); st != 0 {
		return st
	}
	l.dropSession(id)
	return 0
}

func (l *Library) setSessionContext(a *args) jetruntime.Status {
	a.expect(2)
	id := a.word(0)
	c := a.word(1)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if c == 0 {
		return jetruntime.StatusInvalidParameter
	}
	s.context = c
	return 0
}

func (l *Library) resetSessionContext(a *args) jetruntime.Status {
	a.expect(1)
	id := a.word(0)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if s.context == 0 {
		return jetruntime.StatusSessionContextNotSet
	}
	s.context = 0
	return 0
}

func (l *Library) beginTransaction(a *args, rev int) jetruntime.Status {
	var grbit uint64
	switch rev {
	case 3:
		a.expect(3)
		a.word(1)
		grbit = a.word(2)
	case 2:
		a.expect(2)
		grbit = a.word(1)
	default:
		a.expect(1)
	}
	id := a.word(0)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if in := l.instances[s.instance]; in != nil && in.stopped {
		return jetruntime.StatusInstanceUnavailable
	}
	if s.depth >= 7 {
		return jetruntime.StatusTransTooDeep
	}
	if s.depth == 0 {
		s.readOnly = uint32(grbit)&jetruntime.BitTransactionReadOnly != 0
	}
	s.depth++
	return 0
}

func (l *Library) commitTransaction(a *args, rev int) jetruntime.Status {
	var outTime, outNumber *uint64
	if rev == 2 {
		a.expect(5)
		a.word(2)
		outTime = a.out(3)
		outNumber = a.out(4)
	} else {
		a.expect(2)
	}
	id := a.word(0)
	a.word(1)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if s.depth == 0 {
		return jetruntime.StatusNotInTransaction
	}
	s.depth--
	if rev == 2 && capability.Detect(l.version).Has(capability.CommitID) {
		l.commitSeq++
		set(outTime, uint64(time.Now().UnixNano()))
		set(outNumber, l.commitSeq)
	}
	return 0
}

func (l *Library) rollback(a *args) jetruntime.Status {
	a.expect(2)
	id := a.word(0)
	grbit := uint32(a.word(1))
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if s.depth == 0 {
		return jetruntime.StatusNotInTransaction
	}
	if grbit&jetruntime.BitRollbackAll != 0 {
		s.depth = 0
	} else {
		s.depth--
	}
	return 0
}

func (l *Library) attachDatabase(a *args, rev int, wide bool) jetruntime.Status {
	if rev == 2 {
		a.expect(4)
		a.word(2)
		a.word(3)
	} else {
		a.expect(3)
		a.word(2)
	}
	id := a.word(0)
	path, ok := text(a, 1, wide)
	if a.err != nil {
		return 0
	}
	if !ok || path == "" {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	in := l.instances[s.instance]
	if in.attached[path] {
		return jetruntime.WarningDatabaseAttached
	}
	in.attached[path] = true
	return 0
}

func (l *Library) detachDatabase(a *args, rev int, wide bool) jetruntime.Status {
	if rev == 2 {
		a.expect(3)
		a.word(2)
	} else {
		a.expect(2)
	}
	id := a.word(0)
	path, ok := text(a, 1, wide)
	if a.err != nil {
		return 0
	}
	if !ok {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	in := l.instances[s.instance]
	if path == "" {
		in.attached = make(map[string]bool)
		return 0
	}
	if !in.attached[path] {
		return jetruntime.StatusDatabaseNotFound
	}
	delete(in.attached, path)
	return 0
}

func (l *Library) openDatabase(a *args, wide bool) jetruntime.Status {
	a.expect(5)
	id := a.word(0)
	path, ok := text(a, 1, wide)
	_, connectOK := text(a, 2, wide)
	out := a.out(3)
	a.word(4)
	if a.err != nil {
		return 0
	}
	if !ok || !connectOK {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, st := l.sessionLocked(id)
	if st != 0 {
		return st
	}
	if !l.instances[s.instance].attached[path] {
		return jetruntime.StatusDatabaseNotFound
	}
	dbid := l.handle()
	l.databases[dbid] = &database{path: path, session: id}
	set(out, dbid)
	return 0
}

func (l *Library) closeDatabase(a *args) jetruntime.Status {
	a.expect(3)
	id := a.word(0)
	dbid := a.word(1)
	a.word(2)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, st := l.sessionLocked(id); st != 0 {
		return st
	}
	d, ok := l.databases[dbid]
	if !ok || d.session != id {
		return jetruntime.StatusInvalidDatabaseID
	}
	delete(l.databases, dbid)
	return 0
}

func (l *Library) openTable(a *args, wide bool) jetruntime.Status {
	a.expect(5)
	id := a.word(0)
	dbid := a.word(1)
	name, ok := text(a, 2, wide)
	out := a.out(3)
	a.word(4)
	if a.err != nil {
		return 0
	}
	if !ok {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, st := l.sessionLocked(id); st != 0 {
		return st
	}
	d, found := l.databases[dbid]
	if !found || d.session != id {
		return jetruntime.StatusInvalidDatabaseID
	}
	if name == "" {
		return jetruntime.StatusObjectNotFound
	}
	tid := l.handle()
	l.tables[tid] = &table{name: name, session: id, database: dbid}
	set(out, tid)
	return 0
}

// tableLocked returns a table owned by session id. Caller holds l.mu.
func (l *Library) tableLocked(id, tid uint64) (*table, jetruntime.Status) {
	if _, st := l.sessionLocked(id); st != 0 {
		return nil, st
	}
	t, ok := l.tables[tid]
	if !ok || t.session != id {
		return nil, jetruntime.StatusInvalidTableID
	}
	return t, 0
}

func (l *Library) closeTable(a *args) jetruntime.Status {
	a.expect(2)
	id := a.word(0)
	tid := a.word(1)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, st := l.tableLocked(id, tid); st != 0 {
		return st
	}
	l.dropTable(tid)
	return 0
}

func (l *Library) dupCursor(a *args) jetruntime.Status {
	a.expect(4)
	id := a.word(0)
	tid := a.word(1)
	out := a.out(2)
	a.word(3)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	t, st := l.tableLocked(id, tid)
	if st != 0 {
		return st
	}
	dup := l.handle()
	l.tables[dup] = &table{name: t.name, session: id, database: t.database}
	set(out, dup)
	return 0
}

func (l *Library) registerCallback(a *args) jetruntime.Status {
	a.expect(6)
	id := a.word(0)
	tid := a.word(1)
	cbtyp := uint32(a.word(2))
	cb := a.callback(3)
	c := a.word(4)
	out := a.out(5)
	if a.err != nil {
		return 0
	}
	if cb.Handle == 0 || cbtyp == 0 {
		return jetruntime.StatusInvalidParameter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, st := l.tableLocked(id, tid); st != 0 {
		return st
	}
	rid := l.handle()
	l.callbacks[rid] = &registration{cb: cb, context: c, table: tid, cbtyp: cbtyp}
	set(out, rid)
	return 0
}

func (l *Library) unregisterCallback(a *args) jetruntime.Status {
	a.expect(4)
	id := a.word(0)
	tid := a.word(1)
	a.word(2)
	rid := a.word(3)
	if a.err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, st := l.tableLocked(id, tid); st != 0 {
		return st
	}
	r, ok := l.callbacks[rid]
	if !ok || r.table != tid {
		return jetruntime.StatusCallbackNotRegistered
	}
	delete(l.callbacks, rid)
	return 0
}
