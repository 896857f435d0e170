package memory

import (
	"context"
	"strings"
	"sync"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
)

// Option configures a simulated build.
type Option func(*Library)

// WithVersion sets the version the build reports. The export set follows
// the version unless WithSymbols or WithoutSymbols adjust it.
func WithVersion(v capability.Version) Option {
	return func(l *Library) {
		l.version = v
	}
}

// WithSymbols replaces the export set.
func WithSymbols(symbols ...string) Option {
	return func(l *Library) {
		l.explicit = symbols
	}
}

// WithoutSymbols removes symbols from the export set.
func WithoutSymbols(symbols ...string) Option {
	return func(l *Library) {
		l.hidden = append(l.hidden, symbols...)
	}
}

// WithStatus makes every call to symbol return status without any effect.
func WithStatus(symbol string, status jetruntime.Status) Option {
	return func(l *Library) {
		l.forced[symbol] = status
	}
}

// WithDefragGate holds asynchronous defragmentation until gate yields or
// is closed. Without a gate defragmentation completes immediately.
func WithDefragGate(gate <-chan struct{}) Option {
	return func(l *Library) {
		l.defragGate = gate
	}
}

// WithName sets the name reported by Name.
func WithName(name string) Option {
	return func(l *Library) {
		l.name = name
	}
}

// Library is an in-process engine build that keeps only the bookkeeping
// needed to answer calls: handles, save-point depth, attachments and
// registered callbacks. It is safe for concurrent use.
type Library struct {
	dispatcher jetruntime.Dispatcher
	defragGate <-chan struct{}
	exports    map[string]bool
	forced     map[string]jetruntime.Status
	instances  map[uint64]*instance
	sessions   map[uint64]*session
	databases  map[uint64]*database
	tables     map[uint64]*table
	callbacks  map[uint64]*registration
	calls      map[string]int
	globals    map[jetruntime.Param]uint64
	running    map[string]*defrag
	name       string
	explicit   []string
	hidden     []string
	history    []string
	defrags    sync.WaitGroup
	version    capability.Version
	next       uint64
	commitSeq  uint64
	lastPasses uint64
	mu         sync.Mutex
	closed     bool
}

type instance struct {
	attached     map[string]bool
	name         string
	display      string
	params       map[jetruntime.Param]uint64
	initialized  bool
	stopped      bool
	stopBackup   bool
	backupActive bool
}

type session struct {
	context  uint64
	instance uint64
	depth    int
	readOnly bool
}

type database struct {
	path    string
	session uint64
}

type table struct {
	name     string
	session  uint64
	database uint64
}

type registration struct {
	cb      jetruntime.Callback
	context uint64
	table   uint64
	cbtyp   uint32
}

type defrag struct {
	cancel chan struct{}
}

// New creates a simulated build. The default version is 10.0 with every
// entry point exported.
func New(opts ...Option) *Library {
	l := &Library{
		version:   capability.Release100,
		forced:    make(map[string]jetruntime.Status),
		instances: make(map[uint64]*instance),
		sessions:  make(map[uint64]*session),
		databases: make(map[uint64]*database),
		tables:    make(map[uint64]*table),
		callbacks: make(map[uint64]*registration),
		calls:     make(map[string]int),
		globals:   make(map[jetruntime.Param]uint64),
		running:   make(map[string]*defrag),
		name:      "memory",
	}
	for _, opt := range opts {
		opt(l)
	}

	symbols := l.explicit
	if symbols == nil {
		symbols = dispatch.SymbolsFor(capability.Detect(l.version))
	}
	l.exports = make(map[string]bool, len(symbols))
	for _, s := range symbols {
		l.exports[s] = true
	}
	for _, s := range l.hidden {
		delete(l.exports, s)
	}
	return l
}

// Name implements jetruntime.Library.
func (l *Library) Name() string {
	return l.name
}

// Version returns the version the build reports.
func (l *Library) Version() capability.Version {
	return l.version
}

// Lookup implements jetruntime.Library.
func (l *Library) Lookup(symbol string) (jetruntime.Proc, bool) {
	if !l.exports[symbol] {
		return nil, false
	}
	return &proc{lib: l, symbol: symbol}, true
}

// SetDispatcher implements jetruntime.Library.
func (l *Library) SetDispatcher(d jetruntime.Dispatcher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatcher = d
}

// Close implements jetruntime.Library. Background defragmentation is
// cancelled and waited for.
func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	l.closed = true
	for path, run := range l.running {
		close(run.cancel)
		delete(l.running, path)
	}
	l.mu.Unlock()
	l.defrags.Wait()
	return nil
}

// Calls returns the symbols called so far, in order.
func (l *Library) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.history...)
}

// CallCount returns how many times symbol was called.
func (l *Library) CallCount(symbol string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[symbol]
}

// Depth returns the save-point depth of a session handle.
func (l *Library) Depth(sesid uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[sesid]; ok {
		return s.depth
	}
	return -1
}

// Open reports how many sessions, tables and callback registrations the
// build currently holds.
func (l *Library) Open() (sessions, tables, callbacks int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions), len(l.tables), len(l.callbacks)
}

// LastDefragPasses returns the pass count of the most recent
// defragmentation start.
func (l *Library) LastDefragPasses() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastPasses
}

// Defragmenting reports whether defragmentation of path is running.
func (l *Library) Defragmenting(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.running[path]
	return ok
}

// Param returns the stored value of a system parameter on an instance.
func (l *Library) Param(inst uint64, p jetruntime.Param) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inst == 0 {
		v, ok := l.globals[p]
		return v, ok
	}
	in, ok := l.instances[inst]
	if !ok {
		return 0, false
	}
	v, ok := in.params[p]
	return v, ok
}

// Fire raises a table event the way the engine would: every callback
// registered on tableID for cbtyp runs with the engine's callback
// arguments. It returns each callback's status.
func (l *Library) Fire(ctx context.Context, tableID uint64, cbtyp uint32) []jetruntime.Status {
	l.mu.Lock()
	d := l.dispatcher
	t, ok := l.tables[tableID]
	var targets []*registration
	if ok {
		for _, r := range l.callbacks {
			if r.table == tableID && r.cbtyp&cbtyp != 0 {
				targets = append(targets, r)
			}
		}
	}
	l.mu.Unlock()

	if !ok || d == nil {
		return nil
	}

	out := make([]jetruntime.Status, 0, len(targets))
	for _, r := range targets {
		out = append(out, d.Dispatch(ctx, r.cb.Handle,
			t.session, t.database, tableID, uint64(cbtyp), 0, 0, r.context))
	}
	return out
}

type proc struct {
	lib    *Library
	symbol string
}

func (p *proc) Symbol() string {
	return p.symbol
}

func (p *proc) Call(ctx context.Context, list ...any) (jetruntime.Status, error) {
	return p.lib.call(ctx, p.symbol, list)
}

// base strips the wide suffix so both encodings share one handler.
func base(symbol string) (string, bool) {
	if strings.HasSuffix(symbol, "W") {
		return strings.TrimSuffix(symbol, "W"), true
	}
	return symbol, false
}
