package dispatch

import (
	"github.com/wippyai/jet-runtime/capability"
)

// Operation names a logical engine call independent of its variants.
type Operation string

const (
	OpGetVersion          Operation = "GetVersion"
	OpCreateInstance      Operation = "CreateInstance"
	OpInit                Operation = "Init"
	OpTerm                Operation = "Term"
	OpStopService         Operation = "StopService"
	OpSetSystemParameter  Operation = "SetSystemParameter"
	OpBeginSession        Operation = "BeginSession"
	OpEndSession          Operation = "EndSession"
	OpSetSessionContext   Operation = "SetSessionContext"
	OpResetSessionContext Operation = "ResetSessionContext"
	OpBeginTransaction    Operation = "BeginTransaction"
	OpCommitTransaction   Operation = "CommitTransaction"
	OpRollback            Operation = "Rollback"
	OpAttachDatabase      Operation = "AttachDatabase"
	OpDetachDatabase      Operation = "DetachDatabase"
	OpOpenDatabase        Operation = "OpenDatabase"
	OpCloseDatabase       Operation = "CloseDatabase"
	OpOpenTable           Operation = "OpenTable"
	OpCloseTable          Operation = "CloseTable"
	OpDupCursor           Operation = "DupCursor"
	OpRegisterCallback    Operation = "RegisterCallback"
	OpUnregisterCallback  Operation = "UnregisterCallback"
	OpDefragment          Operation = "Defragment"
	OpBackup              Operation = "Backup"
	OpRestore             Operation = "Restore"
	OpStopBackup          Operation = "StopBackup"
)

// Variant is one concrete exported symbol implementing an operation.
type Variant struct {
	Symbol   string
	Requires []capability.Flag
	Revision int
	Wide     bool
}

// Supported reports whether caps satisfies every requirement of v.
func (v Variant) Supported(caps capability.Set) bool {
	return caps.HasAll(v.Requires...)
}

// Strategy is the ranked variant list of one operation, newest first.
type Strategy struct {
	Op       Operation
	Variants []Variant
}

func variant(symbol string, revision int, wide bool, requires ...capability.Flag) Variant {
	return Variant{Symbol: symbol, Revision: revision, Wide: wide, Requires: requires}
}

// Catalog lists every operation the runtime knows how to call.
var Catalog = []Strategy{
	{OpGetVersion, []Variant{
		variant("JetGetVersion", 1, false),
	}},
	{OpCreateInstance, []Variant{
		variant("JetCreateInstance2W", 2, true, capability.Revision2, capability.UnicodePaths),
		variant("JetCreateInstance2", 2, false, capability.Revision2),
		variant("JetCreateInstanceW", 1, true, capability.UnicodePaths),
		variant("JetCreateInstance", 1, false),
	}},
	{OpInit, []Variant{
		variant("JetInit3W", 3, true, capability.Revision3, capability.UnicodePaths),
		variant("JetInit3", 3, false, capability.Revision3),
		variant("JetInit2", 2, false, capability.Revision2),
		variant("JetInit", 1, false),
	}},
	{OpTerm, []Variant{
		variant("JetTerm2", 2, false, capability.Revision2),
		variant("JetTerm", 1, false),
	}},
	{OpStopService, []Variant{
		variant("JetStopServiceInstance2", 2, false, capability.StopResume),
		variant("JetStopServiceInstance", 1, false),
	}},
	{OpSetSystemParameter, []Variant{
		variant("JetSetSystemParameterW", 1, true, capability.UnicodePaths),
		variant("JetSetSystemParameter", 1, false),
	}},
	{OpBeginSession, []Variant{
		variant("JetBeginSessionW", 1, true, capability.UnicodePaths),
		variant("JetBeginSession", 1, false),
	}},
	{OpEndSession, []Variant{
		variant("JetEndSession", 1, false),
	}},
	{OpSetSessionContext, []Variant{
		variant("JetSetSessionContext", 1, false, capability.SessionContext),
	}},
	{OpResetSessionContext, []Variant{
		variant("JetResetSessionContext", 1, false, capability.SessionContext),
	}},
	{OpBeginTransaction, []Variant{
		variant("JetBeginTransaction3", 3, false, capability.TransactionIDs),
		variant("JetBeginTransaction2", 2, false, capability.Revision2),
		variant("JetBeginTransaction", 1, false),
	}},
	{OpCommitTransaction, []Variant{
		variant("JetCommitTransaction2", 2, false, capability.DurableCommit),
		variant("JetCommitTransaction", 1, false),
	}},
	{OpRollback, []Variant{
		variant("JetRollback", 1, false),
	}},
	{OpAttachDatabase, []Variant{
		variant("JetAttachDatabase2W", 2, true, capability.Revision2, capability.UnicodePaths),
		variant("JetAttachDatabase2", 2, false, capability.Revision2),
		variant("JetAttachDatabaseW", 1, true, capability.UnicodePaths),
		variant("JetAttachDatabase", 1, false),
	}},
	{OpDetachDatabase, []Variant{
		variant("JetDetachDatabase2W", 2, true, capability.Revision2, capability.UnicodePaths),
		variant("JetDetachDatabase2", 2, false, capability.Revision2),
		variant("JetDetachDatabaseW", 1, true, capability.UnicodePaths),
		variant("JetDetachDatabase", 1, false),
	}},
	{OpOpenDatabase, []Variant{
		variant("JetOpenDatabaseW", 1, true, capability.UnicodePaths),
		variant("JetOpenDatabase", 1, false),
	}},
	{OpCloseDatabase, []Variant{
		variant("JetCloseDatabase", 1, false),
	}},
	{OpOpenTable, []Variant{
		variant("JetOpenTableW", 1, true, capability.UnicodePaths),
		variant("JetOpenTable", 1, false),
	}},
	{OpCloseTable, []Variant{
		variant("JetCloseTable", 1, false),
	}},
	{OpDupCursor, []Variant{
		variant("JetDupCursor", 1, false),
	}},
	{OpRegisterCallback, []Variant{
		variant("JetRegisterCallback", 1, false),
	}},
	{OpUnregisterCallback, []Variant{
		variant("JetUnregisterCallback", 1, false),
	}},
	{OpDefragment, []Variant{
		variant("JetDefragment3W", 3, true, capability.Revision3, capability.UnicodePaths),
		variant("JetDefragment3", 3, false, capability.Revision3),
		variant("JetDefragment2W", 2, true, capability.DefragCallback, capability.UnicodePaths),
		variant("JetDefragment2", 2, false, capability.DefragCallback),
		variant("JetDefragment", 1, false),
	}},
	{OpBackup, []Variant{
		variant("JetBackupInstanceW", 1, true, capability.UnicodePaths),
		variant("JetBackupInstance", 1, false),
	}},
	{OpRestore, []Variant{
		variant("JetRestoreInstanceW", 1, true, capability.UnicodePaths),
		variant("JetRestoreInstance", 1, false),
	}},
	{OpStopBackup, []Variant{
		variant("JetStopBackupInstance", 1, false),
	}},
}

var byOp = func() map[Operation]Strategy {
	m := make(map[Operation]Strategy, len(Catalog))
	for _, s := range Catalog {
		m[s.Op] = s
	}
	return m
}()

// Lookup returns the strategy for op.
func Lookup(op Operation) (Strategy, bool) {
	s, ok := byOp[op]
	return s, ok
}

// Symbols lists every symbol in the catalog.
func Symbols() []string {
	var out []string
	for _, s := range Catalog {
		for _, v := range s.Variants {
			out = append(out, v.Symbol)
		}
	}
	return out
}

// SymbolsFor lists the symbols a build with caps is expected to export.
func SymbolsFor(caps capability.Set) []string {
	var out []string
	for _, s := range Catalog {
		for _, v := range s.Variants {
			if v.Supported(caps) {
				out = append(out, v.Symbol)
			}
		}
	}
	return out
}
