package jetruntime

// Option bits passed in the grbit argument of engine calls.
const (
	BitTermAbrupt     uint32 = 0x1
	BitTermComplete   uint32 = 0x2
	BitTermStopBackup uint32 = 0x4

	BitStopServiceAll                 uint32 = 0x0
	BitStopServiceBackgroundUserTasks uint32 = 0x2
	BitStopServiceQuiesceCaches       uint32 = 0x4
	BitStopServiceResume              uint32 = 0x80000000

	BitTransactionReadOnly uint32 = 0x1

	BitCommitLazyFlush      uint32 = 0x1
	BitWaitLastLevelCommit  uint32 = 0x2
	BitWaitAllLevelCommit   uint32 = 0x8
	BitRollbackAll          uint32 = 0x1
	BitDbReadOnly           uint32 = 0x1
	BitTableReadOnly        uint32 = 0x4
	BitDefragmentBatchStart uint32 = 0x1
	BitDefragmentBatchStop  uint32 = 0x2
	BitBackupIncremental    uint32 = 0x1
	BitBackupAtomic         uint32 = 0x4
)

// Table callback types (cbtyp).
const (
	CbtypBeforeInsert          uint32 = 0x2
	CbtypAfterInsert           uint32 = 0x4
	CbtypBeforeReplace         uint32 = 0x8
	CbtypAfterReplace          uint32 = 0x10
	CbtypBeforeDelete          uint32 = 0x20
	CbtypAfterDelete           uint32 = 0x40
	CbtypOnlineDefragCompleted uint32 = 0x100
)

// Param identifies a system parameter.
type Param uint32

const (
	ParamSystemPath       Param = 0
	ParamTempPath         Param = 1
	ParamLogFilePath      Param = 2
	ParamBaseName         Param = 3
	ParamMaxSessions      Param = 5
	ParamMaxOpenTables    Param = 6
	ParamMaxCursors       Param = 8
	ParamCircularLog      Param = 17
	ParamCacheSizeMax     Param = 23
	ParamDatabasePageSize Param = 64
)

// Status callback process and type codes (snp, snt).
const (
	SnpRestore uint32 = 8
	SnpBackup  uint32 = 9

	SntBegin    uint32 = 5
	SntProgress uint32 = 0
	SntComplete uint32 = 6
)

// Uint64 converts an integer or bool call argument to its raw word.
// Signed values are sign-extended.
func Uint64(arg any) (uint64, bool) {
	switch v := arg.(type) {
	case int:
		return uint64(int64(v)), true
	case int8:
		return uint64(int64(v)), true
	case int16:
		return uint64(int64(v)), true
	case int32:
		return uint64(int64(v)), true
	case int64:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case uintptr:
		return uint64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
