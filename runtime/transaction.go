package runtime

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/resource"
)

// BeginOptions configures a save point. ReadOnly needs Revision2 and a
// non-zero TransactionID needs TransactionIDs.
type BeginOptions struct {
	TransactionID int64
	ReadOnly      bool
}

func (o BeginOptions) grbit() uint32 {
	if o.ReadOnly {
		return jetruntime.BitTransactionReadOnly
	}
	return 0
}

// CommitOptions configures Commit. DurableDelay needs DurableCommit and
// WantCommitID needs CommitID; neither is silently dropped on older builds.
type CommitOptions struct {
	DurableDelay  time.Duration
	Lazy          bool
	WaitLastLevel bool
	WantCommitID  bool
}

func (o CommitOptions) grbit() uint32 {
	var g uint32
	if o.Lazy {
		g |= jetruntime.BitCommitLazyFlush
	}
	if o.WaitLastLevel {
		g |= jetruntime.BitWaitLastLevelCommit
	}
	return g
}

// CommitID identifies a durable commit.
type CommitID struct {
	Time   time.Time
	Number uint64
}

// IsZero reports whether no commit id was returned.
func (c CommitID) IsZero() bool {
	return c.Number == 0 && c.Time.IsZero()
}

// Transaction is a scoped chain of save points on one session. It owns
// every save point it opened; Close rolls back each one still open, so a
// deferred Close after a successful Commit does nothing.
//
//	tx, _, err := sess.BeginTransaction(ctx, runtime.BeginOptions{})
//	if err != nil {
//		return err
//	}
//	defer tx.Close(ctx)
//	...
//	_, _, err = tx.Commit(ctx, runtime.CommitOptions{})
type Transaction struct {
	s     *Session
	opts  BeginOptions
	id    resource.ID
	owned int
}

// BeginTransaction opens the session's transaction with one save point.
// A session has at most one transaction object; nest with Transaction.Begin.
func (s *Session) BeginTransaction(ctx context.Context, opts BeginOptions) (*Transaction, jetruntime.Warning, error) {
	if err := s.rt.check(dispatch.OpBeginTransaction, s.id); err != nil {
		return nil, 0, err
	}
	if err := s.checkBegin(opts); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return nil, 0, errors.InvalidOperation(errors.PhaseTransaction, string(dispatch.OpBeginTransaction),
			"session already has an open transaction")
	}

	tx := &Transaction{s: s, opts: opts}
	warn, err := tx.begin(ctx)
	if err != nil {
		return nil, 0, err
	}

	id, err := s.rt.tracker.Register(s.id, resource.KindTransaction, s.thread, "", tx.rollbackOwned)
	if err != nil {
		_ = tx.rollbackLocked(ctx)
		return nil, 0, err
	}
	tx.id = id
	s.tx = tx
	return tx, warn, nil
}

func (s *Session) checkBegin(opts BeginOptions) error {
	if opts.TransactionID != 0 {
		if err := s.rt.RequireRevision(dispatch.OpBeginTransaction, 3, capability.TransactionIDs); err != nil {
			return err
		}
	}
	if opts.ReadOnly {
		if err := s.rt.RequireRevision(dispatch.OpBeginTransaction, 2, capability.Revision2); err != nil {
			return err
		}
	}
	return nil
}

// begin opens one save point. Caller holds s.mu.
func (tx *Transaction) begin(ctx context.Context) (jetruntime.Warning, error) {
	s := tx.s
	if err := s.txn.CanBegin(); err != nil {
		return 0, err
	}
	warn, err := s.rt.binding.Invoke(ctx, dispatch.OpBeginTransaction, func(v dispatch.Variant) []any {
		switch v.Revision {
		case 3:
			return []any{s.handle, tx.opts.TransactionID, tx.opts.grbit()}
		case 2:
			return []any{s.handle, tx.opts.grbit()}
		default:
			return []any{s.handle}
		}
	})
	if err != nil {
		return 0, err
	}
	_, _ = s.txn.Begin()
	tx.owned++
	return warn, nil
}

// Begin opens a nested save point.
func (tx *Transaction) Begin(ctx context.Context) (jetruntime.Warning, error) {
	s := tx.s
	if err := s.rt.check(dispatch.OpBeginTransaction, s.id); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.owned == 0 {
		return 0, errors.InvalidOperation(errors.PhaseTransaction, string(dispatch.OpBeginTransaction), "transaction is finished")
	}
	return tx.begin(ctx)
}

// Depth returns the number of save points this transaction still owns.
func (tx *Transaction) Depth() int {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.owned
}

// Commit closes the innermost save point, keeping its changes. The commit
// id is returned only when opts.WantCommitID is set.
func (tx *Transaction) Commit(ctx context.Context, opts CommitOptions) (CommitID, jetruntime.Warning, error) {
	s := tx.s
	op := string(dispatch.OpCommitTransaction)
	if opts.WantCommitID {
		if err := s.rt.RequireRevision(dispatch.OpCommitTransaction, 2, capability.CommitID); err != nil {
			return CommitID{}, 0, err
		}
	}
	if opts.DurableDelay > 0 {
		if err := s.rt.RequireRevision(dispatch.OpCommitTransaction, 2, capability.DurableCommit); err != nil {
			return CommitID{}, 0, err
		}
	}
	if err := s.rt.check(dispatch.OpCommitTransaction, s.id); err != nil {
		return CommitID{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.checkEnd(op); err != nil {
		return CommitID{}, 0, err
	}

	var when, number uint64
	warn, err := s.rt.binding.Invoke(ctx, dispatch.OpCommitTransaction, func(v dispatch.Variant) []any {
		if v.Revision >= 2 {
			return []any{s.handle, opts.grbit(), uint32(opts.DurableDelay / time.Millisecond), &when, &number}
		}
		return []any{s.handle, opts.grbit()}
	})
	if err != nil {
		return CommitID{}, 0, err
	}
	tx.pop()

	var id CommitID
	if opts.WantCommitID {
		id = CommitID{Time: time.Unix(0, int64(when)), Number: number}
	}
	return id, warn, nil
}

// Rollback closes the innermost save point, discarding its changes.
func (tx *Transaction) Rollback(ctx context.Context) (jetruntime.Warning, error) {
	s := tx.s
	op := string(dispatch.OpRollback)
	if err := s.rt.check(dispatch.OpRollback, s.id); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tx.checkEnd(op); err != nil {
		return 0, err
	}

	warn, err := s.rt.binding.Call(ctx, dispatch.OpRollback, s.handle, uint32(0))
	if err != nil {
		return 0, err
	}
	tx.pop()
	return warn, nil
}

// checkEnd fails when the transaction owns no save point. Caller holds s.mu.
func (tx *Transaction) checkEnd(op string) error {
	if tx.owned == 0 {
		return errors.InvalidOperation(errors.PhaseTransaction, op, "not in a transaction")
	}
	return tx.s.txn.CanEnd(op)
}

// pop records one closed save point and retires the transaction when it
// owns none. Caller holds s.mu.
func (tx *Transaction) pop() {
	s := tx.s
	_, _ = s.txn.Commit()
	tx.owned--
	if tx.owned == 0 {
		s.tx = nil
		if err := s.rt.tracker.Unregister(s.id, tx.id, s.thread); err != nil {
			s.rt.log.Warn("transaction still tracked after its last save point closed",
				zap.Uint64("session", s.handle), zap.Error(err))
		}
	}
}

// Close rolls back every save point the transaction still owns, one
// Rollback per level. It is a no-op once the transaction is finished.
func (tx *Transaction) Close(ctx context.Context) error {
	s := tx.s
	s.mu.Lock()
	owned := tx.owned
	s.mu.Unlock()
	if owned == 0 {
		return nil
	}
	if err := s.rt.check(dispatch.OpRollback, tx.id); err != nil {
		return err
	}
	return s.rt.tracker.CloseAll(ctx, tx.id)
}

// rollbackOwned is the transaction's closer in the resource tracker.
func (tx *Transaction) rollbackOwned(ctx context.Context) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.rollbackLocked(ctx)
}

// rollbackLocked unwinds every owned save point. Caller holds s.mu.
func (tx *Transaction) rollbackLocked(ctx context.Context) error {
	s := tx.s
	if tx.owned > 0 {
		s.rt.log.Warn("rolling back abandoned transaction",
			zap.Uint64("session", s.handle),
			zap.Int("save_points", tx.owned))
	}

	var result *multierror.Error
	for tx.owned > 0 {
		if _, err := s.rt.binding.Call(ctx, dispatch.OpRollback, s.handle, uint32(0)); err != nil {
			result = multierror.Append(result, err)
		}
		_, _ = s.txn.Rollback()
		tx.owned--
	}
	if s.tx == tx {
		s.tx = nil
	}
	return result.ErrorOrNil()
}
