package runtime

import (
	"context"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/resource"
)

// AttachOptions configures AttachDatabase. MaxPages needs Revision2.
type AttachOptions struct {
	MaxPages uint32
	ReadOnly bool
}

// AttachDatabase attaches a database file to the session's instance.
// Attaching a file twice succeeds with WarningDatabaseAttached.
func (s *Session) AttachDatabase(ctx context.Context, path string, opts AttachOptions) (jetruntime.Warning, error) {
	if err := s.rt.check(dispatch.OpAttachDatabase, s.id); err != nil {
		return 0, err
	}
	if opts.MaxPages != 0 {
		if err := s.rt.RequireRevision(dispatch.OpAttachDatabase, 2, capability.Revision2); err != nil {
			return 0, err
		}
	}

	var grbit uint32
	if opts.ReadOnly {
		grbit = jetruntime.BitDbReadOnly
	}
	return s.rt.binding.Invoke(ctx, dispatch.OpAttachDatabase, func(v dispatch.Variant) []any {
		if v.Revision >= 2 {
			return []any{s.handle, str(v, path), opts.MaxPages, grbit}
		}
		return []any{s.handle, str(v, path), grbit}
	})
}

// DetachDatabase detaches a database file. An empty path detaches all.
func (s *Session) DetachDatabase(ctx context.Context, path string) (jetruntime.Warning, error) {
	if err := s.rt.check(dispatch.OpDetachDatabase, s.id); err != nil {
		return 0, err
	}
	return s.rt.binding.Invoke(ctx, dispatch.OpDetachDatabase, func(v dispatch.Variant) []any {
		if v.Revision >= 2 {
			return []any{s.handle, str(v, path), uint32(0)}
		}
		return []any{s.handle, str(v, path)}
	})
}

// Database is an open database of a session.
type Database struct {
	s      *Session
	path   string
	handle uint64
	id     resource.ID
}

// OpenDatabase opens an attached database.
func (s *Session) OpenDatabase(ctx context.Context, path string, readOnly bool) (*Database, jetruntime.Warning, error) {
	if err := s.rt.check(dispatch.OpOpenDatabase, s.id); err != nil {
		return nil, 0, err
	}

	var grbit uint32
	if readOnly {
		grbit = jetruntime.BitDbReadOnly
	}
	var handle uint64
	warn, err := s.rt.binding.Invoke(ctx, dispatch.OpOpenDatabase, func(v dispatch.Variant) []any {
		return []any{s.handle, str(v, path), str(v, ""), &handle, grbit}
	})
	if err != nil {
		return nil, 0, err
	}

	db := &Database{s: s, path: path, handle: handle}
	id, err := s.rt.tracker.Register(s.id, resource.KindDatabase, s.owner(), path, db.close)
	if err != nil {
		_ = db.close(ctx)
		return nil, 0, err
	}
	db.id = id
	return db, warn, nil
}

// Path returns the database file path.
func (db *Database) Path() string { return db.path }

// Handle returns the engine's database id.
func (db *Database) Handle() uint64 { return db.handle }

// Close closes every cursor opened on the database, then the database.
func (db *Database) Close(ctx context.Context) error {
	if err := db.s.rt.check(dispatch.OpCloseDatabase, db.id); err != nil {
		return err
	}
	return db.s.rt.tracker.CloseAll(ctx, db.id)
}

func (db *Database) close(ctx context.Context) error {
	_, err := db.s.rt.binding.Call(ctx, dispatch.OpCloseDatabase, db.s.handle, db.handle, uint32(0))
	return err
}

// Cursor is an open table of a database.
type Cursor struct {
	db     *Database
	name   string
	handle uint64
	id     resource.ID
}

// OpenTable opens a cursor on a table.
func (db *Database) OpenTable(ctx context.Context, name string, readOnly bool) (*Cursor, jetruntime.Warning, error) {
	s := db.s
	if err := s.rt.check(dispatch.OpOpenTable, db.id); err != nil {
		return nil, 0, err
	}

	var grbit uint32
	if readOnly {
		grbit = jetruntime.BitTableReadOnly
	}
	var handle uint64
	warn, err := s.rt.binding.Invoke(ctx, dispatch.OpOpenTable, func(v dispatch.Variant) []any {
		return []any{s.handle, db.handle, str(v, name), &handle, grbit}
	})
	if err != nil {
		return nil, 0, err
	}
	c, err := db.track(ctx, name, handle)
	return c, warn, err
}

func (db *Database) track(ctx context.Context, name string, handle uint64) (*Cursor, error) {
	c := &Cursor{db: db, name: name, handle: handle}
	id, err := db.s.rt.tracker.Register(db.id, resource.KindCursor, db.s.owner(), name, c.close)
	if err != nil {
		_ = c.close(ctx)
		return nil, err
	}
	c.id = id
	return c, nil
}

// Name returns the table name.
func (c *Cursor) Name() string { return c.name }

// Handle returns the engine's table id.
func (c *Cursor) Handle() uint64 { return c.handle }

// Dup opens an independent cursor on the same table.
func (c *Cursor) Dup(ctx context.Context) (*Cursor, jetruntime.Warning, error) {
	s := c.db.s
	if err := s.rt.check(dispatch.OpDupCursor, c.id); err != nil {
		return nil, 0, err
	}
	var handle uint64
	warn, err := s.rt.binding.Call(ctx, dispatch.OpDupCursor, s.handle, c.handle, &handle, uint32(0))
	if err != nil {
		return nil, 0, err
	}
	dup, err := c.db.track(ctx, c.name, handle)
	return dup, warn, err
}

// Close unregisters the cursor's callbacks and closes it.
func (c *Cursor) Close(ctx context.Context) error {
	if err := c.db.s.rt.check(dispatch.OpCloseTable, c.id); err != nil {
		return err
	}
	return c.db.s.rt.tracker.CloseAll(ctx, c.id)
}

func (c *Cursor) close(ctx context.Context) error {
	s := c.db.s
	_, err := s.rt.binding.Call(ctx, dispatch.OpCloseTable, s.handle, c.handle)
	s.rt.guard.ReleaseOwner(uint64(c.id))
	return err
}
