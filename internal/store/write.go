package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/plan"
)

// ObjectRecord is one stored object.
type ObjectRecord struct {
	Key        plan.Key
	Properties ir.Object
}

// LinkRecord is one stored edge of a link type.
type LinkRecord struct {
	Link   string
	Source plan.Key
	Target plan.Key
}

// Batch is a set of writes committed atomically under one seq.
// Deletions apply before puts, so a batch may replace an object.
type Batch struct {
	PutObjects    []ObjectRecord
	DeleteObjects []plan.Key
	PutLinks      []LinkRecord
	DeleteLinks   []LinkRecord
}

// Empty reports whether b writes nothing.
func (b Batch) Empty() bool {
	return len(b.PutObjects) == 0 && len(b.DeleteObjects) == 0 && len(b.PutLinks) == 0 && len(b.DeleteLinks) == 0
}

// Apply commits b on branch and returns the new seq. Putting an object
// closes its live version and inserts a new one. Putting a live link is a
// no-op; deleting a missing object or link is too. An empty batch does not
// advance the seq.
func (s *Store) Apply(ctx context.Context, branch string, b Batch) (int64, error) {
	if b.Empty() {
		return s.CurrentSeq(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("apply batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, "UPDATE seq SET value = value + 1 WHERE id = 1 RETURNING value").Scan(&seq); err != nil {
		return 0, fmt.Errorf("apply batch: advance seq: %w", err)
	}

	for _, key := range b.DeleteObjects {
		if err := closeObject(ctx, tx, branch, key, seq); err != nil {
			return 0, fmt.Errorf("apply batch: delete %s: %w", key, err)
		}
	}
	for _, obj := range b.PutObjects {
		if err := putObject(ctx, tx, branch, obj, seq); err != nil {
			return 0, fmt.Errorf("apply batch: put %s: %w", obj.Key, err)
		}
	}
	for _, link := range b.DeleteLinks {
		if err := closeLink(ctx, tx, branch, link, seq); err != nil {
			return 0, fmt.Errorf("apply batch: delete link %s: %w", link.Link, err)
		}
	}
	for _, link := range b.PutLinks {
		if err := putLink(ctx, tx, branch, link, seq); err != nil {
			return 0, fmt.Errorf("apply batch: put link %s: %w", link.Link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("apply batch: commit: %w", err)
	}
	return seq, nil
}

func closeObject(ctx context.Context, tx *sql.Tx, branch string, key plan.Key, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE objects SET deleted_seq = ?
		WHERE branch = ? AND object_type = ? AND primary_key = ? AND deleted_seq IS NULL
	`, seq, branch, key.ObjectType, key.PrimaryKey)
	return err
}

func putObject(ctx context.Context, tx *sql.Tx, branch string, obj ObjectRecord, seq int64) error {
	if obj.Key.ObjectType == "" || obj.Key.PrimaryKey == "" {
		return fmt.Errorf("object key needs an object type and a primary key")
	}
	props, err := marshalProperties(obj.Properties)
	if err != nil {
		return err
	}
	if err := closeObject(ctx, tx, branch, obj.Key, seq); err != nil {
		return err
	}
	// A put of the same key twice in one batch replaces the first.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects (branch, object_type, primary_key, properties, created_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(branch, object_type, primary_key, created_seq) DO UPDATE SET properties = excluded.properties, deleted_seq = NULL
	`, branch, obj.Key.ObjectType, obj.Key.PrimaryKey, props, seq)
	return err
}

func closeLink(ctx context.Context, tx *sql.Tx, branch string, link LinkRecord, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE links SET deleted_seq = ?
		WHERE branch = ? AND link_type = ? AND source_type = ? AND source_key = ?
		  AND target_type = ? AND target_key = ? AND deleted_seq IS NULL
	`, seq, branch, link.Link, link.Source.ObjectType, link.Source.PrimaryKey, link.Target.ObjectType, link.Target.PrimaryKey)
	return err
}

func putLink(ctx context.Context, tx *sql.Tx, branch string, link LinkRecord, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO links (branch, link_type, source_type, source_key, target_type, target_key, created_seq)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM links
			WHERE branch = ? AND link_type = ? AND source_type = ? AND source_key = ?
			  AND target_type = ? AND target_key = ? AND deleted_seq IS NULL
		)
	`,
		branch, link.Link, link.Source.ObjectType, link.Source.PrimaryKey, link.Target.ObjectType, link.Target.PrimaryKey, seq,
		branch, link.Link, link.Source.ObjectType, link.Source.PrimaryKey, link.Target.ObjectType, link.Target.PrimaryKey,
	)
	return err
}
