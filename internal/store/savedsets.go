package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
)

// SaveObjectSet stores definition under rid, replacing any earlier
// definition. The definition must decode as an object set. Returns the
// definition's fingerprint.
func (s *Store) SaveObjectSet(ctx context.Context, rid string, definition []byte) (string, error) {
	if rid == "" {
		return "", fmt.Errorf("save object set: empty rid")
	}
	set, err := objectset.DecodeObjectSet(definition)
	if err != nil {
		return "", fmt.Errorf("save object set %s: %w", rid, err)
	}
	fp, err := ir.Fingerprint(ir.DomainSavedSet, set)
	if err != nil {
		return "", fmt.Errorf("save object set %s: %w", rid, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_object_sets (rid, definition, fingerprint, seq)
		VALUES (?, ?, ?, (SELECT value FROM seq WHERE id = 1))
		ON CONFLICT(rid) DO UPDATE SET
			definition = excluded.definition,
			fingerprint = excluded.fingerprint,
			seq = excluded.seq
	`, rid, string(definition), fp)
	if err != nil {
		return "", fmt.Errorf("save object set %s: %w", rid, err)
	}
	return fp, nil
}

// ObjectSetDefinition returns the raw definition saved under rid.
func (s *Store) ObjectSetDefinition(ctx context.Context, rid string) ([]byte, bool, error) {
	var def string
	err := s.db.QueryRowContext(ctx, "SELECT definition FROM saved_object_sets WHERE rid = ?", rid).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read object set %s: %w", rid, err)
	}
	return []byte(def), true, nil
}

// SavedSet decodes the object set saved under rid.
func (s *Store) SavedSet(ctx context.Context, rid string) (objectset.ObjectSet, bool, error) {
	def, ok, err := s.ObjectSetDefinition(ctx, rid)
	if err != nil || !ok {
		return nil, ok, err
	}
	set, err := objectset.DecodeObjectSet(def)
	if err != nil {
		return nil, false, fmt.Errorf("decode object set %s: %w", rid, err)
	}
	return set, true, nil
}

// SavedObjectSets returns the saved RIDs in sorted order.
func (s *Store) SavedObjectSets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT rid FROM saved_object_sets ORDER BY rid COLLATE BINARY ASC")
	if err != nil {
		return nil, fmt.Errorf("query saved object sets: %w", err)
	}
	defer rows.Close()

	rids := []string{}
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, fmt.Errorf("scan rid: %w", err)
		}
		rids = append(rids, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved object sets: %w", err)
	}
	return rids, nil
}
