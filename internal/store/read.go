package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/querysql"
)

// maxKeysPerQuery keeps key lookups well under SQLite's bound parameter
// limit.
const maxKeysPerQuery = 500

// ScanObjects returns the objects matched by q in default order:
// object_type, primary_key COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ScanObjects(ctx context.Context, q querysql.ObjectScan) ([]ObjectRecord, error) {
	if len(q.Keys) <= maxKeysPerQuery {
		return s.scanObjects(ctx, q)
	}

	var out []ObjectRecord
	for chunk := range slices.Chunk(q.Keys, maxKeysPerQuery) {
		part := q
		part.Keys = chunk
		objs, err := s.scanObjects(ctx, part)
		if err != nil {
			return nil, err
		}
		out = append(out, objs...)
	}
	slices.SortFunc(out, func(a, b ObjectRecord) int { return plan.CompareKeys(a.Key, b.Key) })
	return slices.CompactFunc(out, func(a, b ObjectRecord) bool { return a.Key == b.Key }), nil
}

func (s *Store) scanObjects(ctx context.Context, q querysql.ObjectScan) ([]ObjectRecord, error) {
	sqlText, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("scan objects: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	objs := []ObjectRecord{}
	for rows.Next() {
		var (
			rec   ObjectRecord
			props string
		)
		if err := rows.Scan(&rec.Key.ObjectType, &rec.Key.PrimaryKey, &props); err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}
		if rec.Properties, err = unmarshalProperties(props); err != nil {
			return nil, fmt.Errorf("object %s: %w", rec.Key, err)
		}
		objs = append(objs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objs, nil
}

// ScanLinks returns the edges matched by q ordered by source then target.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ScanLinks(ctx context.Context, q querysql.LinkScan) ([]LinkRecord, error) {
	sqlText, params, err := s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("scan links: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []LinkRecord{}
	for rows.Next() {
		rec := LinkRecord{Link: q.Link}
		if err := rows.Scan(&rec.Source.ObjectType, &rec.Source.PrimaryKey, &rec.Target.ObjectType, &rec.Target.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan link row: %w", err)
		}
		links = append(links, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// Branches returns the branches that hold any object, in sorted order.
func (s *Store) Branches(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT branch FROM objects ORDER BY branch COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query branches: %w", err)
	}
	defer rows.Close()

	branches := []string{}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return branches, nil
}
