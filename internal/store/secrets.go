package store

import (
	"context"
	"crypto/rand"
	"fmt"
)

// Secret returns the random secret stored under name, generating and
// storing one on first use. Every process sharing the store sees the same
// value.
func (s *Store) Secret(ctx context.Context, name string) ([]byte, error) {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO secrets (name, value) VALUES (?, ?)", name, rand.Text()); err != nil {
		return nil, fmt.Errorf("store secret %s: %w", name, err)
	}
	var value string
	if err := s.db.QueryRowContext(ctx, "SELECT value FROM secrets WHERE name = ?", name).Scan(&value); err != nil {
		return nil, fmt.Errorf("read secret %s: %w", name, err)
	}
	return []byte(value), nil
}
