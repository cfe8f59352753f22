package store

import (
	"context"
)

// GetConfigDocument returns the stored operating-config JSON document. It
// returns sql.ErrNoRows when no document has been saved yet.
func (q *Queries) GetConfigDocument(ctx context.Context) (string, error) {
	var doc string
	err := q.db.QueryRowContext(ctx,
		"SELECT document FROM gym_config WHERE id = 1").Scan(&doc)
	return doc, err
}

// UpsertConfigDocument replaces the singleton operating-config document.
func (q *Queries) UpsertConfigDocument(ctx context.Context, document string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO gym_config (id, document, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
		document)
	return err
}
