package gymconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heliosfit/gymdesk/internal/store"
)

// Load reads the stored configuration document and merges it over the
// defaults. When no document exists or the stored one cannot be parsed, the
// defaults are returned alongside the error so callers can keep serving.
func Load(ctx context.Context, q *store.Queries) (Config, error) {
	doc, err := q.GetConfigDocument(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("load gym config: %w", err)
	}

	var stored Config
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return Default(), fmt.Errorf("parse gym config: %w", err)
	}

	return Effective(&stored), nil
}

// Save persists the document as the singleton stored configuration.
func Save(ctx context.Context, q *store.Queries, cfg Config) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode gym config: %w", err)
	}
	if err := q.UpsertConfigDocument(ctx, string(doc)); err != nil {
		return fmt.Errorf("store gym config: %w", err)
	}
	return nil
}
