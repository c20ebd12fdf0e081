package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/sqlite"
)

// LegacyBackpackRepository holds backpacks that older clients kept on the device and uploaded for import.
// The payload is the JSON list of collectibles exactly as the client stored it.
type LegacyBackpackRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewLegacyBackpackRepository(db *sqlite.Database, logger *slog.Logger) *LegacyBackpackRepository {
	return &LegacyBackpackRepository{
		db:     db,
		logger: logger.With("source", "LegacyBackpackRepository"),
	}
}

// Read returns nil when the user has no legacy backpack. A payload that cannot be decoded is logged and deleted,
// since no later read would succeed either.
func (r *LegacyBackpackRepository) Read(ctx context.Context, userID string) ([]models.Collectible, error) {
	var payload string
	stmt := `SELECT payload FROM legacy_backpacks WHERE user_id = ?`
	if err := r.db.ReadOnly.GetContext(ctx, &payload, stmt, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select legacy backpack", slog.String("user_id", userID))
	}
	var items []models.Collectible
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		err = errors.Wrap(err, "decode legacy backpack", slog.String("user_id", userID))
		r.logger.LogAttrs(ctx, slog.LevelError, "discarding corrupt legacy backpack",
			slog.String("payload", payload), errors.SlogError(err))
		if clearErr := r.Clear(ctx, userID); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		return nil, nil
	}
	return items, nil
}

// Write replaces the user's legacy backpack.
func (r *LegacyBackpackRepository) Write(ctx context.Context, userID string, items []models.Collectible) error {
	if items == nil {
		items = []models.Collectible{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode legacy backpack")
	}
	stmt := `INSERT INTO legacy_backpacks (user_id, payload) VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET payload = excluded.payload`
	if _, err = r.db.ReadWrite.ExecContext(ctx, stmt, userID, string(payload)); err != nil {
		return errors.Wrap(err, "upsert legacy backpack", slog.String("user_id", userID))
	}
	return nil
}

func (r *LegacyBackpackRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx, `DELETE FROM legacy_backpacks WHERE user_id = ?`, userID); err != nil {
		return errors.Wrap(err, "delete legacy backpack", slog.String("user_id", userID))
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "cleared legacy backpack", slog.String("user_id", userID))
	return nil
}
