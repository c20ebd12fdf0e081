package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/sqlite"
)

// InventoryRepository persists the collectibles users have found. A user owns each collectible at most once.
type InventoryRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewInventoryRepository(db *sqlite.Database, logger *slog.Logger) *InventoryRepository {
	return &InventoryRepository{
		db:     db,
		logger: logger.With("source", "InventoryRepository"),
		now:    time.Now,
	}
}

type inventoryRow struct {
	UserID        string `db:"user_id"`
	CollectibleID string `db:"collectible_id"`
	DisplayName   string `db:"display_name"`
	DisplayNameES string `db:"display_name_es"`
	Emoji         string `db:"emoji"`
	FoundAt       int64  `db:"found_at"`
}

func (row inventoryRow) item() models.InventoryItem {
	return models.InventoryItem{
		UserID: row.UserID,
		Collectible: models.Collectible{
			ID:            row.CollectibleID,
			DisplayName:   row.DisplayName,
			DisplayNameES: row.DisplayNameES,
			Emoji:         row.Emoji,
		},
		FoundAt: time.UnixMilli(row.FoundAt).UTC(),
	}
}

// ListInventory returns the user's items, oldest first.
func (r *InventoryRepository) ListInventory(ctx context.Context, userID string) ([]models.InventoryItem, error) {
	var rows []inventoryRow
	stmt := `SELECT user_id, collectible_id, display_name, display_name_es, emoji, found_at
FROM inventory_items
WHERE user_id = ?
ORDER BY found_at, collectible_id`
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, stmt, userID); err != nil {
		return nil, errors.Wrap(err, "select inventory", slog.String("user_id", userID))
	}
	items := make([]models.InventoryItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.item())
	}
	return items, nil
}

// InsertInventory records that the user found c. It returns ErrConflict when the user already owns it.
func (r *InventoryRepository) InsertInventory(
	ctx context.Context,
	userID string,
	c models.Collectible,
) (models.InventoryItem, error) {
	row := inventoryRow{
		UserID:        userID,
		CollectibleID: c.ID,
		DisplayName:   c.DisplayName,
		DisplayNameES: c.DisplayNameES,
		Emoji:         c.Emoji,
		FoundAt:       r.now().UnixMilli(),
	}
	stmt := `INSERT INTO inventory_items (user_id, collectible_id, display_name, display_name_es, emoji, found_at)
VALUES (:user_id, :collectible_id, :display_name, :display_name_es, :emoji, :found_at)`
	attrs := []slog.Attr{slog.String("user_id", userID), slog.String("collectible_id", c.ID)}
	if _, err := r.db.ReadWrite.NamedExecContext(ctx, stmt, row); err != nil {
		if isUniqueViolation(err) {
			return models.InventoryItem{}, errors.Wrap(ErrConflict, "insert inventory item", attrs...)
		}
		return models.InventoryItem{}, errors.Wrap(err, "insert inventory item", attrs...)
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "stored inventory item", attrs...)
	return row.item(), nil
}
