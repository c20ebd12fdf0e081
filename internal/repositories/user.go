package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/sqlite"
)

type UserRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewUserRepository(db *sqlite.Database, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger.With("source", "UserRepository"),
	}
}

type userRow struct {
	ID          string `db:"id"`
	DisplayName string `db:"display_name"`
	CreatedAt   int64  `db:"created_at"`
}

// Get returns ErrNotFound when no user has the given id.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	stmt := `SELECT id, display_name, created_at FROM users WHERE id = ?`
	if err := r.db.ReadOnly.GetContext(ctx, &row, stmt, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, "get user", slog.String("user_id", id))
		}
		return nil, errors.Wrap(err, "select user", slog.String("user_id", id))
	}
	return &models.User{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
	}, nil
}

func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	stmt := `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`
	if err := r.db.ReadOnly.GetContext(ctx, &exists, stmt, id); err != nil {
		return false, errors.Wrap(err, "check user exists", slog.String("user_id", id))
	}
	return exists, nil
}

// Create stores a new user. It returns ErrConflict when the id is taken.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	stmt := `INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, user.ID, user.DisplayName, user.CreatedAt.UnixMilli()); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(ErrConflict, "insert user", slog.String("user_id", user.ID))
		}
		return errors.Wrap(err, "insert user", slog.String("user_id", user.ID))
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "created user", slog.String("user_id", user.ID))
	return nil
}
