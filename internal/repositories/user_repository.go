package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inbox-service/internal/models"
)

const userColumns = `u.id, u.display_name, u.avatar_url, u.device_token`

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a profile by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.UserProfile, error) {
	var user models.UserProfile
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users u WHERE u.id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserProfile{}, wrapPG(err, "get user")
	}
	return user, nil
}

// BulkUsers fetches multiple profiles in one query.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	if len(ids) == 0 {
		return []models.UserProfile{}, nil
	}
	var users []models.UserProfile
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users u WHERE u.id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, wrapPG(err, "bulk users")
	}
	return users, nil
}

// ListFollowed returns the profiles userID follows, ordered by display name.
func (r *UserRepo) ListFollowed(ctx context.Context, userID string) ([]models.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM follows f
        JOIN users u ON u.id = f.followed_id
        WHERE f.follower_id = $1
        ORDER BY u.display_name ASC`
	var users []models.UserProfile
	if err := r.db.SelectContext(ctx, &users, query, userID); err != nil {
		return nil, wrapPG(err, "list followed users")
	}
	return users, nil
}
