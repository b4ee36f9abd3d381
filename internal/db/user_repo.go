package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cinelog/internal/types"
)

// UserRepository provides data access for the users table. The scheduled
// jobs iterate over every user, so List is the primary access path.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given
// database connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// List returns all users ordered by creation time. Job runs process users
// in this stable order so partial failures are easier to correlate with
// log output.
func (r *UserRepository) List(ctx context.Context) ([]*types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, email, created_at
		 FROM users
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var users []*types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}

	return users, nil
}

// GetByID retrieves a single user by ID. Returns ErrCodeNotFoundUser when
// no row matches.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, name, email, created_at
		 FROM users
		 WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return &u, nil
}
