package auth

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/MaksymBus/library-service-api/model"
)

type Repo interface {
	Create(ctx context.Context, u *model.User) error
	ByEmail(ctx context.Context, email string) (*model.User, error)
}

type repo struct{ db *sqlx.DB }

func New(db *sqlx.DB) Repo { return &repo{db: db} }

func (r *repo) Create(ctx context.Context, u *model.User) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO users(first_name, last_name, email, password_hash)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *repo) ByEmail(ctx context.Context, email string) (*model.User, error) {
	u := &model.User{}
	err := r.db.GetContext(ctx, u, `
		SELECT id, first_name, last_name, email, is_staff, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)`,
		email,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
