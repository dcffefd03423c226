package bookrepo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/MaksymBus/library-service-api/model"
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	// Update rewrites every field; returns false when the id is unknown.
	Update(ctx context.Context, b *model.Book) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]model.Book, error)
	Get(ctx context.Context, id int64) (*model.Book, error)
}

type repo struct{ db *sqlx.DB }

func New(db *sqlx.DB) Repo { return &repo{db: db} }

func (r *repo) Create(ctx context.Context, b *model.Book) error {
	const q = `
		INSERT INTO books (title, author, cover, inventory, daily_fee)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return r.db.QueryRowContext(ctx, q, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee).Scan(&b.ID)
}

func (r *repo) Update(ctx context.Context, b *model.Book) (bool, error) {
	const q = `
		UPDATE books
		SET title = $2, author = $3, cover = $4, inventory = $5, daily_fee = $6
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, b.ID, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (r *repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		ORDER BY title, author`
	var out []model.Book
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) Get(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		WHERE id = $1`
	var b model.Book
	if err := r.db.GetContext(ctx, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}
