// repository/borrowing/repo.go
package borrowingrepo

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/MaksymBus/library-service-api/model"
)

// Filter narrows List. Nil fields mean no constraint.
type Filter struct {
	UserID   *int64
	IsActive *bool
}

// Tx is the transaction-scoped part of the store. Everything the
// lifecycle service mutates goes through one of these, inside one
// InTx call, so the inventory counter and the ledger row can never be
// observed half-updated.
type Tx interface {
	// GetBookForUpdate locks the book row for the rest of the transaction.
	GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error)
	// AdjustInventory adds delta to the book's inventory. Returns false
	// when the guard (inventory must stay >= 0) rejected the update.
	AdjustInventory(ctx context.Context, bookID, delta int64) (bool, error)
	InsertBorrowing(ctx context.Context, b *model.Borrowing) error
	// GetBorrowingForUpdate locks the borrowing row, so a concurrent
	// return of the same borrowing blocks until this transaction ends.
	GetBorrowingForUpdate(ctx context.Context, id int64) (*model.Borrowing, error)
	MarkReturned(ctx context.Context, id int64, returned model.Date) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	List(ctx context.Context, f Filter) ([]model.BorrowingRow, error)
	Get(ctx context.Context, id int64) (*model.BorrowingDetail, error)
}

type store struct{ db *sqlx.DB }

func New(db *sqlx.DB) Store { return &store{db: db} }

func (s *store) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = txx.Rollback()
		}
	}()
	if err = fn(&tx{tx: txx}); err != nil {
		return err
	}
	return txx.Commit()
}

type tx struct{ tx *sqlx.Tx }

func (t *tx) GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		WHERE id = $1
		FOR UPDATE`
	var b model.Book
	if err := t.tx.GetContext(ctx, &b, q, bookID); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) AdjustInventory(ctx context.Context, bookID, delta int64) (bool, error) {
	// Guard: the counter must never go negative, even if a caller
	// skipped the locked read.
	const q = `
		UPDATE books
		SET inventory = inventory + $2
		WHERE id = $1
		AND inventory + $2 >= 0`
	res, err := t.tx.ExecContext(ctx, q, bookID, delta)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (t *tx) InsertBorrowing(ctx context.Context, b *model.Borrowing) error {
	const q = `
		INSERT INTO borrowings (borrow_date, expected_return_date, book_id, user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return t.tx.QueryRowContext(ctx, q, b.BorrowDate, b.ExpectedReturnDate, b.BookID, b.UserID).Scan(&b.ID)
}

func (t *tx) GetBorrowingForUpdate(ctx context.Context, id int64) (*model.Borrowing, error) {
	const q = `
		SELECT id, borrow_date, expected_return_date, actual_return_date, book_id, user_id
		FROM borrowings
		WHERE id = $1
		FOR UPDATE`
	var b model.Borrowing
	if err := t.tx.GetContext(ctx, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *tx) MarkReturned(ctx context.Context, id int64, returned model.Date) error {
	const q = `
		UPDATE borrowings
		SET actual_return_date = $2
		WHERE id = $1
		AND actual_return_date IS NULL`
	_, err := t.tx.ExecContext(ctx, q, id, returned)
	return err
}

// List builds the filtered query dynamically: scope by user, narrow by
// activity, newest borrowings first.
func (s *store) List(ctx context.Context, f Filter) ([]model.BorrowingRow, error) {
	ds := goqu.Dialect("postgres").
		From(goqu.T("borrowings").As("br")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id")))).
		Select(
			goqu.I("br.id"),
			goqu.I("br.borrow_date"),
			goqu.I("br.expected_return_date"),
			goqu.I("br.actual_return_date"),
			goqu.I("br.book_id"),
			goqu.I("b.title").As("book_title"),
			goqu.I("br.user_id"),
		).
		Order(goqu.I("br.borrow_date").Desc(), goqu.I("br.id").Desc())

	if f.UserID != nil {
		ds = ds.Where(goqu.I("br.user_id").Eq(*f.UserID))
	}
	if f.IsActive != nil {
		if *f.IsActive {
			ds = ds.Where(goqu.I("br.actual_return_date").IsNull())
		} else {
			ds = ds.Where(goqu.I("br.actual_return_date").IsNotNull())
		}
	}

	q, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var out []model.BorrowingRow
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store) Get(ctx context.Context, id int64) (*model.BorrowingDetail, error) {
	const q = `
		SELECT
			br.id, br.borrow_date, br.expected_return_date, br.actual_return_date, br.user_id,
			b.id AS "book.id", b.title AS "book.title", b.author AS "book.author",
			b.cover AS "book.cover", b.inventory AS "book.inventory", b.daily_fee AS "book.daily_fee"
		FROM borrowings br
		JOIN books b ON b.id = br.book_id
		WHERE br.id = $1`
	var d model.BorrowingDetail
	if err := s.db.GetContext(ctx, &d, q, id); err != nil {
		return nil, err
	}
	return &d, nil
}
