// model/borrowing.go
package model

import "errors"

var (
	ErrReturnDateNotFuture = errors.New("expected return date must be after the borrow date")
	ErrReturnBeforeBorrow  = errors.New("actual return date must not be before the borrow date")
)

type Borrowing struct {
	ID                 int64 `db:"id" json:"id"`
	BorrowDate         Date  `db:"borrow_date" json:"borrow_date"`
	ExpectedReturnDate Date  `db:"expected_return_date" json:"expected_return_date"`
	ActualReturnDate   *Date `db:"actual_return_date" json:"actual_return_date"`
	BookID             int64 `db:"book_id" json:"book_id"`
	UserID             int64 `db:"user_id" json:"user_id"`
}

// Active reports whether the book is still out.
func (b *Borrowing) Active() bool { return b.ActualReturnDate == nil }

// Validate enforces date sanity on every mutation path, not just at the
// service boundary.
func (b *Borrowing) Validate() error {
	if !b.ExpectedReturnDate.After(b.BorrowDate) {
		return ErrReturnDateNotFuture
	}
	if b.ActualReturnDate != nil && b.ActualReturnDate.Before(b.BorrowDate) {
		return ErrReturnBeforeBorrow
	}
	return nil
}

// BorrowingRow is the list shape: the borrowing plus the book title.
type BorrowingRow struct {
	ID                 int64  `db:"id" json:"id"`
	BorrowDate         Date   `db:"borrow_date" json:"borrow_date"`
	ExpectedReturnDate Date   `db:"expected_return_date" json:"expected_return_date"`
	ActualReturnDate   *Date  `db:"actual_return_date" json:"actual_return_date"`
	BookID             int64  `db:"book_id" json:"book_id"`
	BookTitle          string `db:"book_title" json:"book_title"`
	UserID             int64  `db:"user_id" json:"user_id"`
}

// BorrowingDetail is the retrieve shape: the borrowing with the full book.
type BorrowingDetail struct {
	ID                 int64 `db:"id" json:"id"`
	BorrowDate         Date  `db:"borrow_date" json:"borrow_date"`
	ExpectedReturnDate Date  `db:"expected_return_date" json:"expected_return_date"`
	ActualReturnDate   *Date `db:"actual_return_date" json:"actual_return_date"`
	UserID             int64 `db:"user_id" json:"user_id"`
	Book               Book  `db:"book" json:"book"`
}
