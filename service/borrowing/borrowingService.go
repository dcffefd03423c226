package borrowingsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MaksymBus/library-service-api/model"
	brepo "github.com/MaksymBus/library-service-api/repository/borrowing"
)

// errors used by controllers

type ErrCode string

const (
	ErrBookNotFound      ErrCode = "BOOK_NOT_FOUND"
	ErrNoInventory       ErrCode = "NO_INVENTORY"
	ErrInvalidReturnDate ErrCode = "INVALID_RETURN_DATE"
	ErrAlreadyReturned   ErrCode = "ALREADY_RETURNED"
	ErrNotFound          ErrCode = "NOT_FOUND"
	ErrNotOwner          ErrCode = "NOT_OWNER"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Requester is the authenticated caller, as decoded from the token.
type Requester struct {
	UserID int64
	Email  string
	Staff  bool
}

// ListFilter carries the optional query filters. UserID is honored for
// staff only; everyone else is scoped to their own borrowings.
type ListFilter struct {
	UserID   *int64
	IsActive *bool
}

type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

type Service interface {
	// Create borrows one copy: decrements inventory and inserts the
	// ledger row in a single transaction, then notifies best-effort.
	Create(ctx context.Context, req Requester, bookID int64, expectedReturn model.Date) (*model.Borrowing, error)

	// Return sets the actual return date (once) and frees the copy.
	Return(ctx context.Context, req Requester, borrowingID int64) (*model.Borrowing, error)

	// List returns borrowings visible to the requester, filtered.
	List(ctx context.Context, req Requester, f ListFilter) ([]model.BorrowingRow, error)

	// Get returns one borrowing with its book embedded.
	Get(ctx context.Context, req Requester, id int64) (*model.BorrowingDetail, error)
}

// ----- Service implementation -----

type service struct {
	store brepo.Store
	n     Notifier
	log   *slog.Logger
}

func New(store brepo.Store, n Notifier, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, n: n, log: log}
}

func (s *service) Create(ctx context.Context, req Requester, bookID int64, expectedReturn model.Date) (*model.Borrowing, error) {
	today := model.Today()
	if !expectedReturn.After(today) {
		return nil, makeErr(ErrInvalidReturnDate)
	}

	b := &model.Borrowing{
		BorrowDate:         today,
		ExpectedReturnDate: expectedReturn,
		BookID:             bookID,
		UserID:             req.UserID,
	}
	if err := b.Validate(); err != nil {
		return nil, makeErr(ErrInvalidReturnDate)
	}

	var bookTitle string
	err := s.store.InTx(ctx, func(tx brepo.Tx) error {
		book, err := tx.GetBookForUpdate(ctx, bookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrBookNotFound)
			}
			return err
		}
		if book.Inventory <= 0 {
			return makeErr(ErrNoInventory)
		}
		ok, err := tx.AdjustInventory(ctx, bookID, -1)
		if err != nil {
			return err
		}
		if !ok {
			return makeErr(ErrNoInventory)
		}
		bookTitle = book.Title
		return tx.InsertBorrowing(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	// Outside the transaction: a failed send must not undo the borrow.
	s.notifyBorrowed(req.Email, bookTitle, b)
	return b, nil
}

func (s *service) Return(ctx context.Context, req Requester, borrowingID int64) (*model.Borrowing, error) {
	var out *model.Borrowing
	err := s.store.InTx(ctx, func(tx brepo.Tx) error {
		// Locked re-read: a concurrent return of the same borrowing
		// waits here and then fails the already-returned check.
		b, err := tx.GetBorrowingForUpdate(ctx, borrowingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return makeErr(ErrNotFound)
			}
			return err
		}
		if !req.Staff && b.UserID != req.UserID {
			return makeErr(ErrNotOwner)
		}
		if b.ActualReturnDate != nil {
			return makeErr(ErrAlreadyReturned)
		}

		today := model.Today()
		b.ActualReturnDate = &today
		if err := b.Validate(); err != nil {
			return err
		}
		if err := tx.MarkReturned(ctx, borrowingID, today); err != nil {
			return err
		}
		ok, err := tx.AdjustInventory(ctx, b.BookID, 1)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("book %d missing while returning borrowing %d", b.BookID, borrowingID)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) List(ctx context.Context, req Requester, f ListFilter) ([]model.BorrowingRow, error) {
	rf := brepo.Filter{IsActive: f.IsActive}
	if req.Staff {
		rf.UserID = f.UserID
	} else {
		uid := req.UserID
		rf.UserID = &uid
	}
	return s.store.List(ctx, rf)
}

func (s *service) Get(ctx context.Context, req Requester, id int64) (*model.BorrowingDetail, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	// Same as an unknown id for everyone but the owner and staff.
	if !req.Staff && d.UserID != req.UserID {
		return nil, makeErr(ErrNotFound)
	}
	return d, nil
}

func (s *service) notifyBorrowed(email, bookTitle string, b *model.Borrowing) {
	msg := fmt.Sprintf(
		"New Book Borrowing\n\nUser: %s\nBook: %s\nBorrowed On: %s\nReturn By: %s",
		email, bookTitle, b.BorrowDate, b.ExpectedReturnDate,
	)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.n.SendMessage(ctx, msg); err != nil {
			s.log.Error("borrow notification failed", "err", err, "borrowing_id", b.ID)
		}
	}()
}
