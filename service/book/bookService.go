package booksvc

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MaksymBus/library-service-api/model"
)

type ErrCode string

const (
	ErrBadInput ErrCode = "BAD_INPUT"
	ErrNotFound ErrCode = "NOT_FOUND"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	Update(ctx context.Context, b *model.Book) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context) ([]model.Book, error)
	Get(ctx context.Context, id int64) (*model.Book, error)
}

type Service interface {
	Create(ctx context.Context, b *model.Book) error
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Book, error)
	Get(ctx context.Context, id int64) (*model.Book, error)
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func validate(b *model.Book) error {
	if b.Title == "" || b.Author == "" {
		return makeErr(ErrBadInput)
	}
	if !b.Cover.Valid() {
		return makeErr(ErrBadInput)
	}
	if b.Inventory < 0 || b.DailyFee.IsNegative() {
		return makeErr(ErrBadInput)
	}
	return nil
}

func (s *service) Create(ctx context.Context, b *model.Book) error {
	if err := validate(b); err != nil {
		return err
	}
	return s.r.Create(ctx, b)
}

func (s *service) Update(ctx context.Context, b *model.Book) error {
	if err := validate(b); err != nil {
		return err
	}
	ok, err := s.r.Update(ctx, b)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotFound)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	ok, err := s.r.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotFound)
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]model.Book, error) { return s.r.List(ctx) }

func (s *service) Get(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}
