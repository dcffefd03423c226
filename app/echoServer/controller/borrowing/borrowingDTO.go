package borrowing

import "github.com/MaksymBus/library-service-api/model"

type CreateBorrowingReq struct {
	BookID             int64      `json:"book_id" validate:"required,gt=0"`
	ExpectedReturnDate model.Date `json:"expected_return_date" validate:"required"`
}
