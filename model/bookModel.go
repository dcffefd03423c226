// model/book.go
package model

import "github.com/shopspring/decimal"

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

func (c Cover) Valid() bool { return c == CoverHard || c == CoverSoft }

type Book struct {
	ID        int64           `db:"id" json:"id"`
	Title     string          `db:"title" json:"title"`
	Author    string          `db:"author" json:"author"`
	Cover     Cover           `db:"cover" json:"cover"`
	Inventory int64           `db:"inventory" json:"inventory"`
	DailyFee  decimal.Decimal `db:"daily_fee" json:"daily_fee"`
}
