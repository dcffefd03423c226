package borrowingsvc_test

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MaksymBus/library-service-api/model"
	brepo "github.com/MaksymBus/library-service-api/repository/borrowing"
	borrowingsvc "github.com/MaksymBus/library-service-api/service/borrowing"
)

// fakeStore is an in-memory Store with real commit/rollback behavior:
// a transaction works on a staged copy and only a nil error publishes it.

type state struct {
	books      map[int64]model.Book
	borrowings map[int64]model.Borrowing
	nextID     int64
}

func (s *state) clone() *state {
	cp := &state{
		books:      make(map[int64]model.Book, len(s.books)),
		borrowings: make(map[int64]model.Borrowing, len(s.borrowings)),
		nextID:     s.nextID,
	}
	for id, b := range s.books {
		cp.books[id] = b
	}
	for id, b := range s.borrowings {
		if b.ActualReturnDate != nil {
			d := *b.ActualReturnDate
			b.ActualReturnDate = &d
		}
		cp.borrowings[id] = b
	}
	return cp
}

type fakeStore struct {
	mu sync.Mutex
	st *state
}

func newFakeStore(books ...model.Book) *fakeStore {
	st := &state{
		books:      make(map[int64]model.Book),
		borrowings: make(map[int64]model.Borrowing),
		nextID:     1,
	}
	for _, b := range books {
		st.books[b.ID] = b
	}
	return &fakeStore{st: st}
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx brepo.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	staged := f.st.clone()
	if err := fn(&fakeTx{st: staged}); err != nil {
		return err
	}
	f.st = staged
	return nil
}

func (f *fakeStore) List(_ context.Context, flt brepo.Filter) ([]model.BorrowingRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BorrowingRow
	for _, b := range f.st.borrowings {
		if flt.UserID != nil && b.UserID != *flt.UserID {
			continue
		}
		if flt.IsActive != nil && *flt.IsActive != b.Active() {
			continue
		}
		out = append(out, model.BorrowingRow{
			ID:                 b.ID,
			BorrowDate:         b.BorrowDate,
			ExpectedReturnDate: b.ExpectedReturnDate,
			ActualReturnDate:   b.ActualReturnDate,
			BookID:             b.BookID,
			BookTitle:          f.st.books[b.BookID].Title,
			UserID:             b.UserID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BorrowDate.Equal(out[j].BorrowDate) {
			return out[i].BorrowDate.After(out[j].BorrowDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*model.BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.st.borrowings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &model.BorrowingDetail{
		ID:                 b.ID,
		BorrowDate:         b.BorrowDate,
		ExpectedReturnDate: b.ExpectedReturnDate,
		ActualReturnDate:   b.ActualReturnDate,
		UserID:             b.UserID,
		Book:               f.st.books[b.BookID],
	}, nil
}

func (f *fakeStore) inventory(t *testing.T, bookID int64) int64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.st.books[bookID]
	require.True(t, ok, "book %d missing", bookID)
	return b.Inventory
}

func (f *fakeStore) borrowingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.st.borrowings)
}

type fakeTx struct{ st *state }

func (t *fakeTx) GetBookForUpdate(_ context.Context, bookID int64) (*model.Book, error) {
	b, ok := t.st.books[bookID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (t *fakeTx) AdjustInventory(_ context.Context, bookID, delta int64) (bool, error) {
	b, ok := t.st.books[bookID]
	if !ok || b.Inventory+delta < 0 {
		return false, nil
	}
	b.Inventory += delta
	t.st.books[bookID] = b
	return true, nil
}

func (t *fakeTx) InsertBorrowing(_ context.Context, b *model.Borrowing) error {
	b.ID = t.st.nextID
	t.st.nextID++
	t.st.borrowings[b.ID] = *b
	return nil
}

func (t *fakeTx) GetBorrowingForUpdate(_ context.Context, id int64) (*model.Borrowing, error) {
	b, ok := t.st.borrowings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if b.ActualReturnDate != nil {
		d := *b.ActualReturnDate
		b.ActualReturnDate = &d
	}
	return &b, nil
}

func (t *fakeTx) MarkReturned(_ context.Context, id int64, returned model.Date) error {
	b, ok := t.st.borrowings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.ActualReturnDate = &returned
	t.st.borrowings[id] = b
	return nil
}

type fakeNotifier struct {
	err error
	ch  chan string
}

func (n *fakeNotifier) SendMessage(_ context.Context, text string) error {
	if n.ch != nil {
		n.ch <- text
	}
	return n.err
}

func waitForMessage(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
		return ""
	}
}

func testBook(id int64, title string, inventory int64) model.Book {
	return model.Book{ID: id, Title: title, Author: "test_author", Cover: model.CoverHard, Inventory: inventory}
}

var (
	alice = borrowingsvc.Requester{UserID: 1, Email: "alice@test.com"}
	bob   = borrowingsvc.Requester{UserID: 2, Email: "bob@test.com"}
	staff = borrowingsvc.Requester{UserID: 3, Email: "admin@test.com", Staff: true}
)

// --- create ---

func TestCreate_DecrementsInventoryAndNotifies(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 2))
	n := &fakeNotifier{ch: make(chan string, 1)}
	svc := borrowingsvc.New(store, n, nil)

	due := model.Today().AddDays(3)
	b, err := svc.Create(context.Background(), alice, 10, due)
	require.NoError(t, err)
	require.NotZero(t, b.ID)
	require.True(t, b.BorrowDate.Equal(model.Today()))
	require.True(t, b.ExpectedReturnDate.Equal(due))
	require.Nil(t, b.ActualReturnDate)
	require.Equal(t, int64(1), store.inventory(t, 10))

	msg := waitForMessage(t, n.ch)
	require.Contains(t, msg, "alice@test.com")
	require.Contains(t, msg, "Kobzar")
	require.Contains(t, msg, b.BorrowDate.String())
	require.Contains(t, msg, due.String())
}

func TestCreate_InventoryExhausted(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 0))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)

	_, err := svc.Create(context.Background(), alice, 10, model.Today().AddDays(3))
	require.Error(t, err)
	require.Equal(t, borrowingsvc.ErrNoInventory, borrowingsvc.Code(err))
	require.Equal(t, int64(0), store.inventory(t, 10))
	require.Zero(t, store.borrowingCount())
}

func TestCreate_BookNotFound(t *testing.T) {
	store := newFakeStore()
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)

	_, err := svc.Create(context.Background(), alice, 404, model.Today().AddDays(3))
	require.Equal(t, borrowingsvc.ErrBookNotFound, borrowingsvc.Code(err))
}

func TestCreate_ReturnDateNotInFuture(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 5))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)

	for _, due := range []model.Date{model.Today(), model.Today().AddDays(-1)} {
		_, err := svc.Create(context.Background(), alice, 10, due)
		require.Equal(t, borrowingsvc.ErrInvalidReturnDate, borrowingsvc.Code(err))
	}
	require.Equal(t, int64(5), store.inventory(t, 10))
	require.Zero(t, store.borrowingCount())
}

func TestCreate_NotifierFailureDoesNotFailBorrow(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 1))
	n := &fakeNotifier{err: errors.New("telegram down"), ch: make(chan string, 1)}
	svc := borrowingsvc.New(store, n, nil)

	b, err := svc.Create(context.Background(), alice, 10, model.Today().AddDays(3))
	require.NoError(t, err)
	require.NotZero(t, b.ID)
	require.Equal(t, int64(0), store.inventory(t, 10))
	waitForMessage(t, n.ch)
}

// --- return ---

func TestReturn_RoundTripRestoresInventory(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 2))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
	require.NoError(t, err)
	require.Equal(t, int64(1), store.inventory(t, 10))

	ret, err := svc.Return(ctx, alice, b.ID)
	require.NoError(t, err)
	require.NotNil(t, ret.ActualReturnDate)
	require.True(t, ret.ActualReturnDate.Equal(model.Today()))
	require.Equal(t, int64(2), store.inventory(t, 10))
}

func TestReturn_SecondReturnRejected(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 1))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
	require.NoError(t, err)
	_, err = svc.Return(ctx, alice, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), store.inventory(t, 10))

	_, err = svc.Return(ctx, alice, b.ID)
	require.Equal(t, borrowingsvc.ErrAlreadyReturned, borrowingsvc.Code(err))
	require.Equal(t, int64(1), store.inventory(t, 10), "no double increment")
}

func TestReturn_NotFound(t *testing.T) {
	svc := borrowingsvc.New(newFakeStore(), &fakeNotifier{}, nil)
	_, err := svc.Return(context.Background(), alice, 404)
	require.Equal(t, borrowingsvc.ErrNotFound, borrowingsvc.Code(err))
}

func TestReturn_OwnershipEnforced(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 1))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
	require.NoError(t, err)

	_, err = svc.Return(ctx, bob, b.ID)
	require.Equal(t, borrowingsvc.ErrNotOwner, borrowingsvc.Code(err))
	require.Equal(t, int64(0), store.inventory(t, 10))

	// staff may return on behalf of anyone
	_, err = svc.Return(ctx, staff, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), store.inventory(t, 10))
}

// --- list / get ---

func seedBorrowings(t *testing.T, svc borrowingsvc.Service) (aliceIDs, bobIDs []int64) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
		require.NoError(t, err)
		aliceIDs = append(aliceIDs, b.ID)
	}
	b, err := svc.Create(ctx, bob, 20, model.Today().AddDays(5))
	require.NoError(t, err)
	bobIDs = append(bobIDs, b.ID)
	return aliceIDs, bobIDs
}

func TestList_NonStaffScopedToOwnRows(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 5), testBook(20, "Zakhar Berkut", 5))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	aliceIDs, _ := seedBorrowings(t, svc)

	// the user_id filter must not widen a non-staff scope
	other := bob.UserID
	rows, err := svc.List(context.Background(), alice, borrowingsvc.ListFilter{UserID: &other})
	require.NoError(t, err)
	require.Len(t, rows, len(aliceIDs))
	for _, r := range rows {
		require.Equal(t, alice.UserID, r.UserID)
	}
}

func TestList_StaffSeesAllAndFiltersByUser(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 5), testBook(20, "Zakhar Berkut", 5))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	_, bobIDs := seedBorrowings(t, svc)
	ctx := context.Background()

	rows, err := svc.List(ctx, staff, borrowingsvc.ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	target := bob.UserID
	rows, err = svc.List(ctx, staff, borrowingsvc.ListFilter{UserID: &target})
	require.NoError(t, err)
	require.Len(t, rows, len(bobIDs))
	for _, r := range rows {
		require.Equal(t, bob.UserID, r.UserID)
	}
}

func TestList_ActivityFilterPartitions(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 5))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	_, err := svc.Return(ctx, alice, ids[0])
	require.NoError(t, err)
	_, err = svc.Return(ctx, alice, ids[2])
	require.NoError(t, err)

	active, returned := true, false
	activeRows, err := svc.List(ctx, alice, borrowingsvc.ListFilter{IsActive: &active})
	require.NoError(t, err)
	returnedRows, err := svc.List(ctx, alice, borrowingsvc.ListFilter{IsActive: &returned})
	require.NoError(t, err)
	allRows, err := svc.List(ctx, alice, borrowingsvc.ListFilter{})
	require.NoError(t, err)

	require.Len(t, allRows, 4)
	require.Len(t, activeRows, 2)
	require.Len(t, returnedRows, 2)

	seen := map[int64]bool{}
	for _, r := range activeRows {
		require.Nil(t, r.ActualReturnDate)
		seen[r.ID] = true
	}
	for _, r := range returnedRows {
		require.NotNil(t, r.ActualReturnDate)
		require.False(t, seen[r.ID], "partitions must be disjoint")
		seen[r.ID] = true
	}
	require.Len(t, seen, len(allRows))
}

func TestGet_ScopedForNonStaff(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 5))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
	require.NoError(t, err)

	d, err := svc.Get(ctx, alice, b.ID)
	require.NoError(t, err)
	require.Equal(t, "Kobzar", d.Book.Title)

	_, err = svc.Get(ctx, bob, b.ID)
	require.Equal(t, borrowingsvc.ErrNotFound, borrowingsvc.Code(err), "foreign borrowing looks like an unknown id")

	_, err = svc.Get(ctx, staff, b.ID)
	require.NoError(t, err)
}

// --- full scenario ---

func TestScenario_SingleCopyLifecycle(t *testing.T) {
	store := newFakeStore(testBook(10, "Kobzar", 1))
	svc := borrowingsvc.New(store, &fakeNotifier{}, nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, alice, 10, model.Today().AddDays(3))
	require.NoError(t, err)
	require.Equal(t, int64(0), store.inventory(t, 10))
	require.Nil(t, b.ActualReturnDate)

	_, err = svc.Create(ctx, bob, 10, model.Today().AddDays(3))
	require.Equal(t, borrowingsvc.ErrNoInventory, borrowingsvc.Code(err))
	require.Equal(t, int64(0), store.inventory(t, 10))

	ret, err := svc.Return(ctx, alice, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), store.inventory(t, 10))
	require.True(t, ret.ActualReturnDate.Equal(model.Today()))

	_, err = svc.Return(ctx, alice, b.ID)
	require.Equal(t, borrowingsvc.ErrAlreadyReturned, borrowingsvc.Code(err))
	require.Equal(t, int64(1), store.inventory(t, 10))
}
