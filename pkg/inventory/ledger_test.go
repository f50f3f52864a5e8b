package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"lms/pkg/database"
	apperrors "lms/pkg/errors"
	"lms/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	return db
}

func seedBook(t *testing.T, db *gorm.DB, quantity, available int) models.Book {
	category := models.Category{Name: "Category " + uuid.NewString()}
	require.NoError(t, db.Create(&category).Error)
	book := models.Book{
		ID:         uuid.NewString(),
		Title:      "Book " + uuid.NewString(),
		Author:     "Test Author",
		Quantity:   quantity,
		Available:  available,
		CategoryID: category.ID,
	}
	require.NoError(t, db.Create(&book).Error)
	return book
}

func availableOf(t *testing.T, db *gorm.DB, id string) int {
	var book models.Book
	require.NoError(t, db.First(&book, "id = ?", id).Error)
	return book.Available
}

func TestDecrement(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 5, 5)

	err := ledger.Decrement(context.Background(), db, book.ID, 1)

	require.NoError(t, err)
	assert.Equal(t, 4, availableOf(t, db, book.ID))
}

func TestDecrementUnavailable(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 2, 0)

	err := ledger.Decrement(context.Background(), db, book.ID, 1)

	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
	assert.Equal(t, 0, availableOf(t, db, book.ID))
}

func TestDecrementNotFound(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)

	err := ledger.Decrement(context.Background(), db, uuid.NewString(), 1)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDecrementRejectsNonPositive(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 2, 2)

	err := ledger.Decrement(context.Background(), db, book.ID, 0)

	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	assert.Equal(t, 2, availableOf(t, db, book.ID))
}

// The single test connection serializes these transactions, so this checks
// the totals only. Interleaving is covered by the competing-borrower test.
func TestConcurrentDecrementsNeverOversubscribe(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 3, 3)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Transaction(func(tx *gorm.DB) error {
				return ledger.Decrement(context.Background(), tx, book.ID, 1)
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, unavailable := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperrors.From(err).Code == apperrors.CodeUnavailable:
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, workers-3, unavailable)
	assert.Equal(t, 0, availableOf(t, db, book.ID))
}

// competingBorrower takes one copy of bookID, on the same transaction,
// right after the first SELECT against books. Code that reads availability
// and then writes a computed value overwrites that take.
type competingBorrower struct {
	bookID string
	armed  bool
	fired  bool
	taken  int64
}

func (c *competingBorrower) register(t *testing.T, db *gorm.DB) {
	err := db.Callback().Query().After("gorm:query").Register("test:competing_borrower", func(tx *gorm.DB) {
		if !c.armed || c.fired || tx.Statement.Table != "books" {
			return
		}
		c.fired = true
		res := tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE books SET available = available - 1 WHERE id = ? AND available > 0", c.bookID)
		require.NoError(t, res.Error)
		c.taken += res.RowsAffected
	})
	require.NoError(t, err)
}

func TestDecrementKeepsCopiesTakenBetweenReadAndWrite(t *testing.T) {
	for _, tc := range []struct {
		name      string
		quantity  int
		available int
	}{
		{"last copy", 1, 1},
		{"two left", 3, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db := setupTestDB(t)
			ledger := NewLedger(nil)
			book := seedBook(t, db, tc.quantity, tc.available)

			rival := &competingBorrower{bookID: book.ID}
			rival.register(t, db)
			rival.armed = true

			var taken int64
			err := db.Transaction(func(tx *gorm.DB) error {
				err := ledger.Decrement(context.Background(), tx, book.ID, 1)
				switch {
				case err == nil:
					taken++
				case errors.Is(err, apperrors.ErrUnavailable):
				default:
					return err
				}
				return nil
			})
			require.NoError(t, err)
			rival.armed = false

			taken += rival.taken
			assert.LessOrEqual(t, taken, int64(tc.available))
			assert.Equal(t, tc.available-int(taken), availableOf(t, db, book.ID))
		})
	}
}

func TestIncrement(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 5, 4)

	err := ledger.Increment(context.Background(), db, book.ID, 1)

	require.NoError(t, err)
	assert.Equal(t, 5, availableOf(t, db, book.ID))
}

func TestIncrementClampsAtQuantity(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 5, 5)

	err := ledger.Increment(context.Background(), db, book.ID, 2)

	require.NoError(t, err)
	assert.Equal(t, 5, availableOf(t, db, book.ID))
}

func TestIncrementNotFound(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)

	err := ledger.Increment(context.Background(), db, uuid.NewString(), 1)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name          string
		quantity      int
		available     int
		newQuantity   int
		wantAvailable int
	}{
		{name: "grow shifts availability up", quantity: 5, available: 3, newQuantity: 8, wantAvailable: 6},
		{name: "shrink shifts availability down", quantity: 5, available: 3, newQuantity: 4, wantAvailable: 2},
		{name: "shrink below loans clamps at zero", quantity: 5, available: 1, newQuantity: 2, wantAvailable: 0},
		{name: "unchanged quantity", quantity: 5, available: 5, newQuantity: 5, wantAvailable: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			ledger := NewLedger(nil)
			book := seedBook(t, db, tt.quantity, tt.available)

			err := ledger.Reconcile(context.Background(), db, book.ID, tt.newQuantity)

			require.NoError(t, err)
			var got models.Book
			require.NoError(t, db.First(&got, "id = ?", book.ID).Error)
			assert.Equal(t, tt.newQuantity, got.Quantity)
			assert.Equal(t, tt.wantAvailable, got.Available)
		})
	}
}

func TestRemove(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 3, 3)

	require.NoError(t, ledger.Remove(context.Background(), db, book.ID))

	var count int64
	db.Model(&models.Book{}).Where("id = ?", book.ID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRemoveBorrowedBook(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)
	book := seedBook(t, db, 3, 2)

	err := ledger.Remove(context.Background(), db, book.ID)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 2, availableOf(t, db, book.ID))
}

func TestRemoveNotFound(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(nil)

	err := ledger.Remove(context.Background(), db, uuid.NewString())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
