// Package inventory owns the available-copies counter of every book.
//
// Every mutation is a single conditional UPDATE/DELETE evaluated by the
// database, and the affected-row count tells whether the guard held. There
// is no read-modify-write in Go code, so concurrent borrowers of the same
// book cannot lose each other's updates. All methods run on the caller's
// transaction handle and never commit on their own.
package inventory

import (
	"context"
	stderrors "errors"
	"fmt"

	apperrors "lms/pkg/errors"
	"lms/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Ledger struct {
	logger *zap.Logger
}

func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger}
}

// Decrement takes n copies of the book out of circulation.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, bookID string, n int) error {
	if n <= 0 {
		return apperrors.NewInvalidRequest("decrement must be positive", fmt.Sprintf("n: %d", n))
	}

	res := tx.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND available > 0 AND available >= ? AND available <= quantity", bookID, n).
		Update("available", gorm.Expr("available - ?", n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		l.logger.Debug("Book availability decremented", zap.String("book_id", bookID), zap.Int("n", n))
		return nil
	}

	book, err := l.probe(ctx, tx, bookID)
	if err != nil {
		return err
	}
	if book.Available > book.Quantity {
		l.logger.Error("Book availability exceeds quantity",
			zap.String("book_id", bookID),
			zap.Int("available", book.Available),
			zap.Int("quantity", book.Quantity),
		)
	}
	return apperrors.NewUnavailable(bookID)
}

// Increment returns n copies to circulation. The result never exceeds the
// book's quantity.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, bookID string, n int) error {
	if n <= 0 {
		return apperrors.NewInvalidRequest("increment must be positive", fmt.Sprintf("n: %d", n))
	}

	res := tx.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Update("available", gorm.Expr("CASE WHEN available + ? > quantity THEN quantity ELSE available + ? END", n, n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("book", bookID)
	}
	l.logger.Debug("Book availability incremented", zap.String("book_id", bookID), zap.Int("n", n))
	return nil
}

// Reconcile sets a new total quantity and shifts availability by the same
// delta, never below zero.
func (l *Ledger) Reconcile(ctx context.Context, tx *gorm.DB, bookID string, newQuantity int) error {
	if newQuantity < 0 {
		return apperrors.NewInvalidRequest("quantity must not be negative", fmt.Sprintf("quantity: %d", newQuantity))
	}

	res := tx.WithContext(ctx).Model(&models.Book{}).
		Where("id = ?", bookID).
		Updates(map[string]interface{}{
			"available": gorm.Expr("CASE WHEN available + (? - quantity) < 0 THEN 0 ELSE available + (? - quantity) END", newQuantity, newQuantity),
			"quantity":  newQuantity,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NewNotFound("book", bookID)
	}
	return nil
}

// Remove deletes a book that has no copy out on loan.
func (l *Ledger) Remove(ctx context.Context, tx *gorm.DB, bookID string) error {
	res := tx.WithContext(ctx).
		Where("id = ? AND available >= quantity", bookID).
		Delete(&models.Book{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	book, err := l.probe(ctx, tx, bookID)
	if err != nil {
		return err
	}
	return apperrors.NewConflict("cannot delete this book, it is currently borrowed",
		fmt.Sprintf("Book ID: %s, Available: %d, Quantity: %d", bookID, book.Available, book.Quantity))
}

func (l *Ledger) probe(ctx context.Context, tx *gorm.DB, bookID string) (*models.Book, error) {
	var book models.Book
	err := tx.WithContext(ctx).Select("id", "available", "quantity").Where("id = ?", bookID).Take(&book).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("book", bookID)
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}
