package borrowing

import (
	"context"
	"time"

	apperrors "lms/pkg/errors"
	"lms/pkg/models"
)

const (
	MonthlyLimit       = 3
	MaxBooksPerRequest = 5
	RequestTTL         = 30 * 24 * time.Hour
)

// monthWindow returns [first of month, first of next month) in t's location.
func monthWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// checkEligibility runs before any transaction is opened. The monthly count
// is a plain read, so two concurrent creations may both pass it.
func (s *Service) checkEligibility(ctx context.Context, requestorID string, bookIDs []string) error {
	if requestorID == "" {
		return apperrors.NewInvalidRequest("requestor is required", "")
	}
	if len(bookIDs) == 0 {
		return apperrors.NewInvalidRequest("a borrowing request needs at least one book", "")
	}
	if len(bookIDs) > MaxBooksPerRequest {
		return apperrors.NewLimitExceeded("cannot borrow more than 5 books in one request", MaxBooksPerRequest, len(bookIDs))
	}

	seen := make(map[string]struct{}, len(bookIDs))
	for _, id := range bookIDs {
		if id == "" {
			return apperrors.NewInvalidRequest("book id is required", "")
		}
		if _, dup := seen[id]; dup {
			return apperrors.NewInvalidRequest("a book can only appear once per request", "Book ID: "+id)
		}
		seen[id] = struct{}{}
	}

	if _, err := s.directory.GetUser(ctx, requestorID); err != nil {
		return err
	}

	count, err := s.GetMonthlyRequestCount(ctx, requestorID)
	if err != nil {
		return err
	}
	if count >= MonthlyLimit {
		return apperrors.NewLimitExceeded("monthly borrowing request limit reached", MonthlyLimit, count)
	}
	return nil
}

// GetMonthlyRequestCount counts the user's requests made this calendar month.
func (s *Service) GetMonthlyRequestCount(ctx context.Context, userID string) (int, error) {
	start, end := monthWindow(s.clock.Now())

	var count int64
	err := s.db.WithContext(ctx).Model(&models.BorrowingRequest{}).
		Where("requestor_id = ? AND date_request >= ? AND date_request < ?", userID, start.UTC(), end.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.NewInternalError("failed to count borrowing requests", err)
	}
	return int(count), nil
}
