// Package borrowing implements the borrowing request lifecycle: the
// eligibility rules applied before a request is accepted, the
// Waiting/Approved/Rejected state machine, and the read queries over
// requests. Stock movements go through the inventory ledger on the same
// transaction as the request rows they belong to.
package borrowing

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"lms/pkg/cache"
	apperrors "lms/pkg/errors"
	"lms/pkg/inventory"
	"lms/pkg/models"
	"lms/pkg/notify"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserDirectory resolves user ids to profiles.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Dependencies struct {
	DB        *gorm.DB
	Ledger    *inventory.Ledger
	Directory UserDirectory
	Notifier  notify.Notifier
	Cache     cache.Cache
	CacheTTL  time.Duration
	Clock     clock.Clock
	Logger    *zap.Logger
}

type Service struct {
	db        *gorm.DB
	ledger    *inventory.Ledger
	directory UserDirectory
	notifier  notify.Notifier
	cache     cache.Cache
	cacheTTL  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		db:        deps.DB,
		ledger:    deps.Ledger,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		clock:     deps.Clock,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ledger == nil {
		s.ledger = inventory.NewLedger(s.logger)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	return s
}

// CreateBorrowingRequest records a Waiting request and takes one copy of
// every listed book out of circulation. Either all lines succeed or nothing
// is persisted.
func (s *Service) CreateBorrowingRequest(ctx context.Context, requestorID string, bookIDs []string) (*models.BorrowingRequest, error) {
	if err := s.checkEligibility(ctx, requestorID, bookIDs); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	req := &models.BorrowingRequest{
		RequestorID: requestorID,
		DateRequest: now,
		DateExpired: now.Add(RequestTTL),
		Status:      models.StatusWaiting,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(req).Error; err != nil {
			return err
		}
		for _, bookID := range bookIDs {
			if err := s.ledger.Decrement(ctx, tx, bookID, 1); err != nil {
				return err
			}
			detail := models.BorrowingRequestDetail{BorrowingRequestID: req.ID, BookID: bookID}
			if err := tx.Omit(clause.Associations).Create(&detail).Error; err != nil {
				return err
			}
			req.Details = append(req.Details, detail)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("Borrowing request rejected",
			zap.String("requestor_id", requestorID),
			zap.Strings("book_ids", bookIDs),
			zap.Error(err),
		)
		return nil, apperrors.InTransaction("create borrowing request", err)
	}

	s.logger.Info("Borrowing request created",
		zap.Uint("request_id", req.ID),
		zap.String("requestor_id", requestorID),
		zap.Int("books", len(bookIDs)),
	)
	return req, nil
}

// UpdateBorrowingRequestStatus records a librarian's decision.
//
//	Waiting  -> Approved  stock unchanged
//	Waiting  -> Rejected  one copy of every book returned
//	X        -> X         no-op
//	terminal -> other     Conflict
//
// The requestor is notified after commit; delivery problems are logged and
// never undo the decision.
func (s *Service) UpdateBorrowingRequestStatus(ctx context.Context, requestID uint, status models.Status, approverID string) error {
	if !status.Valid() {
		return apperrors.NewInvalidRequest("invalid status", fmt.Sprintf("status: %d", int(status)))
	}
	if approverID == "" {
		return apperrors.NewInvalidRequest("approver is required", "")
	}

	approver, err := s.directory.GetUser(ctx, approverID)
	if err != nil {
		return err
	}

	var req models.BorrowingRequest
	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Details").Take(&req, requestID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("borrowing request", requestID)
			}
			return err
		}

		if req.Status == status {
			return nil
		}
		if req.Status.Terminal() {
			return apperrors.NewConflict("borrowing request has already been decided",
				fmt.Sprintf("Request ID: %d, Status: %s", requestID, req.Status))
		}

		res := tx.Model(&models.BorrowingRequest{}).
			Where("id = ? AND status = ?", requestID, req.Status).
			Updates(map[string]interface{}{
				"status":      status,
				"approver_id": approverID,
				"updated_at":  s.clock.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NewConflict("borrowing request was decided concurrently",
				fmt.Sprintf("Request ID: %d", requestID))
		}

		if status == models.StatusRejected {
			for _, d := range req.Details {
				if err := s.ledger.Increment(ctx, tx, d.BookID, 1); err != nil {
					return err
				}
			}
		}

		req.Status = status
		req.ApproverID = &approverID
		changed = true
		return nil
	})
	if err != nil {
		return apperrors.InTransaction("update borrowing request status", err)
	}
	if !changed {
		s.logger.Debug("Borrowing request status unchanged",
			zap.Uint("request_id", requestID),
			zap.String("status", status.String()),
		)
		return nil
	}

	s.invalidate(ctx, requestID)
	s.logger.Info("Borrowing request decided",
		zap.Uint("request_id", requestID),
		zap.String("status", status.String()),
		zap.String("approver_id", approverID),
	)

	s.notifyDecision(ctx, &req, approver)
	return nil
}

func (s *Service) notifyDecision(ctx context.Context, req *models.BorrowingRequest, approver *models.User) {
	requestor, err := s.directory.GetUser(ctx, req.RequestorID)
	if err != nil {
		s.logger.Warn("Skipping decision notification, requestor lookup failed",
			zap.Uint("request_id", req.ID),
			zap.String("requestor_id", req.RequestorID),
			zap.Error(err),
		)
		return
	}

	if err := s.notifier.Notify(ctx, notify.NewDecision(req, requestor, approver)); err != nil {
		s.logger.Warn("Failed to send decision notification",
			zap.Uint("request_id", req.ID),
			zap.String("to", requestor.Email),
			zap.Error(err),
		)
	}
}

// DeleteBorrowingRequest removes a request and its lines. Stock is not
// returned, even for a request that was still Waiting.
func (s *Service) DeleteBorrowingRequest(ctx context.Context, requestID uint) error {
	var req models.BorrowingRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "status").Take(&req, requestID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("borrowing request", requestID)
			}
			return err
		}
		if err := tx.Where("borrowing_request_id = ?", requestID).Delete(&models.BorrowingRequestDetail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.BorrowingRequest{}, requestID).Error
	})
	if err != nil {
		return apperrors.InTransaction("delete borrowing request", err)
	}

	s.invalidate(ctx, requestID)
	if req.Status == models.StatusWaiting {
		s.logger.Warn("Deleted a waiting borrowing request, reserved copies were not returned",
			zap.Uint("request_id", requestID),
		)
	} else {
		s.logger.Info("Borrowing request deleted", zap.Uint("request_id", requestID))
	}
	return nil
}

// versionTTL outlives any cached detail by far; an expired counter only
// restarts at 0 once entries built under it are gone.
const versionTTL = 24 * time.Hour

func versionKey(requestID uint) string {
	return "borrowing:request:" + strconv.FormatUint(uint64(requestID), 10) + ":version"
}

// invalidate runs after commit. Bumping the version rather than deleting the
// entry also covers readers that loaded the old row and have not stored it yet.
func (s *Service) invalidate(ctx context.Context, requestID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, versionKey(requestID), versionTTL); err != nil {
		s.logger.Warn("Failed to invalidate cached borrowing request",
			zap.Uint("request_id", requestID),
			zap.Error(err),
		)
	}
}
