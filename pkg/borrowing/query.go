package borrowing

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"lms/pkg/cache"
	"lms/pkg/catalog"
	apperrors "lms/pkg/errors"
	"lms/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type BookLine struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type RequestDetail struct {
	ID            uint          `json:"id"`
	RequestorID   string        `json:"requestorId"`
	RequestorName string        `json:"requestorName"`
	ApproverID    *string       `json:"approverId,omitempty"`
	ApproverName  string        `json:"approverName,omitempty"`
	DateRequest   time.Time     `json:"dateRequest"`
	DateExpired   time.Time     `json:"dateExpired"`
	Status        models.Status `json:"status"`
	StatusText    string        `json:"statusText"`
	Books         []BookLine    `json:"books"`
}

type RequestSummary struct {
	ID            uint          `json:"id"`
	RequestorID   string        `json:"requestorId"`
	RequestorName string        `json:"requestorName"`
	ApproverName  string        `json:"approverName,omitempty"`
	DateRequest   time.Time     `json:"dateRequest"`
	DateExpired   time.Time     `json:"dateExpired"`
	Status        models.Status `json:"status"`
	StatusText    string        `json:"statusText"`
	BookCount     int           `json:"bookCount"`
}

// GetBorrowingRequestByID returns a request with requestor/approver names
// and its books. Cached entries are keyed by the request's version and the
// catalog's, so a decision or a book edit makes older entries unreachable.
func (s *Service) GetBorrowingRequestByID(ctx context.Context, requestID uint) (*RequestDetail, error) {
	key, cacheable := s.detailKey(ctx, requestID)
	if cacheable {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var detail RequestDetail
			if err := json.Unmarshal(raw, &detail); err == nil {
				return &detail, nil
			}
			s.logger.Warn("Discarding undecodable cache entry", zap.String("key", key))
		} else if !stderrors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	var req models.BorrowingRequest
	err := s.db.WithContext(ctx).
		Preload("Requestor").
		Preload("Approver").
		Preload("Details.Book").
		Take(&req, requestID).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("borrowing request", requestID)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load borrowing request", err)
	}

	detail := toDetail(&req)
	if cacheable {
		if raw, err := json.Marshal(detail); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
				s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return detail, nil
}

// detailKey reads the versions before the row is loaded. A write that
// commits after that point bumps a version, so whatever this read stores
// lands under a key nobody asks for again.
func (s *Service) detailKey(ctx context.Context, requestID uint) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	v, err := s.cache.Versions(ctx, versionKey(requestID), catalog.BooksVersionKey)
	if err != nil {
		s.logger.Warn("Cache version read failed, bypassing cache",
			zap.Uint("request_id", requestID),
			zap.Error(err),
		)
		return "", false
	}
	return fmt.Sprintf("borrowing:request:%d:v%d:c%d", requestID, v[0], v[1]), true
}

// ListBorrowingRequests pages over every request, newest first. A nil
// status lists all statuses.
func (s *Service) ListBorrowingRequests(ctx context.Context, status *models.Status, pageIndex, pageSize int) (models.Page[RequestSummary], error) {
	return s.list(ctx, "", status, pageIndex, pageSize)
}

// ListBorrowingRequestsByUser is ListBorrowingRequests restricted to one
// requestor. Both filters apply together.
func (s *Service) ListBorrowingRequestsByUser(ctx context.Context, userID string, status *models.Status, pageIndex, pageSize int) (models.Page[RequestSummary], error) {
	if userID == "" {
		return models.Page[RequestSummary]{}, apperrors.NewInvalidRequest("user id is required", "")
	}
	return s.list(ctx, userID, status, pageIndex, pageSize)
}

func (s *Service) list(ctx context.Context, userID string, status *models.Status, pageIndex, pageSize int) (models.Page[RequestSummary], error) {
	pageIndex, pageSize = models.NormalizePaging(pageIndex, pageSize)

	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.BorrowingRequest{})
		if userID != "" {
			q = q.Where("requestor_id = ?", userID)
		}
		if status != nil {
			q = q.Where("status = ?", *status)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return models.Page[RequestSummary]{}, apperrors.NewInternalError("failed to count borrowing requests", err)
	}
	if total == 0 {
		return models.Page[RequestSummary]{}, apperrors.NewEmptyResult("borrowing requests")
	}

	var rows []models.BorrowingRequest
	err := filtered().
		Preload("Requestor").
		Preload("Approver").
		Preload("Details").
		Order("date_request DESC").
		Order("id DESC").
		Offset((pageIndex - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return models.Page[RequestSummary]{}, apperrors.NewInternalError("failed to list borrowing requests", err)
	}

	items := make([]RequestSummary, 0, len(rows))
	for i := range rows {
		items = append(items, toSummary(&rows[i]))
	}
	return models.NewPage(items, total, pageIndex, pageSize), nil
}

func toDetail(req *models.BorrowingRequest) *RequestDetail {
	d := &RequestDetail{
		ID:            req.ID,
		RequestorID:   req.RequestorID,
		RequestorName: req.Requestor.UserName,
		ApproverID:    req.ApproverID,
		DateRequest:   req.DateRequest.UTC(),
		DateExpired:   req.DateExpired.UTC(),
		Status:        req.Status,
		StatusText:    req.Status.String(),
		Books:         make([]BookLine, 0, len(req.Details)),
	}
	if req.Approver != nil {
		d.ApproverName = req.Approver.UserName
	}
	for _, line := range req.Details {
		d.Books = append(d.Books, BookLine{
			BookID: line.BookID,
			Title:  line.Book.Title,
			Author: line.Book.Author,
		})
	}
	return d
}

func toSummary(req *models.BorrowingRequest) RequestSummary {
	s := RequestSummary{
		ID:            req.ID,
		RequestorID:   req.RequestorID,
		RequestorName: req.Requestor.UserName,
		DateRequest:   req.DateRequest.UTC(),
		DateExpired:   req.DateExpired.UTC(),
		Status:        req.Status,
		StatusText:    req.Status.String(),
		BookCount:     len(req.Details),
	}
	if req.Approver != nil {
		s.ApproverName = req.Approver.UserName
	}
	return s
}
