package catalog

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"lms/pkg/cache"
	apperrors "lms/pkg/errors"
	"lms/pkg/inventory"
	"lms/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BooksVersionKey is bumped whenever existing book data changes. Readers
// that cache views embedding book fields fold it into their keys.
const BooksVersionKey = "catalog:books:version"

const booksVersionTTL = 24 * time.Hour

type BookInput struct {
	Title         string    `json:"title" binding:"required"`
	Author        string    `json:"author"`
	Description   string    `json:"description"`
	Quantity      int       `json:"quantity" binding:"min=0"`
	PublishedDate time.Time `json:"publishedDate"`
	CategoryID    uint      `json:"categoryId" binding:"required"`
}

type BookFilter struct {
	Search     string
	CategoryID uint
	PageIndex  int
	PageSize   int
}

type Service struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	cache  cache.Cache
	logger *zap.Logger
}

// NewService builds the catalog. c may be nil when nothing caches book data.
func NewService(db *gorm.DB, ledger *inventory.Ledger, c cache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ledger == nil {
		ledger = inventory.NewLedger(logger)
	}
	return &Service{db: db, ledger: ledger, cache: c, logger: logger}
}

func (s *Service) AddCategory(ctx context.Context, name, description string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewInvalidRequest("category name is required", "")
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Category{}).Where("name = ?", name).Count(&existing).Error; err != nil {
		return nil, apperrors.NewInternalError("failed to check category", err)
	}
	if existing > 0 {
		return nil, apperrors.NewConflict("category already exists", "Name: "+name)
	}

	category := models.Category{Name: name, Description: description}
	if err := s.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, apperrors.NewInternalError("failed to create category", err)
	}
	return &category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := s.db.WithContext(ctx).Order("name").Find(&categories).Error; err != nil {
		return nil, apperrors.NewInternalError("failed to list categories", err)
	}
	return categories, nil
}

// AddBook registers a new title with every copy available.
func (s *Service) AddBook(ctx context.Context, in BookInput) (*models.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate(in); err != nil {
		return nil, err
	}

	book := models.Book{
		ID:            uuid.New().String(),
		Title:         in.Title,
		Author:        in.Author,
		Description:   in.Description,
		Quantity:      in.Quantity,
		Available:     in.Quantity,
		PublishedDate: in.PublishedDate,
		CategoryID:    in.CategoryID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkCategory(tx, in.CategoryID); err != nil {
			return err
		}
		if err := s.checkTitle(tx, in.Title, ""); err != nil {
			return err
		}
		return tx.Omit("Category").Create(&book).Error
	})
	if err != nil {
		return nil, apperrors.InTransaction("add book", err)
	}

	s.logger.Info("Book added", zap.String("book_id", book.ID), zap.String("title", book.Title))
	return &book, nil
}

func (s *Service) GetBook(ctx context.Context, id string) (*models.Book, error) {
	var book models.Book
	err := s.db.WithContext(ctx).Preload("Category").Where("id = ?", id).Take(&book).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("book", id)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load book", err)
	}
	return &book, nil
}

// UpdateBook edits a book's metadata. A quantity change shifts availability
// by the same amount, in the same transaction.
func (s *Service) UpdateBook(ctx context.Context, id string, in BookInput) (*models.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate(in); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Book
		if err := tx.Select("id", "quantity").Where("id = ?", id).Take(&current).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("book", id)
			}
			return err
		}
		if err := s.checkCategory(tx, in.CategoryID); err != nil {
			return err
		}
		if err := s.checkTitle(tx, in.Title, id); err != nil {
			return err
		}

		err := tx.Model(&models.Book{}).Where("id = ?", id).Updates(map[string]interface{}{
			"title":          in.Title,
			"author":         in.Author,
			"description":    in.Description,
			"published_date": in.PublishedDate,
			"category_id":    in.CategoryID,
		}).Error
		if err != nil {
			return err
		}

		if in.Quantity != current.Quantity {
			return s.ledger.Reconcile(ctx, tx, id, in.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.InTransaction("update book", err)
	}
	s.booksChanged(ctx, id)

	return s.GetBook(ctx, id)
}

// DeleteBook removes a book only while none of its copies are out.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ledger.Remove(ctx, tx, id)
	})
	if err != nil {
		return apperrors.InTransaction("delete book", err)
	}
	s.booksChanged(ctx, id)
	s.logger.Info("Book deleted", zap.String("book_id", id))
	return nil
}

func (s *Service) ListBooks(ctx context.Context, f BookFilter) (models.Page[models.Book], error) {
	pageIndex, pageSize := models.NormalizePaging(f.PageIndex, f.PageSize)

	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Book{})
		if term := strings.TrimSpace(f.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			q = q.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", like, like)
		}
		if f.CategoryID != 0 {
			q = q.Where("category_id = ?", f.CategoryID)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return models.Page[models.Book]{}, apperrors.NewInternalError("failed to count books", err)
	}
	if total == 0 {
		return models.Page[models.Book]{}, apperrors.NewEmptyResult("books")
	}

	var books []models.Book
	err := filtered().Preload("Category").
		Order("title").
		Offset((pageIndex - 1) * pageSize).
		Limit(pageSize).
		Find(&books).Error
	if err != nil {
		return models.Page[models.Book]{}, apperrors.NewInternalError("failed to list books", err)
	}
	return models.NewPage(books, total, pageIndex, pageSize), nil
}

func (s *Service) booksChanged(ctx context.Context, bookID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, BooksVersionKey, booksVersionTTL); err != nil {
		s.logger.Warn("Failed to bump catalog version",
			zap.String("book_id", bookID),
			zap.Error(err),
		)
	}
}

func validate(in BookInput) error {
	if in.Title == "" {
		return apperrors.NewInvalidRequest("title is required", "")
	}
	if in.Quantity < 0 {
		return apperrors.NewInvalidRequest("quantity must not be negative", "")
	}
	if in.CategoryID == 0 {
		return apperrors.NewInvalidRequest("category is required", "")
	}
	return nil
}

func (s *Service) checkCategory(tx *gorm.DB, id uint) error {
	var n int64
	if err := tx.Model(&models.Category{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewNotFound("category", id)
	}
	return nil
}

func (s *Service) checkTitle(tx *gorm.DB, title, exceptID string) error {
	q := tx.Model(&models.Book{}).Where("title = ?", title)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperrors.NewConflict("a book with this title already exists", "Title: "+title)
	}
	return nil
}
