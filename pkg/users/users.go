package users

import (
	"context"
	stderrors "errors"
	"strings"

	apperrors "lms/pkg/errors"
	"lms/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	hasher Hasher
	logger *zap.Logger
}

func NewService(db *gorm.DB, hasher Hasher, logger *zap.Logger) *Service {
	return &Service{db: db, hasher: hasher, logger: logger}
}

type RegisterInput struct {
	UserName string
	Email    string
	Password string
	Role     string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.UserName == "" || in.Email == "" || in.Password == "" {
		return nil, apperrors.NewInvalidRequest("userName, email and password are required", "")
	}
	switch in.Role {
	case "":
		in.Role = models.RoleNormalUser
	case models.RoleNormalUser, models.RoleSuperUser:
	default:
		return nil, apperrors.NewInvalidRequest("unknown role", "Role: "+in.Role)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperrors.NewConflict("user already exists", "Email: "+in.Email)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		UserName:     in.UserName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return &user, nil
}

// Authenticate returns the user whose credentials match.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&user).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid email or password", "")
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid email or password", "")
	}
	return &user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("user", id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
