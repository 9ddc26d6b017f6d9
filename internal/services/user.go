package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesadmin/internal/models"
	apperrors "salesadmin/pkg/errors"
	"salesadmin/pkg/pagination"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateUserRequest 创建用户请求
type CreateUserRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=50"`
	Email      string `json:"email" binding:"required,email,max=100"`
	Password   string `json:"password" binding:"required,min=8,max=72"`
	Role       string `json:"role" binding:"required,max=50"`
	IsActive   *bool  `json:"is_active"`
	ProjectIDs []uint `json:"project_ids"`
}

// UpdateUserRequest 更新用户请求
type UpdateUserRequest struct {
	Email      *string `json:"email" binding:"omitempty,email,max=100"`
	Password   *string `json:"password" binding:"omitempty,min=8,max=72"`
	Role       *string `json:"role" binding:"omitempty,max=50"`
	IsActive   *bool   `json:"is_active"`
	ProjectIDs *[]uint `json:"project_ids"`
}

// UserQuery 用户列表查询条件
type UserQuery struct {
	Keyword  string
	Role     string
	IsActive *bool
	Page     int
	PageSize int
}

// UserService 用户管理
type UserService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewUserService 创建用户服务
func NewUserService(db *gorm.DB, audit *AuditService) *UserService {
	return &UserService{db: db, audit: audit}
}

// Authenticate 校验用户名密码，成功后更新最后登录时间
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Unauthenticated("用户名或密码错误")
	}
	if err != nil {
		return nil, apperrors.Internal("查询用户失败", err)
	}
	if !user.CheckPassword(password) {
		return nil, apperrors.Unauthenticated("用户名或密码错误")
	}
	if !user.IsActive {
		return nil, apperrors.AccountDisabled("账号已被禁用")
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, apperrors.Internal("更新登录时间失败", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

// List 分页获取用户
func (s *UserService) List(ctx context.Context, q UserQuery) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	query := s.db.WithContext(ctx).Model(&models.User{})
	if q.Keyword != "" {
		like := containsPattern(q.Keyword)
		query = query.Where("username LIKE ? ESCAPE '\\' OR email LIKE ? ESCAPE '\\'", like, like)
	}
	if q.Role != "" {
		query = query.Where("role = ?", q.Role)
	}
	if q.IsActive != nil {
		query = query.Where("is_active = ?", *q.IsActive)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Internal("查询用户失败", err)
	}
	if err := query.Order("id").Scopes(pagination.Paginate(q.Page, q.PageSize)).Find(&users).Error; err != nil {
		return nil, 0, apperrors.Internal("查询用户失败", err)
	}
	return users, total, nil
}

// GetByID 根据ID获取用户
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "用户不存在")
	}
	return &user, nil
}

// Create 创建用户
func (s *UserService) Create(ctx context.Context, actor Actor, req CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if err := s.ensureRole(ctx, req.Role); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, "username", username, 0); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, "email", email, 0); err != nil {
		return nil, err
	}

	user := &models.User{
		Username:   username,
		Email:      email,
		Role:       req.Role,
		IsActive:   req.IsActive == nil || *req.IsActive,
		ProjectIDs: datatypes.JSONSlice[uint](uniqueIDs(req.ProjectIDs)),
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, apperrors.Internal("设置密码失败", err)
	}

	err := s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, apperrors.Internal("创建用户失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionCreate,
			ResourceType: models.ResourceUser,
			ResourceID:   user.ID,
			After:        user,
			Description:  fmt.Sprintf("created user %s with role %s", user.Username, user.Role),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Update 更新用户，包括启用/禁用与角色调整
func (s *UserService) Update(ctx context.Context, actor Actor, id uint, req UpdateUserRequest) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *user

	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != user.Email {
			if err := s.ensureUnique(ctx, "email", email, id); err != nil {
				return nil, err
			}
			user.Email = email
		}
	}
	if req.Role != nil && *req.Role != user.Role {
		if err := s.ensureRole(ctx, *req.Role); err != nil {
			return nil, err
		}
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		if !*req.IsActive && actor.UserID == user.ID {
			return nil, apperrors.Validation("不能禁用自己的账号")
		}
		user.IsActive = *req.IsActive
	}
	if req.ProjectIDs != nil {
		user.ProjectIDs = datatypes.JSONSlice[uint](uniqueIDs(*req.ProjectIDs))
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			return nil, apperrors.Internal("设置密码失败", err)
		}
	}

	err = s.audit.Audit(ctx, actor, func() (*AuditEntry, error) {
		if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
			return nil, apperrors.Internal("更新用户失败", err)
		}
		return &AuditEntry{
			Action:       models.AuditActionUpdate,
			ResourceType: models.ResourceUser,
			ResourceID:   user.ID,
			Before:       before,
			After:        user,
			Description:  fmt.Sprintf("updated user %s", user.Username),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ensureRole 角色必须存在且启用
func (s *UserService) ensureRole(ctx context.Context, name string) error {
	var role models.Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Validationf("角色 %s 不存在", name)
	}
	if err != nil {
		return apperrors.Internal("查询角色失败", err)
	}
	if !role.IsActive {
		return apperrors.Validationf("角色 %s 已禁用", name)
	}
	return nil
}

func (s *UserService) ensureUnique(ctx context.Context, column, value string, excludeID uint) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return apperrors.Internal("查询用户失败", err)
	}
	if count > 0 {
		return apperrors.Validationf("%s %s 已存在", column, value)
	}
	return nil
}
