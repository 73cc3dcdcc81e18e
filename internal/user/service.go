package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/auth"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
)

var (
	// ErrInvalidCredentials 用户名或口令不对（不区分是哪个）。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserDisabled 账号已停用。
	ErrUserDisabled = errors.New("user is disabled")
	// ErrUsernameTaken 用户名已存在。
	ErrUsernameTaken = errors.New("username already exists")
)

// Service 账号注册、登录与管理。
type Service struct {
	repo    *Repo
	authCfg config.AuthConfig
}

func NewService(repo *Repo, authCfg config.AuthConfig) *Service {
	return &Service{repo: repo, authCfg: authCfg}
}

// RegisterInput 新账号入参。
type RegisterInput struct {
	Username string
	Password string
	FullName string
	Phone    string
	Email    string
	Roles    []string
}

// Register 建账号。不给角色时默认只有 field。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if username == "" || in.Password == "" {
		return nil, fmt.Errorf("username/password required")
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{RoleField}
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		Email:        strings.TrimSpace(in.Email),
		Roles:        RolesJoin(roles),
		Active:       true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login 校验口令并签发访问令牌。
func (s *Service) Login(ctx context.Context, username, password string) (*User, string, time.Time, error) {
	if s == nil || s.repo == nil {
		return nil, "", time.Time{}, fmt.Errorf("service not initialized")
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	u, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !u.Active {
		return nil, "", time.Time{}, ErrUserDisabled
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, exp, err := auth.GenerateAccessToken(s.authCfg, u.ID, u.RolesSlice(), s.authCfg.TokenTTL())
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return u, token, exp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	return s.repo.FindByID(ctx, strings.TrimSpace(id))
}

func (s *Service) List(ctx context.Context, f ListFilter, offset, limit int) ([]User, int64, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("service not initialized")
	}
	return s.repo.List(ctx, f, offset, limit)
}

// SetActive 停用/恢复账号。停用的账号登不进来，历史记录保留。
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	u, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if u.Active == active {
		return nil
	}
	u.Active = active
	return s.repo.Save(ctx, u)
}

// SetRoles 整体替换账号角色。
func (s *Service) SetRoles(ctx context.Context, id string, roles []string) (*User, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	joined := RolesJoin(roles)
	if joined == "" {
		return nil, fmt.Errorf("at least one role required")
	}
	u, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	u.Roles = joined
	if err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureAdmin 首次启动时种管理员账号。同名账号已存在就什么都不做，
// username 或 password 留空也不做。
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	_, err := s.Register(ctx, RegisterInput{
		Username: username,
		Password: password,
		FullName: "Administrador",
		Roles:    []string{RoleAdmin},
	})
	return err
}

// ChangePassword 校验旧口令后换新口令。
func (s *Service) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	u, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !VerifyPassword(oldPassword, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return s.repo.Save(ctx, u)
}
