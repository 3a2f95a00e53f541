package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"EstouBem/internal/model"
	"EstouBem/internal/model/dto"
	"EstouBem/internal/repository"
	pkgerrors "EstouBem/pkg/errors"
)

const maxDisplayNameLength = 64

var (
	userService *UserService
	userOnce    sync.Once
)

func User() *UserService {
	userOnce.Do(func() {
		userService = NewUserService(defaultStore(), nil)
	})
	return userService
}

type UserService struct {
	store repository.Store
	now   func() time.Time
}

func NewUserService(store repository.Store, now func() time.Time) *UserService {
	if now == nil {
		now = nowUTC
	}
	return &UserService{store: store, now: now}
}

// Profile 第一次访问时创建用户
func (s *UserService) Profile(ctx context.Context, userID string) (*dto.UserProfile, error) {
	user, err := s.store.EnsureUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return toProfile(user), nil
}

// UpdateProfile 显示名出现在发给紧急联系人的告警里
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req dto.UpdateProfileRequest) (*dto.UserProfile, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
		return nil, pkgerrors.InvalidRequest
	}

	user, err := s.store.EnsureUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.store.UpdateDisplayName(ctx, userID, name); err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	user.DisplayName = name

	return toProfile(user), nil
}

func toProfile(user *model.User) *dto.UserProfile {
	return &dto.UserProfile{
		CreatedAt:   user.CreatedAt,
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
	}
}
