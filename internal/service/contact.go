package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"EstouBem/config"
	"EstouBem/internal/model"
	"EstouBem/internal/model/dto"
	"EstouBem/internal/repository"
	pkgerrors "EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
	"EstouBem/utils"
)

const maxContactNameLength = 128

var (
	contactService *ContactService
	contactOnce    sync.Once
)

func Contact() *ContactService {
	contactOnce.Do(func() {
		contactService = NewContactService(defaultStore(), config.Cfg.PhoneRegion, nil)
	})

	return contactService
}

// ContactService 每个用户一个紧急联系人，保存即覆盖
type ContactService struct {
	store  repository.Store
	region string
	now    func() time.Time
}

func NewContactService(store repository.Store, region string, now func() time.Time) *ContactService {
	if region == "" {
		region = "BR"
	}
	if now == nil {
		now = nowUTC
	}
	return &ContactService{store: store, region: region, now: now}
}

func (s *ContactService) Get(ctx context.Context, userID string) (*dto.ContactItem, error) {
	contact, err := s.store.GetContact(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, pkgerrors.ContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}

	return s.toItem(contact)
}

// Upsert 校验后加密保存手机号，第一次保存联系人时用户开始被监控
func (s *ContactService) Upsert(ctx context.Context, userID string, req dto.UpsertContactRequest) (*dto.ContactItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxContactNameLength {
		return nil, pkgerrors.ContactInvalid
	}

	phone, err := utils.NormalizePhone(req.Phone, s.region)
	if err != nil {
		return nil, pkgerrors.ContactInvalid
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, pkgerrors.ContactInvalid
		}
	}

	now := s.now()
	if _, err := s.store.EnsureUser(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	cipherText, err := utils.EncryptPhone(phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	contact := &model.TrustedContact{
		UserID:      userID,
		Name:        name,
		Email:       email,
		PhoneCipher: cipherText,
		PhoneHash:   utils.HashPhone(phone),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.UpsertContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("failed to save contact: %w", err)
	}

	logger.Logger.Info("Trusted contact saved",
		zap.String("user_id", userID),
		zap.String("phone_hash", contact.PhoneHash),
		zap.Bool("has_email", contact.HasEmail()),
	)

	return &dto.ContactItem{
		UpdatedAt:   contact.UpdatedAt,
		Name:        contact.Name,
		Email:       contact.Email,
		Phone:       utils.FormatPhoneDisplay(phone),
		PhoneMasked: utils.MaskPhone(phone),
	}, nil
}

// Delete 删除后该用户不再被缺席扫描
func (s *ContactService) Delete(ctx context.Context, userID string) error {
	deleted, err := s.store.DeleteContact(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if !deleted {
		return pkgerrors.ContactNotFound
	}

	logger.Logger.Info("Trusted contact removed", zap.String("user_id", userID))
	return nil
}

func (s *ContactService) toItem(contact *model.TrustedContact) (*dto.ContactItem, error) {
	phone, err := utils.DecryptPhone(contact.PhoneCipher)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}

	return &dto.ContactItem{
		UpdatedAt:   contact.UpdatedAt,
		Name:        contact.Name,
		Email:       contact.Email,
		Phone:       utils.FormatPhoneDisplay(phone),
		PhoneMasked: utils.MaskPhone(phone),
	}, nil
}
