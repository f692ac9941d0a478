package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/crypto"
	"github.com/nowplaying/backend/internal/db"
	"github.com/nowplaying/backend/internal/models"
)

// AdminStore is the subset of db.Queries used for admin accounts.
type AdminStore interface {
	GetAdminByUsername(ctx context.Context, username string) (db.Admin, error)
	UpsertAdmin(ctx context.Context, arg db.UpsertAdminParams) error
}

// AdminService verifies admin credentials and issues bearer tokens.
type AdminService struct {
	store AdminStore
	auth  *AuthService
}

func NewAdminService(store AdminStore, auth *AuthService) *AdminService {
	return &AdminService{store: store, auth: auth}
}

// EnsureAdmin provisions (or re-keys) the configured admin account.
// Empty credentials are skipped.
func (s *AdminService) EnsureAdmin(ctx context.Context, username, adminID string) error {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(adminID) == "" {
		return nil
	}

	hash, err := crypto.HashAdminID(adminID, username)
	if err != nil {
		return fmt.Errorf("failed to hash admin id: %w", err)
	}

	err = s.store.UpsertAdmin(ctx, db.UpsertAdminParams{
		Username:    username,
		AdminIDHash: hash,
		Role:        RoleAdmin,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to provision admin: %w", err)
	}
	return nil
}

// Login checks the request against the stored admin and returns a signed token.
func (s *AdminService) Login(ctx context.Context, req models.AdminLoginRequest) (*models.AdminLoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.AdminID) == "" || req.Role == "" {
		return nil, apperror.New(apperror.KindBadRequest, "username, adminId and role are required")
	}
	if req.Role != RoleAdmin {
		return nil, apperror.New(apperror.KindUnauthorized, "Only admins can log in")
	}

	admin, err := s.store.GetAdminByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}

	ok, err := crypto.VerifyAdminID(req.AdminID, username, admin.AdminIDHash)
	if err != nil {
		return nil, err
	}
	if !ok || admin.Role != RoleAdmin {
		return nil, apperror.New(apperror.KindUnauthorized, "Invalid credentials")
	}

	token, err := s.auth.GenerateToken(admin.Username, admin.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &models.AdminLoginResponse{Token: token, Type: "Bearer"}, nil
}
