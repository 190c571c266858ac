package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
	"github.com/jwalitptl/pathology-report-api/pkg/auth"
	"github.com/jwalitptl/pathology-report-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const bcryptCost = 12

type Service struct {
	userRepo repository.UserRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
}

func NewService(userRepo repository.UserRepository, jwtSvc auth.JWTService) *Service {
	return &Service{
		userRepo: userRepo,
		jwtSvc:   jwtSvc,
		hasher:   security.NewBcryptHasher(bcryptCost),
	}
}

func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtSvc.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &model.TokenResponse{Token: token, Role: user.Role}, nil
}

func (s *Service) ValidateToken(token string) (*auth.Claims, error) {
	return s.jwtSvc.ValidateToken(token)
}

// EnsureUser creates username with role unless it already exists. It reports
// whether a user was created.
func (s *Service) EnsureUser(ctx context.Context, username, password, role string) (bool, error) {
	_, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.Create(ctx, &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	}); err != nil {
		return false, err
	}
	return true, nil
}
