package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fairtrace/internal/config"
	"fairtrace/internal/dto"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
	bcryptCost   = 12
)

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error)
	CreateUser(ctx context.Context, caller Caller, req dto.CreateUserRequest) (*dto.UserResponse, error)
	ListUsers(ctx context.Context, caller Caller, nodeID uuid.UUID) ([]dto.UserResponse, error)
	SetUserActive(ctx context.Context, caller Caller, id uuid.UUID, active bool) error
}

type authService struct {
	repo     repository.UserRepository
	nodeRepo repository.NodeRepository
	cfg      *config.Config
}

func NewAuthService(repo repository.UserRepository, nodeRepo repository.NodeRepository, cfg *config.Config) AuthService {
	return &authService{repo: repo, nodeRepo: nodeRepo, cfg: cfg}
}

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error) {
	token, err := jwt.Parse(refreshToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["type"] != tokenRefresh {
		return nil, ErrInvalidCredentials
	}
	userIDStr, _ := claims["user_id"].(string)
	uid, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.FindByID(ctx, uid)
	if err != nil || !user.Active {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *authService) CreateUser(ctx context.Context, caller Caller, req dto.CreateUserRequest) (*dto.UserResponse, error) {
	nodeID, err := uuid.Parse(req.NodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: node_id", ErrInvalidInput)
	}
	role := model.UserRole(req.Role)
	if role == "" {
		role = model.RoleMember
	}
	// members may add members to their own node only
	if !caller.Admin && (nodeID != caller.NodeID || role == model.RoleAdmin) {
		return nil, ErrForbidden
	}
	if _, err := s.nodeRepo.FindByID(ctx, nodeID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		NodeID:       nodeID,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *authService) ListUsers(ctx context.Context, caller Caller, nodeID uuid.UUID) ([]dto.UserResponse, error) {
	if !caller.Admin && caller.NodeID != nodeID {
		return nil, ErrForbidden
	}
	users, err := s.repo.ListByNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.UserResponse, len(users))
	for i := range users {
		resp[i] = toUserResponse(&users[i])
	}
	return resp, nil
}

func (s *authService) SetUserActive(ctx context.Context, caller Caller, id uuid.UUID, active bool) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !caller.Admin && caller.NodeID != user.NodeID {
		return ErrForbidden
	}
	return s.repo.SetActive(ctx, id, active)
}

func (s *authService) issue(user *model.User) (*dto.LoginResponse, error) {
	access, err := s.generateToken(user, tokenAccess, time.Duration(s.cfg.JWTExpirationHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	refresh, err := s.generateToken(user, tokenRefresh, time.Duration(s.cfg.JWTRefreshHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    s.cfg.JWTExpirationHours * 3600,
		User:         toUserResponse(user),
	}, nil
}

func (s *authService) generateToken(user *model.User, kind string, duration time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"node_id": user.NodeID.String(),
		"role":    string(user.Role),
		"type":    kind,
		"exp":     time.Now().Add(duration).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:     u.ID.String(),
		NodeID: u.NodeID.String(),
		Email:  u.Email,
		Name:   u.Name,
		Role:   string(u.Role),
		Active: u.Active,
	}
}
