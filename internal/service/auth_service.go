package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/pkg/secret"
	"github.com/vedran77/rentals/pkg/validator"
)

const tokenTTL = 24 * time.Hour

var (
	ErrEmailTaken   = &domain.Error{Kind: domain.KindConflict, Msg: "email is already registered"}
	ErrInvalidCreds = errors.New("invalid email or password")
)

type AuthService struct {
	store      repository.DocumentStore
	collection string
	jwtSecret  []byte
	logger     *slog.Logger

	Now func() time.Time
}

func NewAuthService(store repository.DocumentStore, collection, jwtSecret string, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:      store,
		collection: collection,
		jwtSecret:  []byte(jwtSecret),
		logger:     logger,
		Now:        time.Now,
	}
}

type RegisterInput struct {
	Email       string             `json:"email" validate:"required,email,max=254"`
	DisplayName string             `json:"display_name" validate:"required,max=64"`
	Password    string             `json:"password" validate:"required,min=8,max=128"`
	Role        domain.AccountRole `json:"role" validate:"required,oneof=tenant landlord"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

// account is the stored form of a user.
type account struct {
	domain.User
	PasswordHash string `json:"password_hash"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)
	displayName := validator.SanitizeText(input.DisplayName, 64, false)
	if displayName == "" {
		return nil, domain.Validationf("display_name is required")
	}
	if input.Role != domain.AccountTenant && input.Role != domain.AccountLandlord {
		return nil, domain.Validationf("role must be tenant or landlord")
	}

	existing, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := secret.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	id := uuid.NewString()
	acct := account{
		User: domain.User{
			Email:       email,
			DisplayName: displayName,
			Role:        input.Role,
		},
		PasswordHash: hash,
	}
	doc, err := s.store.Create(repository.Privileged(ctx), s.collection, id, acct, domain.UserPermissions(id))
	if err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	created, err := decodeDocument[account](doc)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Registered user", "user_id", created.ID, "role", created.Role)

	return s.respond(&created.User)
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	acct, err := s.findByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrInvalidCreds
	}

	if !secret.Verify(input.Password, acct.PasswordHash) {
		return nil, ErrInvalidCreds
	}

	return s.respond(&acct.User)
}

// Me returns the profile of the principal on ctx.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	doc, err := s.store.Get(ctx, s.collection, userID)
	if err != nil {
		return nil, err
	}
	acct, err := decodeDocument[account](doc)
	if err != nil {
		return nil, err
	}
	return &acct.User, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*account, error) {
	list, err := s.store.List(repository.Privileged(ctx), s.collection, repository.Query{
		Filters: []repository.Filter{repository.Equal("email", email)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if len(list.Documents) == 0 {
		return nil, nil
	}
	return decodeDocument[account](&list.Documents[0])
}

func (s *AuthService) respond(user *domain.User) (*AuthResponse, error) {
	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	return &AuthResponse{User: user, AccessToken: token}, nil
}

func (s *AuthService) generateToken(user *domain.User) (string, error) {
	now := s.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"exp":  now.Add(tokenTTL).Unix(),
		"iat":  now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
