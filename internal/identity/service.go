package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Service provisions accounts and authenticates actors. Provisioning is the
// one place role defaults are applied; nothing downstream infers roles.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewService(repo Repository, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// ProvisionInput describes a new account.
type ProvisionInput struct {
	Username string
	Password string
	FullName string
	Roles    []Role
}

// Provision creates a fully-formed account. New accounts default to the
// citizen role; officer and chairman are granted explicitly.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (*User, error) {
	if input.Username == "" {
		return nil, &workflows.ValidationError{Field: "username", Message: "must not be empty"}
	}
	if len(input.Password) < 8 {
		return nil, &workflows.ValidationError{Field: "password", Message: "must be at least 8 characters"}
	}

	existing, err := s.repo.GetUserByUsername(ctx, input.Username)
	if err != nil {
		return nil, &workflows.StorageError{Op: "lookup user", Err: err}
	}
	if existing != nil {
		return nil, &workflows.ValidationError{Field: "username", Message: "already taken"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	roles := input.Roles
	if len(roles) == 0 {
		roles = []Role{RoleCitizen}
	}
	roleStrs := make(pq.StringArray, len(roles))
	for i, r := range roles {
		roleStrs[i] = string(r)
	}

	user := &User{
		ID:           uuid.New(),
		Username:     input.Username,
		FullName:     input.FullName,
		PasswordHash: string(hash),
		Roles:        roleStrs,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, &workflows.StorageError{Op: "create user", Err: err}
	}

	s.logger.Info("Account provisioned",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Strings("roles", roleStrs))

	return user, nil
}

// Authenticate verifies credentials and issues a signed token carrying the
// actor's role set.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, &workflows.StorageError{Op: "lookup user", Err: err}
	}
	if user == nil {
		return "", nil, &workflows.ForbiddenError{Action: "login"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, &workflows.ForbiddenError{Action: "login"}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"name":     user.FullName,
		"roles":    []string(user.Roles),
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

// ParseToken validates a token and reconstructs the actor context from its
// claims.
func (s *Service) ParseToken(tokenString string) (*Actor, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, &workflows.ForbiddenError{Action: "authenticate"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &workflows.ForbiddenError{Action: "authenticate"}
	}

	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, &workflows.ForbiddenError{Action: "authenticate"}
	}

	actor := &Actor{ID: id}
	actor.Username, _ = claims["username"].(string)
	actor.FullName, _ = claims["name"].(string)
	if rawRoles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range rawRoles {
			if s, ok := r.(string); ok {
				actor.Roles = append(actor.Roles, Role(s))
			}
		}
	}
	return actor, nil
}
