package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"qingyin-guild/internal/model"
	"qingyin-guild/internal/pkg/jwtutil"
	"qingyin-guild/internal/repository"
)

const (
	minUsernameLen   = 2
	maxUsernameLen   = 20
	minPasswordLen   = 6
	// bcrypt rejects longer input
	maxPasswordBytes = 72

	generatedPasswordLen     = 8
	generatedPasswordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	loginMessage      = "Login successful!"
	adminLoginMessage = "Welcome back, guild master!"
)

type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	// AdminUsername is the designated guild master account.
	AdminUsername string
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

type AuthService struct {
	userRepo   *repository.UserRepository
	characters CharacterPurger
	cfg        AuthConfig
	logger     *zap.Logger
}

type RegisterInput struct {
	Username string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token   string
	Message string
	User    UserSummary
}

func NewAuthService(userRepo *repository.UserRepository, characters CharacterPurger, cfg AuthConfig, logger *zap.Logger) *AuthService {
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	if cfg.JWTExpiration <= 0 {
		cfg.JWTExpiration = 7 * 24 * time.Hour
	}
	return &AuthService{
		userRepo:   userRepo,
		characters: characters,
		cfg:        cfg,
		logger:     logger,
	}
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*UserSummary, error) {
	username := strings.TrimSpace(input.Username)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, ErrUsernameLength
	}
	if err := checkPassword(input.Password); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameExists
	}

	hash, err := s.hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameExists
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	summary := newUserSummary(user)
	return &summary, nil
}

// Login answers unknown usernames and wrong passwords with the same error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, ErrCredentialMissing
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredential
	}

	token, err := jwtutil.GenerateToken(s.cfg.JWTSecret, s.cfg.JWTExpiration, user.ID, user.Username, user.IsAdmin)
	if err != nil {
		return nil, err
	}

	message := loginMessage
	if user.Username == s.cfg.AdminUsername {
		message = adminLoginMessage
	}
	return &AuthResult{Token: token, Message: message, User: newUserSummary(user)}, nil
}

// Authenticate validates a bearer token and returns its claims.
func (s *AuthService) Authenticate(token string) (*jwtutil.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMissing
	}
	claims, err := jwtutil.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// RequireAdmin re-reads the user so a revoked admin flag takes effect before
// the token expires.
func (s *AuthService) RequireAdmin(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsAdmin {
		return nil, ErrAdminRequired
	}
	return user, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*UserSummary, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	summary := newUserSummary(user)
	return &summary, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return ErrCredentialMissing
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrWrongPassword
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePasswordHash(ctx, user.ID, hash)
}

// ResetPassword sets a new password for targetID on behalf of an admin. An
// empty newPassword generates a random one. The plaintext is returned once.
func (s *AuthService) ResetPassword(ctx context.Context, adminID, targetID uint, newPassword string) (string, error) {
	if _, err := s.RequireAdmin(ctx, adminID); err != nil {
		return "", err
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	if target == nil {
		return "", ErrUserNotFound
	}

	if newPassword == "" {
		newPassword, err = generatePassword()
		if err != nil {
			return "", err
		}
	} else if err := checkPassword(newPassword); err != nil {
		return "", err
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return "", err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, target.ID, hash); err != nil {
		return "", err
	}

	s.logger.Info("password reset by admin", zap.Uint("admin_id", adminID), zap.Uint("user_id", target.ID))
	return newPassword, nil
}

// DeleteAccount removes the user's characters (and their attachments) before
// the user row.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := s.characters.DeleteAllForUser(ctx, user.ID); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, user.ID); err != nil {
		return err
	}

	s.logger.Info("account deleted", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, newUserSummary(&users[i]))
	}
	return summaries, nil
}

// EnsureAdmin creates the guild master account on first start.
func (s *AuthService) EnsureAdmin(ctx context.Context, password string) error {
	username := s.cfg.AdminUsername
	if username == "" {
		return nil
	}
	if err := checkPassword(password); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if err := s.userRepo.Create(ctx, &model.User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
	}); err != nil {
		return err
	}

	s.logger.Info("admin account created", zap.String("username", username))
	return nil
}

func (s *AuthService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.HashCost)
	if err != nil {
		return "", fmt.Errorf("hash password failed: %w", err)
	}
	return string(hash), nil
}

func checkPassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func generatePassword() (string, error) {
	upper := big.NewInt(int64(len(generatedPasswordCharset)))
	buf := make([]byte, generatedPasswordLen)
	for i := range buf {
		n, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return "", fmt.Errorf("generate password failed: %w", err)
		}
		buf[i] = generatedPasswordCharset[n.Int64()]
	}
	return string(buf), nil
}
