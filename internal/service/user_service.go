package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRegistrationPassword indicates the registration secret is incorrect.
	ErrInvalidRegistrationPassword = errors.New("invalid registration password")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidToken covers malformed, forged and expired access tokens.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	minPasswordLen  = 8
	maxPasswordLen  = 72 // bcrypt ignores the rest
	defaultTokenTTL = 24 * time.Hour
	tokenIssuer     = "tubeshelf"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// AuthConfig holds the account and token policy. RegisterPassword gates
// self-service sign up.
type AuthConfig struct {
	JWTSecret        string
	RegisterPassword string
	TokenTTL         time.Duration
}

// UserService registers API accounts and issues the tokens that
// authenticate every other request.
type UserService interface {
	Register(ctx context.Context, username, password, registerPassword string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.Session, error)
	// VerifyToken returns the id of the user a valid token was issued to.
	VerifyToken(token string) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type tokenClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type userService struct {
	users          repository.UserRepository
	secret         []byte
	registerSecret string
	tokenTTL       time.Duration
	now            func() time.Time
}

func NewUserService(users repository.UserRepository, cfg AuthConfig) UserService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &userService{
		users:          users,
		secret:         []byte(cfg.JWTSecret),
		registerSecret: strings.TrimSpace(cfg.RegisterPassword),
		tokenTTL:       cfg.TokenTTL,
		now:            time.Now,
	}
}

func (s *userService) Register(ctx context.Context, username, password, registerPassword string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, invalidf("username must be 3-32 letters, digits, '.', '_' or '-'")
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, invalidf("password must be %d-%d bytes", minPasswordLen, maxPasswordLen)
	}
	if s.registerSecret == "" {
		return nil, fmt.Errorf("registration secret is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(registerPassword)), []byte(s.registerSecret)) != 1 {
		return nil, ErrInvalidRegistrationPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{Username: username, PasswordHash: string(hash)}
	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}
	return publicUser(user), nil
}

// Login checks the password and issues a token. A failed login never says
// whether the username exists.
func (s *userService) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	token, err := s.sign(user, now, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	return &domain.Session{Token: token, ExpiresAt: expiresAt, User: *publicUser(user)}, nil
}

func (s *userService) VerifyToken(raw string) (int64, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: no user", ErrInvalidToken)
	}
	return claims.UserID, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return publicUser(user), nil
}

func (s *userService) sign(user *domain.User, now, expiresAt time.Time) (string, error) {
	claims := tokenClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func publicUser(user *domain.User) *domain.User {
	out := *user
	out.PasswordHash = ""
	return &out
}
