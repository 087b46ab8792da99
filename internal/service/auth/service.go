package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/repository"
	"github.com/splax/moodjournal/pkg/crypto"
	jwtpkg "github.com/splax/moodjournal/pkg/jwt"
)

var (
	// ErrMissingFields indicates a required credential field was blank.
	ErrMissingFields = errors.New("missing required fields")
	// ErrPasswordTooLong indicates the password exceeds what the hash function accepts.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrFieldTooLong indicates the name or email exceeds its stored width.
	ErrFieldTooLong = errors.New("name or email too long")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing, invalid or expired bearer token.
	ErrUnauthenticated = errors.New("authentication required")
)

// Config carries token settings.
type Config struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    Config
	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg Config) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	dummy, _ := crypto.HashPassword("moodjournal-timing-equaliser")
	return Service{users: users, logger: logger, cfg: cfg, dummyHash: dummy}
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresIn time.Duration
	User      *domain.User
}

// Signup registers a new user. The plaintext password is only handed to the hash function.
func (s Service) Signup(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingFields
	}
	if !domain.FitsColumns(name, email) {
		return nil, ErrFieldTooLong
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		if errors.Is(err, repository.ErrInvalidArgument) {
			return nil, fmt.Errorf("%w: %v", ErrFieldTooLong, err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login authenticates a user and returns a bearer token.
func (s Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, ErrMissingFields
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = crypto.ComparePassword(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	token, err := jwtpkg.GenerateToken(strconv.FormatInt(user.ID, 10), user.Name, user.Email, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return &Session{Token: token, ExpiresIn: s.cfg.AccessTokenTTL, User: user}, nil
}

// Authenticate validates a bearer token and returns the user named by its subject.
// Name and email claims are ignored; the user is re-read from the store.
func (s Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: malformed subject", ErrUnauthenticated)
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown subject", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
