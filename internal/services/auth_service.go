package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"prompt-chaining/backend/internal/auth"
	"prompt-chaining/backend/internal/repository"
	"prompt-chaining/backend/pkg/models"
)

const (
	// PasswordHashCost is the bcrypt cost used for new passwords.
	PasswordHashCost = 12
	minPasswordLen   = 8
)

var (
	ErrEmailInUse          = errors.New("email already in use")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
)

// ValidationError reports a malformed field in an account request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SignUpInput holds the fields of a new account.
type SignUpInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role,omitempty"`
}

// Tokens is an access and refresh token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refreshToken"`
}

// Session is returned by a successful login.
type Session struct {
	Tokens
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      models.Role `json:"role"`
}

// AuthService manages accounts and their tokens.
type AuthService struct {
	users      repository.UserStore
	tokens     *auth.TokenIssuer
	refreshTTL time.Duration
	hashCost   int
	logger     Logger
	now        func() time.Time
}

// NewAuthService creates a new AuthService. Refresh tokens live for
// refreshTTL.
func NewAuthService(users repository.UserStore, tokens *auth.TokenIssuer, refreshTTL time.Duration, logger Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		hashCost:   PasswordHashCost,
		logger:     logger,
		now:        time.Now,
	}
}

// SignUp creates an account. The role defaults to USER.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*models.User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	role, ok := models.ParseRole(in.Role)
	if !ok {
		return nil, &ValidationError{Field: "role", Message: "must be either user or admin"}
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	s.logger.Info("user signed up", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks the credentials and issues a new token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return &Session{
		Tokens:    *tokens,
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}, nil
}

// RefreshTokens exchanges an unexpired refresh token for a new pair. The
// old refresh token stops working.
func (s *AuthService) RefreshTokens(ctx context.Context, token string) (*Tokens, error) {
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}
	rt, err := s.users.GetRefreshToken(ctx, token, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, rt.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*Tokens, error) {
	access, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := &models.RefreshToken{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.refreshTTL).UTC(),
	}
	if err := s.users.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh.Token}, nil
}

func validateEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &ValidationError{Field: "email", Message: "invalid email format"}
	}
	return email, nil
}

// ValidatePassword enforces at least eight letters or digits with one
// lowercase letter, one uppercase letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return &ValidationError{Field: "password", Message: "must be at least 8 characters long"}
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case r > unicode.MaxASCII:
			return &ValidationError{Field: "password", Message: "must contain only letters and digits"}
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			return &ValidationError{Field: "password", Message: "must contain only letters and digits"}
		}
	}
	if !lower || !upper || !digit {
		return &ValidationError{
			Field:   "password",
			Message: "must contain at least one uppercase letter, one lowercase letter, and one number",
		}
	}
	return nil
}
