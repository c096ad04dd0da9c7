package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/logger"
)

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNothingToUpdate is returned for an empty profile update.
	ErrNothingToUpdate = errors.New("no fields to update")
)

const minPasswordLength = 6

// Registration is the payload of Register.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

// AddressInput is the payload of address create and update.
type AddressInput struct {
	FullName     string `json:"full_name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	IsDefault    bool   `json:"is_default"`
}

func (in AddressInput) validate() error {
	for field, v := range map[string]string{
		"full_name":     in.FullName,
		"phone":         in.Phone,
		"address_line1": in.AddressLine1,
		"city":          in.City,
		"state":         in.State,
		"postal_code":   in.PostalCode,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
		}
	}
	return nil
}

// Session is a signed-in user and their token.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Service implements accounts, profiles and addresses.
type Service struct {
	repo   Repository
	tokens *auth.Issuer
	now    func() time.Time
}

// NewService creates a user service.
func NewService(repo Repository, tokens *auth.Issuer) *Service {
	return &Service{repo: repo, tokens: tokens, now: func() time.Time { return time.Now().UTC() }}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, in Registration) (Session, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Session{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if strings.TrimSpace(in.Name) == "" {
		return Session{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return Session{}, ErrEmailRegistered
	} else if !errors.Is(err, ErrUserNotFound) {
		return Session{}, err
	}

	user, err := s.create(ctx, email, in.Password, strings.TrimSpace(in.Name), strings.TrimSpace(in.Phone), auth.RoleCustomer)
	if err != nil {
		return Session{}, err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", user.ID).
		Str("email", logger.RedactEmail(email)).
		Msg("users.registered")
	return s.session(user)
}

func (s *Service) create(ctx context.Context, email, password, name, phone, role string) (User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Phone:        phone,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		log := logger.FromContext(ctx)
		log.Info().
			Str("email", logger.RedactEmail(user.Email)).
			Msg("users.login_failed")
		return Session{}, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *Service) session(user User) (Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

// Get returns a user.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// UpdateProfile changes name and phone.
func (s *Service) UpdateProfile(ctx context.Context, id string, profile Profile) (User, error) {
	if profile.Empty() {
		return User{}, ErrNothingToUpdate
	}
	if profile.Name != nil && strings.TrimSpace(*profile.Name) == "" {
		return User{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	return s.repo.UpdateProfile(ctx, id, profile, s.now())
}

// List returns accounts for the admin console.
func (s *Service) List(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.repo.ListUsers(ctx, limit)
}

// Count returns the number of accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountUsers(ctx)
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("deleted_user_id", id).Msg("users.deleted")
	return nil
}

// Addresses lists a user's saved addresses.
func (s *Service) Addresses(ctx context.Context, userID string) ([]Address, error) {
	return s.repo.ListAddresses(ctx, userID)
}

// CreateAddress saves an address. A new default unsets the previous one.
func (s *Service) CreateAddress(ctx context.Context, userID string, in AddressInput) (Address, error) {
	if err := in.validate(); err != nil {
		return Address{}, err
	}
	addr := toAddress(uuid.NewString(), userID, in)
	addr.CreatedAt = s.now()
	if addr.IsDefault {
		if err := s.repo.ClearDefault(ctx, userID, ""); err != nil {
			return Address{}, err
		}
	}
	if err := s.repo.CreateAddress(ctx, addr); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// UpdateAddress replaces one of the user's addresses.
func (s *Service) UpdateAddress(ctx context.Context, userID, id string, in AddressInput) (Address, error) {
	if err := in.validate(); err != nil {
		return Address{}, err
	}
	addr := toAddress(id, userID, in)
	if err := s.repo.UpdateAddress(ctx, addr); err != nil {
		return Address{}, err
	}
	if addr.IsDefault {
		if err := s.repo.ClearDefault(ctx, userID, id); err != nil {
			return Address{}, err
		}
	}
	return addr, nil
}

// DeleteAddress removes one of the user's addresses.
func (s *Service) DeleteAddress(ctx context.Context, userID, id string) error {
	return s.repo.DeleteAddress(ctx, userID, id)
}

func toAddress(id, userID string, in AddressInput) Address {
	return Address{
		ID:           id,
		UserID:       userID,
		FullName:     strings.TrimSpace(in.FullName),
		Phone:        strings.TrimSpace(in.Phone),
		AddressLine1: strings.TrimSpace(in.AddressLine1),
		AddressLine2: strings.TrimSpace(in.AddressLine2),
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
		PostalCode:   strings.TrimSpace(in.PostalCode),
		IsDefault:    in.IsDefault,
	}
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet. An
// existing account with that email is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}
	if name == "" {
		name = "Admin"
	}
	user, err := s.create(ctx, email, password, name, "", auth.RoleAdmin)
	if errors.Is(err, ErrEmailRegistered) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", user.ID).
		Str("email", logger.RedactEmail(email)).
		Msg("users.admin_bootstrapped")
	return true, nil
}
