package users

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailRegistered = errors.New("email already registered")
	ErrAddressNotFound = errors.New("address not found")
)

// User is a shop account. PasswordHash never leaves the package in JSON.
type User struct {
	ID           string    `json:"id" bson:"id"`
	Email        string    `json:"email" bson:"email"`
	Name         string    `json:"name" bson:"name"`
	Phone        string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Role         string    `json:"role" bson:"role"`
	PasswordHash string    `json:"-" bson:"password"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// Profile carries a partial profile update; nil means unchanged.
type Profile struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p Profile) Empty() bool {
	return p.Name == nil && p.Phone == nil
}

// Address is a saved shipping address.
type Address struct {
	ID           string    `json:"id" bson:"id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	FullName     string    `json:"full_name" bson:"full_name"`
	Phone        string    `json:"phone" bson:"phone"`
	AddressLine1 string    `json:"address_line1" bson:"address_line1"`
	AddressLine2 string    `json:"address_line2,omitempty" bson:"address_line2,omitempty"`
	City         string    `json:"city" bson:"city"`
	State        string    `json:"state" bson:"state"`
	PostalCode   string    `json:"postal_code" bson:"postal_code"`
	IsDefault    bool      `json:"is_default" bson:"is_default"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// Repository persists users and their addresses.
type Repository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	UpdateProfile(ctx context.Context, id string, profile Profile, now time.Time) (User, error)
	ListUsers(ctx context.Context, limit int) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)
	DeleteUser(ctx context.Context, id string) error

	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	CreateAddress(ctx context.Context, addr Address) error
	// UpdateAddress replaces the address if it belongs to addr.UserID.
	UpdateAddress(ctx context.Context, addr Address) error
	DeleteAddress(ctx context.Context, userID, id string) error
	// ClearDefault unsets is_default on the user's addresses except keepID.
	ClearDefault(ctx context.Context, userID, keepID string) error
}
