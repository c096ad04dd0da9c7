package users

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lilgiftcorner/server/internal/auth"
)

func newTestService(t *testing.T) (*Service, *auth.Issuer) {
	t.Helper()
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return NewService(NewMemoryRepository(), issuer), issuer
}

func strPtr(s string) *string { return &s }

func TestRegisterAndLogin(t *testing.T) {
	svc, issuer := newTestService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, Registration{Email: "Asha@Example.com ", Password: "secret1", Name: "Asha"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if session.User.Email != "asha@example.com" || session.User.Role != auth.RoleCustomer {
		t.Errorf("Register() user = %+v", session.User)
	}
	claims, err := issuer.Parse(session.Token)
	if err != nil || claims.UserID != session.User.ID {
		t.Errorf("token claims = %+v, %v", claims, err)
	}

	raw, _ := json.Marshal(session.User)
	if strings.Contains(string(raw), "password") || strings.Contains(string(raw), session.User.PasswordHash) {
		t.Errorf("user JSON leaks the password hash: %s", raw)
	}

	if _, err := svc.Register(ctx, Registration{Email: "asha@example.com", Password: "secret2", Name: "Other"}); !errors.Is(err, ErrEmailRegistered) {
		t.Errorf("Register() duplicate error = %v, want ErrEmailRegistered", err)
	}

	if _, err := svc.Login(ctx, "ASHA@example.com", "secret1"); err != nil {
		t.Errorf("Login() error = %v", err)
	}
	for _, tc := range []struct{ email, password string }{
		{"asha@example.com", "wrong"},
		{"nobody@example.com", "secret1"},
	} {
		if _, err := svc.Login(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q) error = %v, want ErrInvalidCredentials", tc.email, err)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []struct {
		name string
		in   Registration
	}{
		{"bad email", Registration{Email: "not-an-email", Password: "secret1", Name: "A"}},
		{"short password", Registration{Email: "a@example.com", Password: "123", Name: "A"}},
		{"missing name", Registration{Email: "a@example.com", Password: "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Register() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session, _ := svc.Register(ctx, Registration{Email: "a@example.com", Password: "secret1", Name: "A"})

	if _, err := svc.UpdateProfile(ctx, session.User.ID, Profile{}); !errors.Is(err, ErrNothingToUpdate) {
		t.Errorf("UpdateProfile({}) error = %v, want ErrNothingToUpdate", err)
	}
	got, err := svc.UpdateProfile(ctx, session.User.ID, Profile{Phone: strPtr("9876543210")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Phone != "9876543210" || got.Name != "A" {
		t.Errorf("UpdateProfile() = %+v", got)
	}
	if _, err := svc.UpdateProfile(ctx, "missing", Profile{Name: strPtr("B")}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateProfile(missing) error = %v, want ErrUserNotFound", err)
	}
}

func validAddress(isDefault bool) AddressInput {
	return AddressInput{
		FullName:     "Asha Rao",
		Phone:        "9876543210",
		AddressLine1: "12 MG Road",
		City:         "Bengaluru",
		State:        "KA",
		PostalCode:   "560001",
		IsDefault:    isDefault,
	}
}

func TestAddressesSingleDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateAddress(ctx, "u1", validAddress(true))
	if err != nil {
		t.Fatalf("CreateAddress() error = %v", err)
	}
	second, err := svc.CreateAddress(ctx, "u1", validAddress(true))
	if err != nil {
		t.Fatalf("CreateAddress() error = %v", err)
	}
	if _, err := svc.CreateAddress(ctx, "u2", validAddress(true)); err != nil {
		t.Fatalf("CreateAddress() error = %v", err)
	}

	defaults := func(userID string) []string {
		list, _ := svc.Addresses(ctx, userID)
		var ids []string
		for _, a := range list {
			if a.IsDefault {
				ids = append(ids, a.ID)
			}
		}
		return ids
	}
	if got := defaults("u1"); len(got) != 1 || got[0] != second.ID {
		t.Errorf("defaults = %v, want only %s", got, second.ID)
	}
	if got := defaults("u2"); len(got) != 1 {
		t.Errorf("other user's default touched: %v", got)
	}

	if _, err := svc.UpdateAddress(ctx, "u1", first.ID, validAddress(true)); err != nil {
		t.Fatalf("UpdateAddress() error = %v", err)
	}
	if got := defaults("u1"); len(got) != 1 || got[0] != first.ID {
		t.Errorf("defaults after update = %v, want only %s", got, first.ID)
	}
}

func TestForeignAddressNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addr, _ := svc.CreateAddress(ctx, "u1", validAddress(false))

	if _, err := svc.UpdateAddress(ctx, "u2", addr.ID, validAddress(false)); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("UpdateAddress() error = %v, want ErrAddressNotFound", err)
	}
	if err := svc.DeleteAddress(ctx, "u2", addr.ID); !errors.Is(err, ErrAddressNotFound) {
		t.Errorf("DeleteAddress() error = %v, want ErrAddressNotFound", err)
	}
	if err := svc.DeleteAddress(ctx, "u1", addr.ID); err != nil {
		t.Errorf("DeleteAddress() error = %v", err)
	}
	bad := validAddress(false)
	bad.City = " "
	if _, err := svc.CreateAddress(ctx, "u1", bad); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("CreateAddress() error = %v, want ErrInvalidInput", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	svc, issuer := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "Admin@Shop.example", "admin-pass", "")
	if err != nil || !created {
		t.Fatalf("EnsureAdmin() = %v, %v, want created", created, err)
	}
	again, err := svc.EnsureAdmin(ctx, "admin@shop.example", "other", "")
	if err != nil || again {
		t.Errorf("EnsureAdmin() second call = %v, %v, want no-op", again, err)
	}
	if skipped, _ := svc.EnsureAdmin(ctx, "", "", ""); skipped {
		t.Error("EnsureAdmin() without credentials created an account")
	}

	session, err := svc.Login(ctx, "admin@shop.example", "admin-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, _ := issuer.Parse(session.Token)
	if !claims.IsAdmin() {
		t.Errorf("admin claims = %+v", claims)
	}

	count, _ := svc.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
	if err := svc.Delete(ctx, session.User.ID); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := svc.Delete(ctx, session.User.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrUserNotFound", err)
	}
}
