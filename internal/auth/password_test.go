package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/slotkeeper/internal/apperr"
	"github.com/friendsincode/slotkeeper/internal/models"
	"github.com/friendsincode/slotkeeper/internal/store"
	"github.com/friendsincode/slotkeeper/internal/store/storetest"
)

func TestLogin(t *testing.T) {
	repo := store.NewGorm(storetest.Open(t))
	ctx := context.Background()
	secret := []byte("test-secret")

	user, err := NewUser(" Ada@Example.com ", "Ada", "Lovelace", models.RoleProvider, "hunter22")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if user.Email != "ada@example.com" || user.PasswordHash == "hunter22" {
		t.Fatalf("unexpected user %+v", user)
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	token, got, err := Login(ctx, repo, secret, time.Hour, "ADA@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, got.ID)
	}
	claims, err := Parse(secret, token)
	if err != nil || claims.Role != models.RoleProvider {
		t.Fatalf("unexpected claims %+v err=%v", claims, err)
	}

	if _, _, err := Login(ctx, repo, secret, time.Hour, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, _, err := Login(ctx, repo, secret, time.Hour, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestNewUserValidates(t *testing.T) {
	if _, err := NewUser("a@example.com", "A", "B", models.Role("ADMIN"), "pw"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid role error, got %v", err)
	}
	if _, err := NewUser("", "A", "B", models.RoleClient, "pw"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected missing email error, got %v", err)
	}
	if _, err := NewUser("a@example.com", "A", "B", models.RoleClient, ""); err == nil {
		t.Fatal("expected empty password error")
	}
}
