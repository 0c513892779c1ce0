package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/user/marfanet-crm/internal/models"
)

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*models.User{}}
}

func (f *fakeUserRepo) GetUserByUsername(username string) (*models.User, error) {
	return f.users[username], nil
}

func (f *fakeUserRepo) CreateUser(user *models.User) error {
	user.ID = uint(len(f.users) + 1)
	user.IsActive = true
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserRepo) UpdateUserLastLogin(id uint, at time.Time) error {
	for _, u := range f.users {
		if u.ID == id {
			u.LastLoginAt = &at
		}
	}
	return nil
}

func (f *fakeUserRepo) CountUsers() (int64, error) {
	return int64(len(f.users)), nil
}

func TestLoginRoundTrip(t *testing.T) {
	SetSecret("test-secret")
	repo := newFakeUserRepo()
	svc := NewService(repo)

	if _, err := svc.CreateUser("admin", "s3cret", "admin"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	token, user, err := svc.Login("admin", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token == "" || user.Username != "admin" {
		t.Errorf("Login() = token %q user %+v", token, user)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT() error = %v", err)
	}
	if claims.Username != "admin" || claims.Role != "admin" || claims.UserID != user.ID {
		t.Errorf("claims = %+v", claims)
	}
	if repo.users["admin"].LastLoginAt == nil {
		t.Error("last login not stamped")
	}
}

func TestLoginRejections(t *testing.T) {
	SetSecret("test-secret")
	repo := newFakeUserRepo()
	svc := NewService(repo)

	if _, err := svc.CreateUser("admin", "s3cret", "admin"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		username string
		password string
		disable  bool
	}{
		{"wrong password", "admin", "wrong", false},
		{"unknown user", "ghost", "s3cret", false},
		{"inactive user", "admin", "s3cret", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.users["admin"].IsActive = !tt.disable
			_, _, err := svc.Login(tt.username, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestValidateJWTRejectsTamperedToken(t *testing.T) {
	SetSecret("test-secret")
	token, err := GenerateJWT(1, "admin", "admin")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ValidateJWT(token + "x"); err == nil {
		t.Error("ValidateJWT accepted a tampered token")
	}

	SetSecret("rotated-secret")
	if _, err := ValidateJWT(token); err == nil {
		t.Error("ValidateJWT accepted a token signed with the old secret")
	}
	SetSecret("test-secret")
}

func TestEnsureDefaultAdmin(t *testing.T) {
	SetSecret("test-secret")
	repo := newFakeUserRepo()
	svc := NewService(repo)

	if err := svc.EnsureDefaultAdmin("admin", "changeme"); err != nil {
		t.Fatalf("EnsureDefaultAdmin() error = %v", err)
	}
	if len(repo.users) != 1 {
		t.Fatalf("user count = %d, want 1", len(repo.users))
	}

	// Second call on a non-empty table is a no-op
	if err := svc.EnsureDefaultAdmin("admin2", "changeme"); err != nil {
		t.Fatalf("EnsureDefaultAdmin() second call error = %v", err)
	}
	if len(repo.users) != 1 {
		t.Errorf("user count = %d after second call, want 1", len(repo.users))
	}
}
