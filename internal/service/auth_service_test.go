package service_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/neilotoole/slogt"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/internal/service"
)

const (
	users      = "users"
	authSecret = "auth-secret"
)

func newAuthService(t *testing.T, store repository.DocumentStore) *service.AuthService {
	t.Helper()
	svc := service.NewAuthService(store, users, authSecret, slogt.New(t))
	svc.Now = func() time.Time { return time.Now().Truncate(time.Second) }
	return svc
}

func registration() service.RegisterInput {
	return service.RegisterInput{
		Email:       "  Tenant@Example.com ",
		DisplayName: " Tia\x00 ",
		Password:    "long enough",
		Role:        domain.AccountTenant,
	}
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	store := newStore()
	store.AddUniqueIndex(users, []string{"email"})
	svc := newAuthService(t, store)

	resp, err := svc.Register(as("anyone"), registration())
	if err != nil {
		t.Fatal(err)
	}
	if resp.User.Email != "tenant@example.com" || resp.User.DisplayName != "Tia" || resp.User.Role != domain.AccountTenant {
		t.Errorf("unexpected user %+v", resp.User)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (any, error) {
		return []byte(authSecret), nil
	}); err != nil {
		t.Fatal(err)
	}
	if claims["sub"] != resp.User.ID || claims["role"] != "tenant" {
		t.Errorf("unexpected claims %v", claims)
	}

	doc, err := store.Get(repository.Privileged(as("")), users, resp.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(doc.Data), "long enough") || !strings.Contains(string(doc.Data), "password_hash") {
		t.Errorf("stored account leaks or lacks the password hash: %s", doc.Data)
	}

	if _, err := svc.Register(as("anyone"), registration()); !errors.Is(err, service.ErrEmailTaken) {
		t.Errorf("second Register() = %v, want ErrEmailTaken", err)
	}

	if _, err := svc.Login(as(""), service.LoginInput{Email: "TENANT@example.com", Password: "wrong"}); !errors.Is(err, service.ErrInvalidCreds) {
		t.Errorf("Login() with wrong password = %v, want ErrInvalidCreds", err)
	}
	if _, err := svc.Login(as(""), service.LoginInput{Email: "nobody@example.com", Password: "long enough"}); !errors.Is(err, service.ErrInvalidCreds) {
		t.Errorf("Login() with unknown email = %v, want ErrInvalidCreds", err)
	}
	login, err := svc.Login(as(""), service.LoginInput{Email: "TENANT@example.com", Password: "long enough"})
	if err != nil {
		t.Fatal(err)
	}
	if login.User.ID != resp.User.ID {
		t.Errorf("login user = %s, want %s", login.User.ID, resp.User.ID)
	}

	me, err := svc.Me(as(resp.User.ID), resp.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if me.Email != "tenant@example.com" {
		t.Errorf("unexpected profile %+v", me)
	}
	if _, err := svc.Me(as("stranger"), resp.User.ID); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("Me() for another user = %v, want not found", err)
	}
}

func TestAuthService_RegisterRace(t *testing.T) {
	store := teststore{
		t: t,
		list: func(t *testing.T, _ string, _ repository.Query) (*repository.DocumentList, error) {
			return &repository.DocumentList{}, nil
		},
		create: func(t *testing.T, _ string, _ any, _ []domain.Permission) (*repository.Document, error) {
			return nil, domain.Conflictf("unique constraint on users [email] violated")
		},
	}

	if _, err := newAuthService(t, store).Register(as("anyone"), registration()); !errors.Is(err, service.ErrEmailTaken) {
		t.Errorf("Register() = %v, want ErrEmailTaken", err)
	}
}

func TestAuthService_RegisterInvalid(t *testing.T) {
	svc := newAuthService(t, teststore{t: t})

	in := registration()
	in.DisplayName = "\x01\x02"
	if _, err := svc.Register(as("anyone"), in); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Register() with blank name = %v, want validation", err)
	}

	in = registration()
	in.Role = "admin"
	if _, err := svc.Register(as("anyone"), in); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("Register() with unknown role = %v, want validation", err)
	}
}
