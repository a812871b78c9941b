package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRegisterAndLogin(t *testing.T) {
	mock := newMock(t)
	createdAt := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "rider@team.cc", "Jens", "rider", "team-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	svc := NewService("test-secret", mock)
	user, tokens, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "rider@team.cc",
		Password: "password123",
		Name:     "Jens",
		Role:     "rider",
		TeamID:   "team-1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected user and tokens")
	}

	mock.ExpectQuery(`SELECT id, email, name, role`).
		WithArgs("rider@team.cc").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "team_id", "password_hash", "created_at"}).
			AddRow(user.ID, user.Email, user.Name, user.Role, user.TeamID, user.PasswordHash, createdAt))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), user.ID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, loginTokens, err := svc.Login(context.Background(), LoginRequest{Email: "rider@team.cc", Password: "password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginTokens.AccessToken == "" {
		t.Fatalf("expected login tokens")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	if _, _, err := svc.Register(context.Background(), RegisterRequest{Email: "", Name: "n", Password: "p", Role: "rider"}); err == nil {
		t.Fatalf("expected error for missing email")
	}
	if _, _, err := svc.Register(context.Background(), RegisterRequest{Email: "e@x.cc", Name: "n", Password: "p", Role: "mechanic"}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectQuery(`SELECT id, email, name, role`).
		WithArgs("rider@team.cc").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "team_id", "password_hash", "created_at"}).
			AddRow("u1", "rider@team.cc", "Jens", "rider", "", "$2a$10$invalidhashinvalidhashinvalidhashinvalidhashinvalid", time.Now()))

	if _, _, err := svc.Login(context.Background(), LoginRequest{Email: "rider@team.cc", Password: "wrong"}); err == nil {
		t.Fatalf("expected invalid credentials")
	}
}

func TestValidateAccessToken(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), "u1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	want := Identity{UserID: "u1", Email: "rider@team.cc", Role: RoleRider, TeamID: "team-1"}
	tokens, err := svc.GenerateTokens(context.Background(), want)
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}

	got, err := svc.ValidateAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if got != want {
		t.Fatalf("identity mismatch: got %+v", got)
	}

	other := NewService("other-secret", mock)
	if _, err := other.ValidateAccessToken(tokens.AccessToken); err == nil {
		t.Fatalf("expected signature error across secrets")
	}
}

func TestValidateRefreshToken(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), "u1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokens, err := svc.GenerateTokens(context.Background(), Identity{UserID: "u1", Email: "e@x.cc", Role: RoleCoach})
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}

	mock.ExpectQuery(`SELECT user_id, expires_at`).
		WithArgs(tokens.RefreshToken).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at"}).AddRow("u1", time.Now().Add(time.Hour)))

	id, err := svc.ValidateRefreshToken(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if id.UserID != "u1" || id.Role != RoleCoach {
		t.Fatalf("unexpected identity %+v", id)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestValidateRefreshTokenExpiredRow(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(pgxmock.AnyArg(), "u1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tokens, err := svc.GenerateTokens(context.Background(), Identity{UserID: "u1"})
	if err != nil {
		t.Fatalf("generate tokens: %v", err)
	}

	mock.ExpectQuery(`SELECT user_id, expires_at`).
		WithArgs(tokens.RefreshToken).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "expires_at"}).AddRow("u1", time.Now().Add(-time.Hour)))

	if _, err := svc.ValidateRefreshToken(context.Background(), tokens.RefreshToken); err == nil {
		t.Fatalf("expected expired token rejection")
	}
}

func TestRiders(t *testing.T) {
	mock := newMock(t)
	svc := NewService("test-secret", mock)

	mock.ExpectQuery(`SELECT id, email, name, role`).
		WithArgs("team-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "role", "team_id", "created_at"}).
			AddRow("u1", "a@x.cc", "A", "rider", "team-1", time.Now()).
			AddRow("u2", "b@x.cc", "B", "rider", "team-1", time.Now()))

	riders, err := svc.Riders(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("riders: %v", err)
	}
	if len(riders) != 2 {
		t.Fatalf("got %d riders", len(riders))
	}
}
