package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapit-backend/internal/middleware"
	"mapit-backend/internal/models"
)

func newTestAuthService() (*AuthService, *stubUserStore, *stubTokenStore) {
	users := newStubUserStore()
	tokens := newStubTokenStore()
	return NewAuthService(users, tokens, middleware.NewJWTAuth("test-secret")), users, tokens
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestAuthService()

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "  Alice@Example.com ",
		Password: "password1",
		FullName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "password1", user.PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	svc, _, _ := newTestAuthService()

	tests := []struct {
		name  string
		req   models.RegisterRequest
		field string
	}{
		{"bad email", models.RegisterRequest{Email: "nope", Password: "password1"}, "email"},
		{"short password", models.RegisterRequest{Email: "a@b.co", Password: "pw1"}, "password"},
		{"password without digit", models.RegisterRequest{Email: "a@b.co", Password: "password"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService()
	req := models.RegisterRequest{Email: "bob@example.com", Password: "password1"}

	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), req)
	var ce *ConflictError
	assert.True(t, errors.As(err, &ce))
}

func TestLoginRefreshLogout(t *testing.T) {
	svc, _, tokens := newTestAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, models.RegisterRequest{Email: "carol@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "carol@example.com", Password: "wrong-pass1"})
	var ue *UnauthorizedError
	require.True(t, errors.As(err, &ue))

	first, err := svc.Login(ctx, models.LoginRequest{Email: "CAROL@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", first.TokenType)
	assert.Equal(t, 1800, first.ExpiresIn)
	assert.NotEmpty(t, first.AccessToken)
	assert.Len(t, tokens.values, 1)

	second, err := svc.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// rotated token is single use
	_, err = svc.RefreshToken(ctx, first.RefreshToken)
	require.True(t, errors.As(err, &ue))

	require.NoError(t, svc.Logout(ctx, second.RefreshToken))
	assert.Empty(t, tokens.values)
}

func TestLogin_InactiveAccount(t *testing.T) {
	svc, users, _ := newTestAuthService()
	ctx := context.Background()

	u, err := svc.Register(ctx, models.RegisterRequest{Email: "dan@example.com", Password: "password1"})
	require.NoError(t, err)
	users.byEmail[u.Email].IsActive = false

	_, err = svc.Login(ctx, models.LoginRequest{Email: "dan@example.com", Password: "password1"})
	var fe *ForbiddenError
	assert.True(t, errors.As(err, &fe))
}

func TestMe_UnknownUser(t *testing.T) {
	svc, _, _ := newTestAuthService()

	u, err := svc.Register(context.Background(), models.RegisterRequest{Email: "erin@example.com", Password: "password1"})
	require.NoError(t, err)

	me, err := svc.Me(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, me.Email)

	_, err = svc.Me(context.Background(), uuid.New())
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}
