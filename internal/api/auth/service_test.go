package auth_test

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"taskmanager/internal/api/auth"
	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/store"
	"taskmanager/internal/store/storetest"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const secret = "test-secret"

func newService(t *testing.T) (*auth.Service, *store.UserStore) {
	t.Helper()
	users := store.NewUserStore(storetest.New(t))
	return auth.NewService(users, secret, bcrypt.MinCost), users
}

func signup(t *testing.T, svc *auth.Service, email string) (*model.User, string) {
	t.Helper()
	user, token, err := svc.Register(context.Background(), auth.SignupInput{Email: email, Password: "longenough1"})
	require.NoError(t, err)
	return user, token
}

func TestRegister_TokenResolvesToNormalisedEmail(t *testing.T) {
	ctx := context.Background()
	svc, users := newService(t)

	user, token, err := svc.Register(ctx, auth.SignupInput{Name: "  Ann ", Email: "  Ann@Example.COM ", Password: "longenough1"})
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", user.Email)
	require.Equal(t, "Ann", user.Name)
	require.NotEqual(t, "longenough1", user.Password)

	resolved, err := svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", resolved.Email)

	tokens, err := users.ListTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{token}, tokens)
}

func TestRegister_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	signup(t, svc, "taken@x.com")

	cases := []struct {
		name string
		in   auth.SignupInput
	}{
		{"bad email", auth.SignupInput{Email: "not-an-email", Password: "longenough1"}},
		{"empty email", auth.SignupInput{Email: "", Password: "longenough1"}},
		{"short password", auth.SignupInput{Email: "a@x.com", Password: "short"}},
		{"short after trim", auth.SignupInput{Email: "a@x.com", Password: "   abc1234   "}},
		{"contains password", auth.SignupInput{Email: "a@x.com", Password: "myPassWord123"}},
		{"duplicate email", auth.SignupInput{Email: "TAKEN@x.com", Password: "longenough1"}},
		{"longer than 72 bytes", auth.SignupInput{Email: "a@x.com", Password: strings.Repeat("k", 73)}},
		{"72 runes but more bytes", auth.SignupInput{Email: "a@x.com", Password: strings.Repeat("é", 40)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tc.in)
			require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, users := newService(t)
	user, first := signup(t, svc, "a@x.com")

	_, _, err := svc.Authenticate(ctx, "a@x.com", "wrongpassword1")
	require.True(t, apperr.Is(err, apperr.KindAuthentication))
	require.Equal(t, "Incorrect password.", apperr.Message(err))

	_, _, err = svc.Authenticate(ctx, "nobody@x.com", "longenough1")
	require.True(t, apperr.Is(err, apperr.KindAuthentication))
	require.Equal(t, "Incorrect email.", apperr.Message(err))

	tokens, err := users.ListTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1, "failed logins must not add tokens")

	logged, second, err := svc.Authenticate(ctx, " A@X.com", "longenough1")
	require.NoError(t, err)
	require.Equal(t, user.ID, logged.ID)
	require.NotEqual(t, first, second)

	tokens, err = users.ListTokens(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{first, second}, tokens)
}

func TestResolveToken_RejectsRevokedAndForged(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user, token := signup(t, svc, "a@x.com")

	require.NoError(t, svc.Revoke(ctx, user, token))
	require.NoError(t, svc.Revoke(ctx, user, token), "revoke is idempotent")

	_, err := svc.ResolveToken(ctx, token)
	require.True(t, apperr.Is(err, apperr.KindAuthentication), "revoked token must not resolve")

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  strconv.FormatUint(uint64(user.ID), 10),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ResolveToken(ctx, forged)
	require.True(t, apperr.Is(err, apperr.KindAuthentication))

	_, err = svc.ResolveToken(ctx, "garbage")
	require.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestResolveToken_ValidSignatureNotInList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user, _ := signup(t, svc, "a@x.com")

	stray, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: strconv.FormatUint(uint64(user.ID), 10),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = svc.ResolveToken(ctx, stray)
	require.True(t, apperr.Is(err, apperr.KindAuthentication))
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user, t1 := signup(t, svc, "a@x.com")
	_, t2, err := svc.Authenticate(ctx, "a@x.com", "longenough1")
	require.NoError(t, err)
	_, t3, err := svc.Authenticate(ctx, "a@x.com", "longenough1")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, user, t2))
	_, err = svc.ResolveToken(ctx, t1)
	require.NoError(t, err, "revoking one token keeps the others")

	require.NoError(t, svc.RevokeAll(ctx, user))
	for _, tok := range []string{t1, t2, t3} {
		_, err := svc.ResolveToken(ctx, tok)
		require.True(t, apperr.Is(err, apperr.KindAuthentication))
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, users := newService(t)
	user, token := signup(t, svc, "a@x.com")
	signup(t, svc, "b@x.com")

	patch := func(body string) map[string]json.RawMessage {
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(body), &m))
		return m
	}

	_, err := svc.UpdateProfile(ctx, user, patch(`{"tokens":[]}`))
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.UpdateProfile(ctx, user, patch(`{"email":"B@x.com"}`))
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.UpdateProfile(ctx, user, patch(`{"password":"password123"}`))
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.UpdateProfile(ctx, user, patch(`{"name":42}`))
	require.True(t, apperr.Is(err, apperr.KindValidation))

	before, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, user, patch(`{"name":" Ann "}`))
	require.NoError(t, err)
	require.Equal(t, "Ann", updated.Name)
	require.Equal(t, before.Password, updated.Password, "hash must not change on unrelated saves")

	updated, err = svc.UpdateProfile(ctx, user, patch(`{"email":" NEW@x.com ","password":"anotherlong1"}`))
	require.NoError(t, err)
	require.Equal(t, "new@x.com", updated.Email)
	require.NotEqual(t, before.Password, updated.Password)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.Password), []byte("anotherlong1")))

	_, err = svc.ResolveToken(ctx, token)
	require.NoError(t, err, "changing the password keeps existing sessions")

	_, _, err = svc.Authenticate(ctx, "new@x.com", "anotherlong1")
	require.NoError(t, err)
}

func TestRegister_PasswordAtByteLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	password := strings.Repeat("k", 72)
	_, token, err := svc.Register(ctx, auth.SignupInput{Email: "max@x.com", Password: password})
	require.NoError(t, err)
	_, err = svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	_, _, err = svc.Authenticate(ctx, "max@x.com", password)
	require.NoError(t, err)
}

func TestUpdateProfile_RejectsOverlongPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	user, _ := signup(t, svc, "a@x.com")

	raw, err := json.Marshal(strings.Repeat("k", 80))
	require.NoError(t, err)
	_, err = svc.UpdateProfile(ctx, user, map[string]json.RawMessage{"password": raw})
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
}
