package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"

	"github.com/gin-gonic/gin"
)

type fakeResolver struct {
	users map[string]*model.User
	err   error
	calls int
}

func (f *fakeResolver) ResolveToken(ctx context.Context, token string) (*model.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, apperr.Authentication("You should be logged in.")
}

func newAuthRouter(resolver TokenResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(resolver, slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": CurrentUser(c).Email, "token": CurrentToken(c)})
	})
	return r
}

func TestAuthMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	resolver := &fakeResolver{}
	r := newAuthRouter(resolver)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic abc", "token-without-scheme"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver should not be called for malformed headers")
	}
}

func TestAuthMiddleware_AttachesIdentity(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*model.User{"good": {ID: 1, Email: "a@x.com"}}}
	r := newAuthRouter(resolver)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"email":"a@x.com","token":"good"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	resolver := &fakeResolver{users: map[string]*model.User{}}
	r := newAuthRouter(resolver)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_StoreFailure(t *testing.T) {
	resolver := &fakeResolver{err: apperr.Internal("resolve token", errors.New("db down"))}
	r := newAuthRouter(resolver)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer any")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
