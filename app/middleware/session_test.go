package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
	"github.com/vibast-solutions/ms-go-filedrop/app/middleware"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"

	"github.com/labstack/echo/v4"
)

const cookieName = "filedrop_session"

type stubAuthenticator struct {
	users map[string]*entity.User
	err   error
	calls int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*entity.User, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[token]
	if !ok {
		return nil, service.ErrSessionInvalid
	}
	return user, nil
}

func newRequest(target, cookie string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}
	return req, httptest.NewRecorder()
}

func TestLoadUser_AttachesUser(t *testing.T) {
	auth := &stubAuthenticator{users: map[string]*entity.User{"tok": {ID: 1, Username: "jane"}}}
	mw := middleware.NewSessionMiddleware(auth, cookieName)

	e := echo.New()
	req, rec := newRequest("/dashboard", "tok")
	ctx := e.NewContext(req, rec)

	var seen *entity.User
	handler := mw.LoadUser(func(c echo.Context) error {
		seen = middleware.CurrentUser(c)
		if middleware.SessionToken(c) != "tok" {
			t.Fatalf("expected session token in context")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if seen == nil || seen.ID != 1 {
		t.Fatalf("expected user in context, got %+v", seen)
	}
}

func TestLoadUser_StaleCookieIsCleared(t *testing.T) {
	auth := &stubAuthenticator{users: map[string]*entity.User{}}
	mw := middleware.NewSessionMiddleware(auth, cookieName)

	e := echo.New()
	req, rec := newRequest("/", "stale")
	ctx := e.NewContext(req, rec)

	handler := mw.LoadUser(func(c echo.Context) error {
		if middleware.CurrentUser(c) != nil {
			t.Fatalf("expected anonymous request")
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	setCookie := rec.Header().Get("Set-Cookie")
	if !strings.Contains(setCookie, cookieName+"=") || !strings.Contains(setCookie, "Max-Age=0") {
		t.Fatalf("expected cookie to be cleared, got %q", setCookie)
	}
}

func TestLoadUser_NoCookieSkipsLookup(t *testing.T) {
	auth := &stubAuthenticator{}
	mw := middleware.NewSessionMiddleware(auth, cookieName)

	e := echo.New()
	req, rec := newRequest("/", "")
	ctx := e.NewContext(req, rec)

	if err := mw.LoadUser(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if auth.calls != 0 {
		t.Fatalf("expected no lookup, got %d", auth.calls)
	}
}

func TestLoadUser_LookupFailureContinuesAnonymously(t *testing.T) {
	auth := &stubAuthenticator{err: errors.New("db down")}
	mw := middleware.NewSessionMiddleware(auth, cookieName)

	e := echo.New()
	req, rec := newRequest("/", "tok")
	ctx := e.NewContext(req, rec)

	if err := mw.LoadUser(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Set-Cookie") != "" {
		t.Fatalf("expected cookie to be kept on transient failure")
	}
}

func TestRequireUser_RedirectsAnonymous(t *testing.T) {
	mw := middleware.NewSessionMiddleware(&stubAuthenticator{}, cookieName)

	e := echo.New()
	req, rec := newRequest("/dashboard", "")
	ctx := e.NewContext(req, rec)

	handler := mw.RequireUser(func(c echo.Context) error {
		t.Fatalf("handler should not run")
		return nil
	})
	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login/?next=%2Fdashboard" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestRequireUser_AllowsAuthenticated(t *testing.T) {
	mw := middleware.NewSessionMiddleware(&stubAuthenticator{}, cookieName)

	e := echo.New()
	req, rec := newRequest("/dashboard", "")
	ctx := e.NewContext(req, rec)
	ctx.Set(middleware.ContextKeyUser, &entity.User{ID: 2})

	handler := mw.RequireUser(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
}
