package controller_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-filedrop/app/controller"
	"github.com/vibast-solutions/ms-go-filedrop/app/dto"
	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
	"github.com/vibast-solutions/ms-go-filedrop/app/middleware"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"
	"github.com/vibast-solutions/ms-go-filedrop/app/types"
	"github.com/vibast-solutions/ms-go-filedrop/app/view"
	"github.com/vibast-solutions/ms-go-filedrop/config"

	"github.com/labstack/echo/v4"
)

const sessionCookieName = "filedrop_session"

type stubAccounts struct {
	registerRes *dto.RegisterResult
	registerErr error
	verifyErr   error
	loginRes    *dto.LoginResult
	loginErr    error
	resetErr    error
	checkErr    error
	confirmErr  error
	users       []*entity.User
	listErr     error

	loginCalls    int
	logoutTokens  []string
	lastSearch    string
	lastConfirmed *types.PasswordResetConfirmRequest
}

func (s *stubAccounts) Register(_ context.Context, _ *types.RegisterRequest) (*dto.RegisterResult, error) {
	return s.registerRes, s.registerErr
}

func (s *stubAccounts) VerifyEmail(_ context.Context, _ string) error { return s.verifyErr }

func (s *stubAccounts) Login(_ context.Context, _ *types.LoginRequest) (*dto.LoginResult, error) {
	s.loginCalls++
	return s.loginRes, s.loginErr
}

func (s *stubAccounts) Authenticate(_ context.Context, _ string) (*entity.User, error) {
	return nil, service.ErrSessionInvalid
}

func (s *stubAccounts) Logout(_ context.Context, token string) error {
	s.logoutTokens = append(s.logoutTokens, token)
	return nil
}

func (s *stubAccounts) RequestPasswordReset(_ context.Context, _ *types.PasswordResetRequest) error {
	return s.resetErr
}

func (s *stubAccounts) CheckPasswordResetToken(_ context.Context, _, _ string) (*entity.User, error) {
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return &entity.User{ID: 1}, nil
}

func (s *stubAccounts) ConfirmPasswordReset(_ context.Context, req *types.PasswordResetConfirmRequest) error {
	s.lastConfirmed = req
	return s.confirmErr
}

func (s *stubAccounts) CreateUser(_ context.Context, _ service.CreateUserInput) (*entity.User, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAccounts) ListUsers(_ context.Context, search string) ([]*entity.User, error) {
	s.lastSearch = search
	return s.users, s.listErr
}

func (s *stubAccounts) VerifyUserByEmail(_ context.Context, _ string) (*entity.User, error) {
	return nil, errors.New("not implemented")
}

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()
	renderer, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	e := echo.New()
	e.Renderer = renderer
	return e
}

func newAccountController(accounts *stubAccounts) *controller.AccountController {
	return controller.NewAccountController(accounts, config.SessionConfig{
		CookieName: sessionCookieName,
		TTL:        14 * 24 * time.Hour,
	})
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func flashMessages(t *testing.T, rec *httptest.ResponseRecorder) []view.Flash {
	t.Helper()
	cookie := findCookie(rec, "filedrop_flash")
	if cookie == nil {
		t.Fatalf("expected flash cookie")
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		t.Fatalf("failed to decode flash cookie: %v", err)
	}
	var flashes []view.Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		t.Fatalf("failed to parse flash cookie: %v", err)
	}
	return flashes
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}

func TestRegister_Success(t *testing.T) {
	accounts := &stubAccounts{registerRes: &dto.RegisterResult{User: &entity.User{ID: 1, Email: "jane@example.com"}}}
	ctrl := newAccountController(accounts)

	e := newEcho(t)
	req := formRequest(http.MethodPost, "/register/", url.Values{
		"username":  {"jane"},
		"email":     {"jane@example.com"},
		"password1": {"pw"},
		"password2": {"pw"},
	})
	rec := httptest.NewRecorder()

	if err := ctrl.Register(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")

	flashes := flashMessages(t, rec)
	if len(flashes) != 1 || flashes[0].Message != "Please confirm your email address to complete the registration." {
		t.Fatalf("unexpected flashes: %+v", flashes)
	}

	// The message is shown once on the next page.
	next := httptest.NewRequest(http.MethodGet, "/login/", nil)
	next.AddCookie(findCookie(rec, "filedrop_flash"))
	nextRec := httptest.NewRecorder()
	if err := ctrl.LoginPage(e.NewContext(next, nextRec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(nextRec.Body.String(), "Please confirm your email address") {
		t.Fatalf("expected flash on login page")
	}
	if cleared := findCookie(nextRec, "filedrop_flash"); cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected flash cookie to be cleared")
	}
}

func TestRegister_ValidationErrorsRerender(t *testing.T) {
	verr := types.NewValidationError()
	verr.Add("email", "A user with that email already exists.")
	accounts := &stubAccounts{registerErr: verr}
	ctrl := newAccountController(accounts)

	e := newEcho(t)
	req := formRequest(http.MethodPost, "/register/", url.Values{
		"username": {"jane"},
		"email":    {"jane@example.com"},
	})
	rec := httptest.NewRecorder()

	if err := ctrl.Register(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "A user with that email already exists.") || !strings.Contains(body, `value="jane"`) {
		t.Fatalf("expected errors and submitted values in form")
	}
}

func TestRegister_MailFailureStillRedirects(t *testing.T) {
	accounts := &stubAccounts{
		registerRes: &dto.RegisterResult{User: &entity.User{ID: 1}},
		registerErr: service.ErrMailDelivery,
	}
	ctrl := newAccountController(accounts)

	rec := httptest.NewRecorder()
	req := formRequest(http.MethodPost, "/register/", url.Values{"username": {"jane"}})
	if err := ctrl.Register(newEcho(t).NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")
	if flashes := flashMessages(t, rec); flashes[0].Level != view.FlashError {
		t.Fatalf("expected error flash, got %+v", flashes)
	}
}

func TestRegister_InternalError(t *testing.T) {
	ctrl := newAccountController(&stubAccounts{registerErr: errors.New("db down")})

	rec := httptest.NewRecorder()
	req := formRequest(http.MethodPost, "/register/", url.Values{})
	err := ctrl.Register(newEcho(t).NewContext(req, rec))

	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 error, got %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		level   string
		message string
	}{
		{"valid", nil, view.FlashSuccess, "Your email has been verified. You can now login."},
		{"invalid", service.ErrInvalidToken, view.FlashError, "Invalid verification link."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := newAccountController(&stubAccounts{verifyErr: tc.err})

			rec := httptest.NewRecorder()
			ctx := newEcho(t).NewContext(httptest.NewRequest(http.MethodGet, "/verify-email/tok", nil), rec)
			ctx.SetParamNames("token")
			ctx.SetParamValues("tok")

			if err := ctrl.VerifyEmail(ctx); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			assertRedirect(t, rec, "/login/")
			flashes := flashMessages(t, rec)
			if flashes[0].Level != tc.level || flashes[0].Message != tc.message {
				t.Fatalf("unexpected flash: %+v", flashes)
			}
		})
	}
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	for _, remember := range []bool{false, true} {
		expires := time.Now().Add(14 * 24 * time.Hour)
		accounts := &stubAccounts{loginRes: &dto.LoginResult{
			User:         &entity.User{ID: 1, Username: "jane"},
			SessionToken: "session-token",
			Persistent:   remember,
			ExpiresAt:    expires,
		}}
		ctrl := newAccountController(accounts)

		form := url.Values{"email": {"jane@example.com"}, "password": {"pw"}}
		if remember {
			form.Set("remember_me", "on")
		}
		rec := httptest.NewRecorder()
		if err := ctrl.Login(newEcho(t).NewContext(formRequest(http.MethodPost, "/login/", form), rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		assertRedirect(t, rec, "/dashboard/")

		cookie := findCookie(rec, sessionCookieName)
		if cookie == nil || cookie.Value != "session-token" || !cookie.HttpOnly {
			t.Fatalf("expected http-only session cookie, got %+v", cookie)
		}
		if remember && cookie.MaxAge != int((14*24*time.Hour)/time.Second) {
			t.Fatalf("expected persistent cookie, got max-age %d", cookie.MaxAge)
		}
		if !remember && (cookie.MaxAge != 0 || !cookie.Expires.IsZero()) {
			t.Fatalf("expected browser session cookie, got %+v", cookie)
		}

		if flashes := flashMessages(t, rec); flashes[0].Message != "Welcome back, jane!" {
			t.Fatalf("unexpected flash: %+v", flashes)
		}
	}
}

func TestLogin_Rejections(t *testing.T) {
	cases := []struct {
		err     error
		message string
	}{
		{service.ErrNotVerified, "Please verify your email before logging in."},
		{service.ErrInvalidCredentials, "Invalid email or password."},
	}

	for _, tc := range cases {
		ctrl := newAccountController(&stubAccounts{loginErr: tc.err})

		form := url.Values{"email": {"jane@example.com"}, "password": {"pw"}, "remember_me": {"on"}}
		rec := httptest.NewRecorder()
		if err := ctrl.Login(newEcho(t).NewContext(formRequest(http.MethodPost, "/login/", form), rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, tc.message) {
			t.Fatalf("expected %q in body", tc.message)
		}
		if !strings.Contains(body, `name="remember_me" checked`) {
			t.Fatalf("expected remember_me to stay checked")
		}
		if findCookie(rec, sessionCookieName) != nil {
			t.Fatalf("expected no session cookie")
		}
	}
}

func TestLogin_ValidationSkipsService(t *testing.T) {
	accounts := &stubAccounts{}
	ctrl := newAccountController(accounts)

	rec := httptest.NewRecorder()
	form := url.Values{"email": {""}, "password": {""}}
	if err := ctrl.Login(newEcho(t).NewContext(formRequest(http.MethodPost, "/login/", form), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if accounts.loginCalls != 0 {
		t.Fatalf("expected service not to be called")
	}
	if !strings.Contains(rec.Body.String(), "This field is required.") {
		t.Fatalf("expected required field errors")
	}
}

func TestLogout(t *testing.T) {
	accounts := &stubAccounts{}
	ctrl := newAccountController(accounts)

	rec := httptest.NewRecorder()
	ctx := newEcho(t).NewContext(httptest.NewRequest(http.MethodPost, "/logout/", nil), rec)
	ctx.Set(middleware.ContextKeyUser, &entity.User{ID: 1})
	ctx.Set(middleware.ContextKeySessionToken, "session-token")

	if err := ctrl.Logout(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")

	if len(accounts.logoutTokens) != 1 || accounts.logoutTokens[0] != "session-token" {
		t.Fatalf("expected session to be deleted, got %v", accounts.logoutTokens)
	}
	if cookie := findCookie(rec, sessionCookieName); cookie == nil || cookie.MaxAge >= 0 {
		t.Fatalf("expected session cookie to be cleared")
	}
	if flashes := flashMessages(t, rec); flashes[0].Message != "You have been logged out." {
		t.Fatalf("unexpected flash: %+v", flashes)
	}
}

func TestPasswordReset(t *testing.T) {
	ctrl := newAccountController(&stubAccounts{resetErr: service.ErrNotFound})
	rec := httptest.NewRecorder()
	form := url.Values{"email": {"nobody@example.com"}}
	if err := ctrl.PasswordReset(newEcho(t).NewContext(formRequest(http.MethodPost, "/password-reset/", form), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "No user with that email address found.") {
		t.Fatalf("expected not found message, got %d", rec.Code)
	}

	ctrl = newAccountController(&stubAccounts{})
	rec = httptest.NewRecorder()
	form = url.Values{"email": {"jane@example.com"}}
	if err := ctrl.PasswordReset(newEcho(t).NewContext(formRequest(http.MethodPost, "/password-reset/", form), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")
	if flashes := flashMessages(t, rec); flashes[0].Message != "We've emailed you instructions for setting your password." {
		t.Fatalf("unexpected flash: %+v", flashes)
	}

	rec = httptest.NewRecorder()
	form = url.Values{"email": {"not-an-email"}}
	if err := ctrl.PasswordReset(newEcho(t).NewContext(formRequest(http.MethodPost, "/password-reset/", form), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Enter a valid email address.") {
		t.Fatalf("expected email validation error")
	}
}

func newResetContext(t *testing.T, method string, form url.Values, rec *httptest.ResponseRecorder) echo.Context {
	req := formRequest(method, "/password-reset-confirm/MQ/tok/", form)
	ctx := newEcho(t).NewContext(req, rec)
	ctx.SetParamNames("uidb64", "token")
	ctx.SetParamValues("MQ", "tok")
	return ctx
}

func TestPasswordResetConfirmPage(t *testing.T) {
	ctrl := newAccountController(&stubAccounts{checkErr: service.ErrInvalidOrExpiredToken})
	rec := httptest.NewRecorder()
	if err := ctrl.PasswordResetConfirmPage(newResetContext(t, http.MethodGet, nil, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")
	if flashes := flashMessages(t, rec); flashes[0].Message != "The reset link is invalid or has expired." {
		t.Fatalf("unexpected flash: %+v", flashes)
	}

	ctrl = newAccountController(&stubAccounts{})
	rec = httptest.NewRecorder()
	if err := ctrl.PasswordResetConfirmPage(newResetContext(t, http.MethodGet, nil, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `name="new_password1"`) {
		t.Fatalf("expected confirm form, got %d", rec.Code)
	}
}

func TestPasswordResetConfirm(t *testing.T) {
	verr := types.FieldError("new_password2", "The two password fields didn't match.")
	ctrl := newAccountController(&stubAccounts{confirmErr: verr})
	rec := httptest.NewRecorder()
	form := url.Values{"new_password1": {"a"}, "new_password2": {"b"}}
	if err := ctrl.PasswordResetConfirm(newResetContext(t, http.MethodPost, form, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "The two password fields didn&#39;t match.") {
		t.Fatalf("expected mismatch error in form, got %d", rec.Code)
	}

	accounts := &stubAccounts{}
	ctrl = newAccountController(accounts)
	rec = httptest.NewRecorder()
	form = url.Values{"new_password1": {"new"}, "new_password2": {"new"}}
	if err := ctrl.PasswordResetConfirm(newResetContext(t, http.MethodPost, form, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")
	if got := accounts.lastConfirmed; got == nil || got.UIDB64 != "MQ" || got.Token != "tok" || got.NewPassword1 != "new" {
		t.Fatalf("unexpected confirm request: %+v", got)
	}
	if flashes := flashMessages(t, rec); flashes[0].Message != "Your password has been set. You may log in now." {
		t.Fatalf("unexpected flash: %+v", flashes)
	}

	ctrl = newAccountController(&stubAccounts{confirmErr: service.ErrInvalidOrExpiredToken})
	rec = httptest.NewRecorder()
	if err := ctrl.PasswordResetConfirm(newResetContext(t, http.MethodPost, form, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	assertRedirect(t, rec, "/login/")
}

func TestDashboard(t *testing.T) {
	ctrl := newAccountController(&stubAccounts{})

	rec := httptest.NewRecorder()
	ctx := newEcho(t).NewContext(httptest.NewRequest(http.MethodGet, "/dashboard/", nil), rec)
	ctx.Set(middleware.ContextKeyUser, &entity.User{ID: 1, Username: "jane", Email: "jane@example.com", CreatedAt: time.Now()})

	if err := ctrl.Dashboard(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "<strong>jane</strong>") {
		t.Fatalf("expected dashboard for jane, got %d", rec.Code)
	}
}
