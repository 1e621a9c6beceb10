package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyUser         = "user"
	ContextKeySessionToken = "session_token"

	loginPath = "/login/"
)

type sessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*entity.User, error)
}

type SessionMiddleware struct {
	accounts   sessionAuthenticator
	cookieName string
}

func NewSessionMiddleware(accounts sessionAuthenticator, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{accounts: accounts, cookieName: cookieName}
}

// LoadUser attaches the session user to the context when the cookie resolves
// to a live session. Requests without one continue anonymously.
func (m *SessionMiddleware) LoadUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			return next(c)
		}

		user, err := m.accounts.Authenticate(c.Request().Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, service.ErrSessionInvalid) {
				logrus.Debug("Dropping stale session cookie")
				c.SetCookie(&http.Cookie{Name: m.cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
				return next(c)
			}
			logrus.WithError(err).Error("Session lookup failed")
			return next(c)
		}

		c.Set(ContextKeyUser, user)
		c.Set(ContextKeySessionToken, cookie.Value)
		return next(c)
	}
}

// RequireUser redirects anonymous requests to the login page. It expects
// LoadUser to have run.
func (m *SessionMiddleware) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if CurrentUser(c) == nil {
			logrus.WithField("path", c.Request().URL.Path).Debug("Anonymous request to protected page")
			return c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(c.Request().URL.RequestURI()))
		}
		return next(c)
	}
}

func CurrentUser(c echo.Context) *entity.User {
	user, _ := c.Get(ContextKeyUser).(*entity.User)
	return user
}

func SessionToken(c echo.Context) string {
	token, _ := c.Get(ContextKeySessionToken).(string)
	return token
}
