package controller

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/vibast-solutions/ms-go-filedrop/app/middleware"
	"github.com/vibast-solutions/ms-go-filedrop/app/view"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

const (
	flashCookieName      = "filedrop_flash"
	ctxKeyPendingFlashes = "pending_flashes"
)

// addFlash queues a message for the next rendered page. Messages survive one
// redirect in a cookie and are cleared when shown.
func addFlash(c echo.Context, level, msg string) {
	pending, ok := c.Get(ctxKeyPendingFlashes).([]view.Flash)
	if !ok {
		pending = readFlashCookie(c)
	}
	pending = append(pending, view.Flash{Level: level, Message: msg})
	c.Set(ctxKeyPendingFlashes, pending)

	raw, err := json.Marshal(pending)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes returns the stored messages and clears the cookie.
func popFlashes(c echo.Context) []view.Flash {
	flashes := readFlashCookie(c)
	if _, err := c.Cookie(flashCookieName); err == nil {
		c.SetCookie(&http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	return flashes
}

func readFlashCookie(c echo.Context) []view.Flash {
	cookie, err := c.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var flashes []view.Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		return nil
	}
	return flashes
}

func newPage(c echo.Context, title string) view.Page {
	token, _ := c.Get(echomiddleware.DefaultCSRFConfig.ContextKey).(string)
	return view.Page{
		Title:     title,
		User:      middleware.CurrentUser(c),
		CSRFToken: token,
		Flashes:   popFlashes(c),
	}
}
