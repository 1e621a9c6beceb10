package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-filedrop/app/dto"
	"github.com/vibast-solutions/ms-go-filedrop/app/middleware"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"
	"github.com/vibast-solutions/ms-go-filedrop/app/types"
	"github.com/vibast-solutions/ms-go-filedrop/app/view"
	"github.com/vibast-solutions/ms-go-filedrop/config"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	loginPath     = "/login/"
	dashboardPath = "/dashboard/"

	msgRegistered          = "Please confirm your email address to complete the registration."
	msgVerificationMailErr = "Your account was created, but the verification email could not be sent. Please contact support."
	msgEmailVerified       = "Your email has been verified. You can now login."
	msgInvalidVerification = "Invalid verification link."
	msgNotVerified         = "Please verify your email before logging in."
	msgWelcomeBack         = "Welcome back, %s!"
	msgInvalidLogin        = "Invalid email or password."
	msgLoggedOut           = "You have been logged out."
	msgResetSent           = "We've emailed you instructions for setting your password."
	msgResetNoUser         = "No user with that email address found."
	msgResetMailErr        = "We could not send the password reset email. Please try again later."
	msgPasswordSet         = "Your password has been set. You may log in now."
	msgResetLinkInvalid    = "The reset link is invalid or has expired."
	msgInvalidForm         = "Invalid request."
)

type AccountController struct {
	accounts service.AccountService
	session  config.SessionConfig
}

func NewAccountController(accounts service.AccountService, session config.SessionConfig) *AccountController {
	return &AccountController{accounts: accounts, session: session}
}

func (c *AccountController) RegisterPage(ctx echo.Context) error {
	return c.renderRegister(ctx, http.StatusOK, &types.RegisterRequest{}, nil)
}

func (c *AccountController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return c.renderRegister(ctx, http.StatusBadRequest, &types.RegisterRequest{}, types.FieldError(types.NonFieldKey, msgInvalidForm))
	}

	logrus.WithField("email", req.Email).Info("Register request received")
	result, err := c.accounts.Register(ctx.Request().Context(), req)
	if err != nil {
		if verr, ok := types.AsValidationError(err); ok {
			logrus.WithField("email", req.Email).Debug("Register validation failed")
			return c.renderRegister(ctx, http.StatusOK, req, verr)
		}
		if errors.Is(err, service.ErrMailDelivery) && result != nil {
			logrus.WithError(err).WithField("user_id", result.User.ID).Error("Verification email failed")
			addFlash(ctx, view.FlashError, msgVerificationMailErr)
			return ctx.Redirect(http.StatusFound, loginPath)
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Register failed")
		return echo.ErrInternalServerError
	}

	logrus.WithFields(logrus.Fields{
		"user_id": result.User.ID,
		"email":   result.User.Email,
	}).Info("User registered")

	addFlash(ctx, view.FlashSuccess, msgRegistered)
	return ctx.Redirect(http.StatusFound, loginPath)
}

func (c *AccountController) VerifyEmail(ctx echo.Context) error {
	req, err := types.NewVerifyEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind verify email request")
		addFlash(ctx, view.FlashError, msgInvalidVerification)
		return ctx.Redirect(http.StatusFound, loginPath)
	}

	if err = c.accounts.VerifyEmail(ctx.Request().Context(), req.Token); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Email verification failed: invalid token")
			addFlash(ctx, view.FlashError, msgInvalidVerification)
			return ctx.Redirect(http.StatusFound, loginPath)
		}
		logrus.WithError(err).Error("Email verification failed")
		return echo.ErrInternalServerError
	}

	logrus.Info("Email verified")
	addFlash(ctx, view.FlashSuccess, msgEmailVerified)
	return ctx.Redirect(http.StatusFound, loginPath)
}

func (c *AccountController) LoginPage(ctx echo.Context) error {
	return c.renderLogin(ctx, http.StatusOK, &types.LoginRequest{}, nil, "")
}

func (c *AccountController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return c.renderLogin(ctx, http.StatusBadRequest, &types.LoginRequest{}, types.FieldError(types.NonFieldKey, msgInvalidForm), "")
	}

	if err = req.Validate(); err != nil {
		verr, _ := types.AsValidationError(err)
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return c.renderLogin(ctx, http.StatusOK, req, verr, "")
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	result, err := c.accounts.Login(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrNotVerified) {
			logrus.WithField("email", req.Email).Warn("Login failed: email not verified")
			return c.renderLogin(ctx, http.StatusOK, req, nil, msgNotVerified)
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return c.renderLogin(ctx, http.StatusOK, req, nil, msgInvalidLogin)
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return echo.ErrInternalServerError
	}

	// Replace any session the browser already carried.
	if previous := middleware.SessionToken(ctx); previous != "" {
		if err = c.accounts.Logout(ctx.Request().Context(), previous); err != nil {
			logrus.WithError(err).Warn("Failed to drop previous session")
		}
	}

	c.setSessionCookie(ctx, result)
	logrus.WithFields(logrus.Fields{
		"user_id":    result.User.ID,
		"persistent": result.Persistent,
	}).Info("Login successful")

	addFlash(ctx, view.FlashSuccess, welcomeBack(result.User.Username))
	return ctx.Redirect(http.StatusFound, dashboardPath)
}

func (c *AccountController) Logout(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if err := c.accounts.Logout(ctx.Request().Context(), middleware.SessionToken(ctx)); err != nil {
		logrus.WithError(err).Error("Logout failed")
	}

	c.clearSessionCookie(ctx)
	if user != nil {
		logrus.WithField("user_id", user.ID).Info("Logout successful")
	}

	addFlash(ctx, view.FlashSuccess, msgLoggedOut)
	return ctx.Redirect(http.StatusFound, loginPath)
}

func (c *AccountController) PasswordResetPage(ctx echo.Context) error {
	return c.renderPasswordReset(ctx, http.StatusOK, &types.PasswordResetRequest{}, nil, "")
}

func (c *AccountController) PasswordReset(ctx echo.Context) error {
	req, err := types.NewPasswordResetRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset request")
		return c.renderPasswordReset(ctx, http.StatusBadRequest, &types.PasswordResetRequest{}, types.FieldError(types.NonFieldKey, msgInvalidForm), "")
	}

	if err = req.Validate(); err != nil {
		verr, _ := types.AsValidationError(err)
		logrus.Debug("Password reset validation failed")
		return c.renderPasswordReset(ctx, http.StatusOK, req, verr, "")
	}

	logrus.WithField("email", req.Email).Info("Password reset requested")
	if err = c.accounts.RequestPasswordReset(ctx.Request().Context(), req); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			logrus.WithField("email", req.Email).Warn("Password reset failed: no such user")
			return c.renderPasswordReset(ctx, http.StatusOK, req, nil, msgResetNoUser)
		}
		if errors.Is(err, service.ErrMailDelivery) {
			logrus.WithError(err).WithField("email", req.Email).Error("Password reset email failed")
			return c.renderPasswordReset(ctx, http.StatusOK, req, nil, msgResetMailErr)
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Password reset failed")
		return echo.ErrInternalServerError
	}

	addFlash(ctx, view.FlashSuccess, msgResetSent)
	return ctx.Redirect(http.StatusFound, loginPath)
}

func (c *AccountController) PasswordResetConfirmPage(ctx echo.Context) error {
	req, err := types.NewPasswordResetConfirmRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset confirm request")
		return c.rejectResetLink(ctx)
	}

	if _, err = c.accounts.CheckPasswordResetToken(ctx.Request().Context(), req.UIDB64, req.Token); err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			logrus.Warn("Password reset link rejected")
			return c.rejectResetLink(ctx)
		}
		logrus.WithError(err).Error("Password reset token check failed")
		return echo.ErrInternalServerError
	}

	return c.renderPasswordResetConfirm(ctx, nil)
}

func (c *AccountController) PasswordResetConfirm(ctx echo.Context) error {
	req, err := types.NewPasswordResetConfirmRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset confirm request")
		return c.rejectResetLink(ctx)
	}

	if err = c.accounts.ConfirmPasswordReset(ctx.Request().Context(), req); err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			logrus.Warn("Password reset confirm rejected: bad link")
			return c.rejectResetLink(ctx)
		}
		if verr, ok := types.AsValidationError(err); ok {
			logrus.Debug("Password reset confirm validation failed")
			return c.renderPasswordResetConfirm(ctx, verr)
		}
		logrus.WithError(err).Error("Password reset confirm failed")
		return echo.ErrInternalServerError
	}

	logrus.Info("Password reset completed")
	addFlash(ctx, view.FlashSuccess, msgPasswordSet)
	return ctx.Redirect(http.StatusFound, loginPath)
}

func (c *AccountController) Dashboard(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, "dashboard", newPage(ctx, "Dashboard"))
}

func (c *AccountController) rejectResetLink(ctx echo.Context) error {
	addFlash(ctx, view.FlashError, msgResetLinkInvalid)
	return ctx.Redirect(http.StatusFound, loginPath)
}

func (c *AccountController) renderRegister(ctx echo.Context, status int, req *types.RegisterRequest, verr *types.ValidationError) error {
	page := newPage(ctx, "Register")
	page.Form = map[string]string{"username": req.Username, "email": req.Email}
	if verr != nil {
		page.Errors = verr.Fields
	}
	return ctx.Render(status, "register", page)
}

func (c *AccountController) renderLogin(ctx echo.Context, status int, req *types.LoginRequest, verr *types.ValidationError, flash string) error {
	page := newPage(ctx, "Log in")
	page.Form = map[string]string{"email": req.Email}
	if req.Remember() {
		page.Form["remember_me"] = "on"
	}
	if verr != nil {
		page.Errors = verr.Fields
	}
	if flash != "" {
		page.Flashes = append(page.Flashes, view.Flash{Level: view.FlashError, Message: flash})
	}
	return ctx.Render(status, "login", page)
}

func (c *AccountController) renderPasswordReset(ctx echo.Context, status int, req *types.PasswordResetRequest, verr *types.ValidationError, flash string) error {
	page := newPage(ctx, "Password reset")
	page.Form = map[string]string{"email": req.Email}
	if verr != nil {
		page.Errors = verr.Fields
	}
	if flash != "" {
		page.Flashes = append(page.Flashes, view.Flash{Level: view.FlashError, Message: flash})
	}
	return ctx.Render(status, "password_reset", page)
}

func (c *AccountController) renderPasswordResetConfirm(ctx echo.Context, verr *types.ValidationError) error {
	page := newPage(ctx, "Set a new password")
	if verr != nil {
		page.Errors = verr.Fields
	}
	return ctx.Render(http.StatusOK, "password_reset_confirm", page)
}

func (c *AccountController) setSessionCookie(ctx echo.Context, result *dto.LoginResult) {
	cookie := &http.Cookie{
		Name:     c.session.CookieName,
		Value:    result.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	// Without remember me the cookie lives for the browser session only.
	if result.Persistent {
		cookie.Expires = result.ExpiresAt
		cookie.MaxAge = int(c.session.TTL / time.Second)
	}
	ctx.SetCookie(cookie)
}

func (c *AccountController) clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     c.session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.session.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func welcomeBack(username string) string {
	return fmt.Sprintf(msgWelcomeBack, username)
}
