package types

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	msgRequired         = "This field is required."
	msgInvalidEmail     = "Enter a valid email address."
	msgInvalidUsername  = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgPasswordMismatch = "The two password fields didn't match."

	maxEmailLength    = 254
	maxUsernameLength = 30
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

type RegisterRequest struct {
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Password1 string `form:"password1" json:"password1"`
	Password2 string `form:"password2" json:"password2"`
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	var body RegisterRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

// Validate checks input shape. Password strength and uniqueness are checked
// by the account service.
func (r *RegisterRequest) Validate() error {
	verr := NewValidationError()

	username := strings.TrimSpace(r.Username)
	switch {
	case username == "":
		verr.Add("username", msgRequired)
	case len([]rune(username)) > maxUsernameLength:
		verr.Add("username", fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", maxUsernameLength, len([]rune(username))))
	case !usernamePattern.MatchString(username):
		verr.Add("username", msgInvalidUsername)
	}

	validateEmail(verr, r.Email)

	if r.Password1 == "" {
		verr.Add("password1", msgRequired)
	}
	if r.Password2 == "" {
		verr.Add("password2", msgRequired)
	}
	if r.Password1 != "" && r.Password2 != "" && r.Password1 != r.Password2 {
		verr.Add("password2", msgPasswordMismatch)
	}

	return verr.Err()
}

type VerifyEmailRequest struct {
	Token string `param:"token"`
}

func NewVerifyEmailRequestFromContext(ctx echo.Context) (*VerifyEmailRequest, error) {
	var body VerifyEmailRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

type LoginRequest struct {
	Email      string `form:"email" json:"email"`
	Password   string `form:"password" json:"password"`
	RememberMe string `form:"remember_me" json:"remember_me"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	var body LoginRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *LoginRequest) Validate() error {
	verr := NewValidationError()
	validateEmail(verr, r.Email)
	if r.Password == "" {
		verr.Add("password", msgRequired)
	}

	return verr.Err()
}

// Remember reports whether the remember_me checkbox was ticked.
func (r *LoginRequest) Remember() bool {
	switch strings.ToLower(strings.TrimSpace(r.RememberMe)) {
	case "on", "1", "true", "yes":
		return true
	}
	return false
}

type PasswordResetRequest struct {
	Email string `form:"email" json:"email"`
}

func NewPasswordResetRequestFromContext(ctx echo.Context) (*PasswordResetRequest, error) {
	var body PasswordResetRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *PasswordResetRequest) Validate() error {
	verr := NewValidationError()
	validateEmail(verr, r.Email)

	return verr.Err()
}

type PasswordResetConfirmRequest struct {
	UIDB64       string `param:"uidb64"`
	Token        string `param:"token"`
	NewPassword1 string `form:"new_password1" json:"new_password1"`
	NewPassword2 string `form:"new_password2" json:"new_password2"`
}

func NewPasswordResetConfirmRequestFromContext(ctx echo.Context) (*PasswordResetConfirmRequest, error) {
	var body PasswordResetConfirmRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

func (r *PasswordResetConfirmRequest) Validate() error {
	verr := NewValidationError()
	if r.NewPassword1 == "" {
		verr.Add("new_password1", msgRequired)
	}
	if r.NewPassword2 == "" {
		verr.Add("new_password2", msgRequired)
	}
	if r.NewPassword1 != "" && r.NewPassword2 != "" && r.NewPassword1 != r.NewPassword2 {
		verr.Add("new_password2", msgPasswordMismatch)
	}

	return verr.Err()
}

type ListUsersRequest struct {
	Query string `query:"q"`
}

func NewListUsersRequestFromContext(ctx echo.Context) (*ListUsersRequest, error) {
	var body ListUsersRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.Query = strings.TrimSpace(body.Query)

	return &body, nil
}

func validateEmail(verr *ValidationError, email string) {
	email = strings.TrimSpace(email)
	if email == "" {
		verr.Add("email", msgRequired)
		return
	}
	if !IsValidEmail(email) {
		verr.Add("email", msgInvalidEmail)
	}
}

// IsValidEmail accepts a bare addr-spec whose domain is dotted or localhost.
func IsValidEmail(email string) bool {
	if len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return false
	}
	domain := email[at+1:]
	if domain == "localhost" {
		return true
	}
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
