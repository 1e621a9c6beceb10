package controller

import (
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-filedrop/app/dto/http"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"
	"github.com/vibast-solutions/ms-go-filedrop/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AdminController struct {
	accounts service.AccountService
}

func NewAdminController(accounts service.AccountService) *AdminController {
	return &AdminController{accounts: accounts}
}

func (c *AdminController) ListUsers(ctx echo.Context) error {
	req, err := types.NewListUsersRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind list users request")
		return ctx.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
	}

	users, err := c.accounts.ListUsers(ctx.Request().Context(), req.Query)
	if err != nil {
		logrus.WithError(err).Error("List users failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error"))
	}

	res := httpdto.ListUsersResponse{Users: make([]httpdto.UserResponse, 0, len(users))}
	for _, u := range users {
		item := httpdto.UserResponse{
			ID:            u.ID,
			Username:      u.Username,
			Email:         u.Email,
			IsActive:      u.IsActive,
			IsStaff:       u.IsStaff,
			EmailVerified: u.EmailVerified,
			DateJoined:    u.CreatedAt,
		}
		if u.LastLogin.Valid {
			lastLogin := u.LastLogin.Time
			item.LastLogin = &lastLogin
		}
		res.Users = append(res.Users, item)
	}

	return ctx.JSON(http.StatusOK, res)
}
