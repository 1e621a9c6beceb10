package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-filedrop/app/dto/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const adminKeyHeader = "X-API-Key"

type AdminKeyMiddleware struct {
	keyHash [sha256.Size]byte
	enabled bool
}

// NewAdminKeyMiddleware guards routes with a shared key. An empty key rejects
// every request.
func NewAdminKeyMiddleware(apiKey string) *AdminKeyMiddleware {
	apiKey = strings.TrimSpace(apiKey)
	return &AdminKeyMiddleware{
		keyHash: sha256.Sum256([]byte(apiKey)),
		enabled: apiKey != "",
	}
}

func (m *AdminKeyMiddleware) RequireAdminKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !m.enabled {
			logrus.Debug("Admin API disabled: no key configured")
			return c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		}

		apiKey := strings.TrimSpace(c.Request().Header.Get(adminKeyHeader))
		if apiKey == "" {
			logrus.Debug("Missing x-api-key header")
			return c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		}

		// Hashing first keeps the comparison length independent of the input.
		got := sha256.Sum256([]byte(apiKey))
		if subtle.ConstantTimeCompare(got[:], m.keyHash[:]) != 1 {
			logrus.Debug("Invalid x-api-key header")
			return c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		}

		return next(c)
	}
}
